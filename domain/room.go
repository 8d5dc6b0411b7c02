// Package domain contains core concepts of the chat system.
// This file defines Room entities and the name normalization rule.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room is a named, membership-scoped message channel.
//
// NormalizedName is the de-facto uniqueness key: two rooms live at the
// same instant never share it. Name keeps the casing the creator typed.
type Room struct {
	ID             uuid.UUID
	Name           string
	NormalizedName string
	CreatorID      string
	Members        []string // always contains CreatorID
	CreatedAt      time.Time
}

// NormalizeName trims and lower-cases a room name.
// The result is the uniqueness key used by the directory.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasMember reports whether id belongs to the room.
func (r Room) HasMember(id string) bool {
	for _, m := range r.Members {
		if m == id {
			return true
		}
	}
	return false
}
