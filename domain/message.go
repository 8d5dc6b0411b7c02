// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat entry within one room.
//
// Author fields are denormalized snapshots taken at send time; they may
// go stale if the principal later renames themselves. Accepted.
// Augmentation is the only mutable part and lives in session state,
// never on disk.
type Message struct {
	ID           uuid.UUID
	RoomID       uuid.UUID
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Content      string
	CreatedAt    time.Time // store-assigned, authoritative for ordering
	Augmentation *Augmentation
}
