// Package domain contains core concepts of the chat system.
// This file defines Principal, the authenticated identity issuing requests.
// Principals are owned by the identity provider and read-only here.
package domain

// Principal is the authenticated identity behind every request.
type Principal struct {
	ID          string // opaque, stable, unique
	DisplayName string
	AvatarRef   string // optional blob key
	Verified    bool
}
