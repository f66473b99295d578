/*
Package user contains core data structures related to player identity.

It defines the opaque, globally unique player identifier used as the key for every
per-user structure in the routing core, and the lightweight User struct passed to clients.
*/
package user

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is the opaque, globally unique handle for a player. It is stable across
// reconnects and server instances.
type ID = uuid.UUID

// Nil is the zero identifier. It never names a real player.
var Nil = uuid.Nil

// New returns a fresh random identifier.
func New() ID {
	return uuid.New()
}

// Parse parses the textual form of a player identifier.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// Less imposes the canonical order used when two players must be locked together.
func Less(a, b ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// User represents the basic identity information of a chat participant.
// Fields use JSON tags for serialization in WebSocket messages.
type User struct {
	// ID is the unique identifier for the player.
	ID ID `json:"id"`

	// Name is the display name of the player.
	Name string `json:"name"`
}
