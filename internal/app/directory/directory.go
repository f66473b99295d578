/*
Package directory resolves player identifiers to presence: whether a player is connected
to this instance, to another instance of the cluster, or nowhere.

Two implementations are provided. Memory keeps a presence table in process and hands out
per-instance views of it; Redis shares presence across the cluster through Redis keys.
*/
package directory

import (
	"context"
	"fmt"

	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
)

// Kind classifies where a player is connected.
type Kind int

const (
	// Offline means the player is not connected to any instance.
	Offline Kind = iota
	// Local means the player is connected to the instance asking.
	Local
	// Remote means the player is connected to another instance.
	Remote
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "offline"
	}
}

// Location is the answer to a presence lookup.
type Location struct {
	Kind Kind

	// Instance names the instance holding the connection; empty when Offline.
	Instance string

	// Priority is the tier the player's session runs at; Direct when Offline.
	Priority priority.Level
}

func (l Location) String() string {
	if l.Kind == Offline {
		return l.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", l.Kind, l.Instance)
}

// Directory answers presence questions relative to one instance.
type Directory interface {
	// Locate reports where id is connected.
	Locate(ctx context.Context, id user.ID) (Location, error)

	// Exists reports whether id has ever been seen by the platform.
	Exists(ctx context.Context, id user.ID) (bool, error)
}

// Tracker records connections made to this instance.
type Tracker interface {
	// Connect claims id's presence for this instance and publishes the session's tier.
	Connect(ctx context.Context, id user.ID, level priority.Level) error
	Disconnect(ctx context.Context, id user.ID) error
}
