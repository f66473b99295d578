/*
Package channel contains group-communication targets and the registry that owns them.

This file defines the Channel struct: an immutable identity (id, type, name) plus a
membership set and the delivery operation that fans a message out to its members.
*/
package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"stickychat/internal/app/notify"
	"stickychat/internal/app/user"
)

// Type enumerates the kinds of channel.
type Type string

const (
	// TypeGlobal implicitly contains every connected player.
	TypeGlobal Type = "GLOBAL"
	// TypeLocal is a per-instance channel.
	TypeLocal Type = "LOCAL"
	// TypeCustom is a user- or config-defined channel.
	TypeCustom Type = "CUSTOM"
)

// ParseType resolves a channel type name case-insensitively.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeGlobal, TypeLocal, TypeCustom:
		return t, nil
	default:
		return "", fmt.Errorf("unknown channel type %q", s)
	}
}

// GlobalID is the reserved identifier of the global channel.
var GlobalID = uuid.Nil

// Channel is a named, addressable group-communication target.
type Channel struct {
	id    uuid.UUID
	kind  Type
	name  string
	order int

	// mu protects the members set.
	mu      sync.RWMutex
	members map[user.ID]struct{}
}

func newChannel(id uuid.UUID, kind Type, name string) *Channel {
	return &Channel{
		id:      id,
		kind:    kind,
		name:    name,
		members: make(map[user.ID]struct{}),
	}
}

func (c *Channel) ID() uuid.UUID { return c.id }

func (c *Channel) Type() Type { return c.kind }

func (c *Channel) Name() string { return c.name }

// IsGlobal reports whether this is the reserved global channel.
func (c *Channel) IsGlobal() bool { return c.id == GlobalID }

// Join adds id to the member set. It reports whether the set changed.
// The global channel does not materialize members, so joining it is a no-op.
func (c *Channel) Join(id user.ID) bool {
	if c.kind == TypeGlobal {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[id]; ok {
		return false
	}
	c.members[id] = struct{}{}
	return true
}

// Leave removes id from the member set. It reports whether the set changed.
func (c *Channel) Leave(id user.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[id]; !ok {
		return false
	}
	delete(c.members, id)
	return true
}

// HasMember reports whether id is a member. Everyone is a member of the global channel.
func (c *Channel) HasMember(id user.ID) bool {
	if c.kind == TypeGlobal {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// Members returns a snapshot of the materialized member set.
func (c *Channel) Members() []user.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]user.ID, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	return out
}

// Deliver fans content from a sender out to the channel's audience through sink.
// Global channels broadcast to every connected player; other channels notify each
// member individually. Delivery is fire-and-forget.
func (c *Channel) Deliver(ctx context.Context, sink notify.Sink, from user.ID, content string) {
	n := notify.Notification{
		Type:    notify.TypeInfo,
		Kind:    notify.KindChannel,
		From:    from,
		Channel: c.id,
		Content: content,
	}

	if c.kind == TypeGlobal {
		sink.Broadcast(ctx, n)
		return
	}

	for _, member := range c.Members() {
		sink.Notify(ctx, member, n)
	}
}

// Info is the client-facing description of a channel.
type Info struct {
	ID   uuid.UUID `json:"id"`
	Type Type      `json:"type"`
	Name string    `json:"name"`
}

// Info describes the channel.
func (c *Channel) Info() Info {
	return Info{ID: c.id, Type: c.kind, Name: c.name}
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s(%s %s)", c.name, c.kind, c.id)
}
