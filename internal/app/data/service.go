/*
Package data holds the per-user relational chat state: who a player has blocked, who they
last exchanged a direct message with, whether they accept direct messages, and the priority
tier they currently run at.

This file defines the Service type. Every mutation goes through its methods; each Service is
guarded by its own lock so the owner's commands and the router's side effects never race.
*/
package data

import (
	"sync"

	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/errs"
)

// Service is the mutable chat state of a single player.
type Service struct {
	// owner is the player this state belongs to. Immutable.
	owner user.ID

	// mu guards every field below.
	mu sync.Mutex

	// blocked is the set of players whose direct messages this player refuses.
	blocked map[user.ID]struct{}

	// last is the most recent direct-message counterparty, valid when hasLast is set.
	last    user.ID
	hasLast bool

	// directMessagesEnabled is false when the player has turned direct messages off.
	directMessagesEnabled bool

	// level is the player's current priority tier.
	level priority.Level
}

// NewService returns the default state for owner: nothing blocked, no last contact,
// direct messages enabled, Direct priority.
func NewService(owner user.ID) *Service {
	return &Service{
		owner:                 owner,
		blocked:               make(map[user.ID]struct{}),
		directMessagesEnabled: true,
		level:                 priority.Direct,
	}
}

// fromRecord rebuilds a Service from persisted state.
func fromRecord(rec Record) *Service {
	s := NewService(rec.Owner)
	s.restore(rec)
	return s
}

// restore replaces the persisted part of the state with rec. Last contact and priority
// are kept.
func (s *Service) restore(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocked = make(map[user.ID]struct{}, len(rec.Blocked))
	for _, id := range rec.Blocked {
		if id != s.owner {
			s.blocked[id] = struct{}{}
		}
	}
	s.directMessagesEnabled = rec.DirectMessagesEnabled
}

// Owner returns the player this state belongs to.
func (s *Service) Owner() user.ID {
	return s.owner
}

// Blocked reports whether target is blocked by the owner.
func (s *Service) Blocked(target user.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[target]
	return ok
}

// Block adds target to the block set. It reports whether the set changed.
// Blocking oneself is an error.
func (s *Service) Block(target user.ID) (bool, error) {
	if target == s.owner {
		return false, errs.NewError(errs.ErrSelfBlock)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocked[target]; ok {
		return false, nil
	}
	s.blocked[target] = struct{}{}
	return true, nil
}

// Unblock removes target from the block set. It reports whether the set changed.
func (s *Service) Unblock(target user.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocked[target]; !ok {
		return false
	}
	delete(s.blocked, target)
	return true
}

// BlockedUsers returns a snapshot of the block set.
func (s *Service) BlockedUsers() []user.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]user.ID, 0, len(s.blocked))
	for id := range s.blocked {
		out = append(out, id)
	}
	return out
}

// Last returns the last-contacted player, if any.
func (s *Service) Last() (user.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// SetLast overwrites the last-contacted pointer.
func (s *Service) SetLast(id user.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLastLocked(id)
}

func (s *Service) setLastLocked(id user.ID) {
	s.last = id
	s.hasLast = true
}

// DirectMessagesEnabled reports whether the owner accepts direct messages.
func (s *Service) DirectMessagesEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directMessagesEnabled
}

// SetDirectMessagesEnabled toggles direct-message acceptance and reports whether it changed.
func (s *Service) SetDirectMessagesEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.directMessagesEnabled != enabled
	s.directMessagesEnabled = enabled
	return changed
}

// Priority returns the owner's current priority tier.
func (s *Service) Priority() priority.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// SetPriority changes the owner's priority tier.
func (s *Service) SetPriority(level priority.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// Link records a and b as each other's last contact. Both locks are taken in
// canonical identifier order so concurrent links over the same pair cannot deadlock.
func Link(a, b *Service) {
	if a == b {
		return
	}

	first, second := a, b
	if user.Less(b.owner, a.owner) {
		first, second = b, a
	}

	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	a.setLastLocked(b.owner)
	b.setLastLocked(a.owner)
}
