package dm

import (
	"context"

	"stickychat/internal/app/user"
)

// Block makes owner refuse direct messages from target. It reports whether the block
// set changed; the new state is persisted when it did.
func (r *Router) Block(ctx context.Context, owner, target user.ID) (bool, error) {
	svc, err := r.store.Get(ctx, owner)
	if err != nil {
		return false, err
	}

	changed, err := svc.Block(target)
	if err != nil || !changed {
		return changed, err
	}
	return true, r.store.SaveBlock(ctx, svc, target, true)
}

// Unblock reverses Block.
func (r *Router) Unblock(ctx context.Context, owner, target user.ID) (bool, error) {
	svc, err := r.store.Get(ctx, owner)
	if err != nil {
		return false, err
	}

	if !svc.Unblock(target) {
		return false, nil
	}
	return true, r.store.SaveBlock(ctx, svc, target, false)
}

// IsBlocked reports whether owner blocks target.
func (r *Router) IsBlocked(ctx context.Context, owner, target user.ID) (bool, error) {
	svc, err := r.store.Load(ctx, owner)
	if err != nil {
		return false, err
	}
	return svc.Blocked(target), nil
}

// EnableDirectMessages turns direct messages back on for owner.
func (r *Router) EnableDirectMessages(ctx context.Context, owner user.ID) (bool, error) {
	return r.setDirectMessages(ctx, owner, true)
}

// DisableDirectMessages turns direct messages off for owner.
func (r *Router) DisableDirectMessages(ctx context.Context, owner user.ID) (bool, error) {
	return r.setDirectMessages(ctx, owner, false)
}

func (r *Router) setDirectMessages(ctx context.Context, owner user.ID, enabled bool) (bool, error) {
	svc, err := r.store.Get(ctx, owner)
	if err != nil {
		return false, err
	}

	if !svc.SetDirectMessagesEnabled(enabled) {
		return false, nil
	}
	return true, r.store.SaveDirectMessages(ctx, svc)
}

// HasDirectMessagesDisabled reports whether owner refuses all direct messages.
func (r *Router) HasDirectMessagesDisabled(ctx context.Context, owner user.ID) (bool, error) {
	svc, err := r.store.Load(ctx, owner)
	if err != nil {
		return false, err
	}
	return !svc.DirectMessagesEnabled(), nil
}

// DisabledPlayers lists the players connected here with direct messages turned off.
func (r *Router) DisabledPlayers() []user.ID {
	var out []user.ID
	for _, svc := range r.store.Services() {
		if !svc.DirectMessagesEnabled() {
			out = append(out, svc.Owner())
		}
	}
	return out
}

// Last returns owner's last contact.
func (r *Router) Last(ctx context.Context, owner user.ID) (user.ID, bool, error) {
	svc, err := r.store.Load(ctx, owner)
	if err != nil {
		return user.Nil, false, err
	}
	id, ok := svc.Last()
	return id, ok, nil
}

// HasLast reports whether owner has someone to reply to.
func (r *Router) HasLast(ctx context.Context, owner user.ID) (bool, error) {
	_, ok, err := r.Last(ctx, owner)
	return ok, err
}

// CanMessage reports whether a direct message from -> to would pass the recipient's
// policy. Presence is not considered.
func (r *Router) CanMessage(ctx context.Context, from, to user.ID) (bool, error) {
	if from == to {
		return false, nil
	}
	status, _, _, err := r.admit(ctx, from, to)
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// MessageablePlayers lists the players connected here that from may currently message.
func (r *Router) MessageablePlayers(ctx context.Context, from user.ID) ([]user.ID, error) {
	var out []user.ID
	for _, svc := range r.store.Services() {
		id := svc.Owner()
		ok, err := r.CanMessage(ctx, from, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}
