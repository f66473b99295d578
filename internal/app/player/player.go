/*
Package player binds one connected player to the services that act on their behalf.

A Player is built once per session and handed to whatever drives the player's commands. It
holds explicit references to the player's own state, the channel registry and relay, and the
direct-message router, so commands never look collaborators up on the fly.
*/
package player

import (
	"context"

	"github.com/google/uuid"

	"stickychat/internal/app/channel"
	"stickychat/internal/app/data"
	"stickychat/internal/app/dm"
	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
)

// Deps are the instance-wide services a Player is bound to.
type Deps struct {
	Store    *data.Store
	Channels *channel.Registry
	Relay    *channel.Relay
	Router   *dm.Router
}

// Player is the per-session context of one connected player.
type Player struct {
	user.User

	// Data is the player's own relational state.
	Data *data.Service

	// level is the session's priority tier.
	level priority.Level

	store    *data.Store
	channels *channel.Registry
	relay    *channel.Relay
	router   *dm.Router
}

// New reloads u's persisted state, which another instance may have changed since this
// one last saw the player, and binds it to deps. The player's priority tier is
// session-scoped and is applied to the loaded state.
func New(ctx context.Context, deps Deps, u user.User, level priority.Level) (*Player, error) {
	svc, err := deps.Store.Reload(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	svc.SetPriority(level)

	return &Player{
		User:     u,
		Data:     svc,
		level:    level,
		store:    deps.Store,
		channels: deps.Channels,
		relay:    deps.Relay,
		router:   deps.Router,
	}, nil
}

// SendTo sends a direct message to another player.
func (p *Player) SendTo(ctx context.Context, to user.ID, content string) (dm.Result, error) {
	return p.router.Send(ctx, p.ID, dm.To(to), content)
}

// Reply sends a direct message to the player's last contact.
func (p *Player) Reply(ctx context.Context, content string) (dm.Result, error) {
	return p.router.Reply(ctx, p.ID, content)
}

// Say sends content to the player's active channel.
func (p *Player) Say(ctx context.Context, content string) *channel.Channel {
	return p.relay.Say(ctx, p.ID, content)
}

// Channel returns the player's active channel.
func (p *Player) Channel() *channel.Channel {
	return p.channels.PlayerChannel(p.ID)
}

// JoinChannel makes id the player's active channel.
func (p *Player) JoinChannel(id uuid.UUID) (*channel.Channel, error) {
	return p.channels.SetPlayerChannel(p.ID, id)
}

// Block stops target from sending the player direct messages.
func (p *Player) Block(ctx context.Context, target user.ID) (bool, error) {
	return p.router.Block(ctx, p.ID, target)
}

// Unblock reverses Block.
func (p *Player) Unblock(ctx context.Context, target user.ID) (bool, error) {
	return p.router.Unblock(ctx, p.ID, target)
}

// SetDirectMessages turns direct messages on or off and reports whether the setting changed.
func (p *Player) SetDirectMessages(ctx context.Context, enabled bool) (bool, error) {
	if enabled {
		return p.router.EnableDirectMessages(ctx, p.ID)
	}
	return p.router.DisableDirectMessages(ctx, p.ID)
}

// Priority returns the player's session tier.
func (p *Player) Priority() priority.Level {
	return p.level
}

// Attach makes the player's state the tracked one again. A previous session's Leave may
// have stopped tracking it between New and the session being registered.
func (p *Player) Attach() {
	p.Data = p.store.Adopt(p.Data)
	p.Data.SetPriority(p.level)
}

// Leave drops the player's channel state and stops tracking their data when their
// session ends. Persisted state is kept.
func (p *Player) Leave() {
	p.channels.ForgetPlayer(p.ID)
	p.store.Evict(p.Data)
}
