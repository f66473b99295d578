package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stickychat/internal/app/directory"
	"stickychat/internal/app/dm"
	"stickychat/internal/app/notify"
	"stickychat/internal/app/transport"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/metrics"
)

// Hub tracks the clients connected to this instance and delivers notifications to them.
type Hub struct {
	// instance names this server in the cluster.
	instance string

	// tracker records presence for the directory.
	tracker directory.Tracker

	// mu protects clients.
	mu sync.RWMutex

	// clients holds the current connection of every player, keyed by player ID.
	clients map[user.ID]*Client

	// structured logger with Hub context.
	logger zerolog.Logger
}

var (
	_ notify.Sink              = (*Hub)(nil)
	_ transport.FailureHandler = (*Hub)(nil)
)

// NewHub constructs an empty Hub.
func NewHub(instance string, tracker directory.Tracker) *Hub {
	return &Hub{
		instance: instance,
		tracker:  tracker,
		clients:  make(map[user.ID]*Client),
		logger:   logx.Component("SessionHub").With().Str("instance", instance).Logger(),
	}
}

// Register makes c the player's current connection, replacing and kicking any previous
// one, records the player as present, and sends the session's initial state.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	id := c.player.ID

	h.mu.Lock()
	existing, replaced := h.clients[id]
	h.clients[id] = c
	c.player.Attach()
	h.mu.Unlock()

	if replaced {
		h.logger.Warn().
			Str("client_id", id.String()).
			Msg("Client ID already connected. Closing old connection for replacement.")
		existing.Kick(WsCloseCodeSessionKicked, "Session replaced by new connection.")
	} else {
		metrics.SessionOpened()
	}

	if err := h.tracker.Connect(ctx, id, c.player.Priority()); err != nil {
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("Failed to record presence.")
		h.Unregister(ctx, c)
		return fmt.Errorf("connect %s: %w", id, err)
	}

	h.logger.Info().
		Str("client_id", id.String()).
		Int("total_users", h.Count()).
		Msg("Client registered.")

	return c.sendFrame(NewFrame(TypeInit, InitPayload{
		CurrentUser:           c.player.User,
		Instance:              h.instance,
		Channel:               c.player.Channel().Info(),
		DirectMessagesEnabled: c.player.Data.DirectMessagesEnabled(),
	}))
}

// Unregister removes c if it is still the player's current connection. Stale
// connections that were already replaced are ignored.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	id := c.player.ID

	h.mu.Lock()
	current, ok := h.clients[id]
	if !ok || current != c {
		h.mu.Unlock()
		c.closeSend()
		h.logger.Debug().Str("client_id", id.String()).Msg("Ignoring unregister for stale connection.")
		return
	}
	delete(h.clients, id)
	c.player.Leave()
	h.mu.Unlock()

	c.closeSend()
	metrics.SessionClosed()

	if err := h.tracker.Disconnect(ctx, id); err != nil {
		h.logger.Error().Err(err).Str("client_id", id.String()).Msg("Failed to clear presence.")
	}

	h.logger.Info().
		Str("client_id", id.String()).
		Int("total_users", h.Count()).
		Msg("Client left.")
}

// PresenceMoved closes the local connection of a player whose presence another instance
// has taken over.
func (h *Hub) PresenceMoved(id user.ID) {
	c, ok := h.client(id)
	if !ok {
		return
	}
	h.logger.Warn().Str("client_id", id.String()).Msg("Player connected elsewhere. Closing local connection.")
	c.Kick(WsCloseCodeSessionKicked, "Session replaced by new connection.")
}

// Count returns the number of connected players.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Online lists the players connected to this instance.
func (h *Hub) Online() []user.User {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]user.User, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c.player.User)
	}
	return out
}

func (h *Hub) client(id user.ID) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Notify queues n on recipient's connection. Players not connected here are skipped.
func (h *Hub) Notify(_ context.Context, recipient user.ID, n notify.Notification) {
	c, ok := h.client(recipient)
	if !ok {
		h.logger.Debug().Str("client_id", recipient.String()).Msg("Notification for player not connected here.")
		return
	}
	if err := c.sendFrame(NewFrame(TypeNotification, n)); err != nil {
		c.logger.Warn().Err(err).Msg("Dropping notification.")
	}
}

// Broadcast queues n on every connection.
func (h *Hub) Broadcast(_ context.Context, n notify.Notification) {
	frame := NewFrame(TypeNotification, n)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.sendFrame(frame); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping broadcast.")
		}
	}
}

// RemoteDeliveryFailed tells the sender that a message handed to another instance was refused there.
func (h *Hub) RemoteDeliveryFailed(ctx context.Context, f transport.Failure) {
	h.logger.Info().
		Str("from", f.From.String()).
		Str("to", f.To.String()).
		Str("status", string(f.Status)).
		Msg("Remote delivery failed.")

	h.Notify(ctx, f.From, notify.Notification{
		Type:    notify.TypeError,
		Kind:    notify.KindSystem,
		From:    f.To,
		Content: failureText(f.Status),
	})
}

func failureText(status dm.Status) string {
	switch status {
	case dm.StatusBlocked:
		return "That player is not accepting your messages."
	case dm.StatusTargetDisabled:
		return "That player has direct messages turned off."
	case dm.StatusPriorityDenied:
		return "That player cannot be messaged right now."
	default:
		return "That player is no longer available."
	}
}

// Shutdown closes every connection with a going-away frame.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.logger.Info().Int("clients", len(clients)).Msg("Closing all sessions.")
	for _, c := range clients {
		c.Kick(websocket.CloseGoingAway, "Server shutting down.")
	}
}
