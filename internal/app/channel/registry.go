package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickychat/internal/app/user"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/logx"
)

// maxCreateAttempts bounds the retry loop around random identifier allocation.
const maxCreateAttempts = 8

// GlobalName is the display name of the global channel.
const GlobalName = "global"

// Registry owns every Channel of this process and tracks each player's active channel.
// The global channel is inserted by NewRegistry and can never be removed.
type Registry struct {
	// mu protects channels, active and seq.
	mu sync.RWMutex

	// channels stores every Channel keyed by id.
	channels map[uuid.UUID]*Channel

	// active maps a player to the channel they currently chat in.
	active map[user.ID]*Channel

	// seq gives each inserted channel its insertion rank.
	seq int

	// global is the reserved global channel; never nil.
	global *Channel

	// newID allocates identifiers for Create.
	newID func() uuid.UUID

	// structured logger with Registry context.
	logger zerolog.Logger
}

// NewRegistry constructs a Registry holding only the global channel.
func NewRegistry() *Registry {
	r := &Registry{
		channels: make(map[uuid.UUID]*Channel),
		active:   make(map[user.ID]*Channel),
		newID:    uuid.New,
		logger:   logx.Component("ChannelRegistry"),
	}
	r.global = newChannel(GlobalID, TypeGlobal, GlobalName)
	r.insertLocked(r.global)
	return r
}

func (r *Registry) insertLocked(c *Channel) {
	c.order = r.seq
	r.seq++
	r.channels[c.id] = c
}

// Create allocates a fresh identifier and registers a new channel. Names are not unique.
// Create panics if kind is TypeGlobal; only the reserved channel is global.
func (r *Registry) Create(kind Type, name string) *Channel {
	if kind == TypeGlobal {
		panic("channel: Create called with TypeGlobal")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 1; ; attempt++ {
		id := r.newID()
		if _, taken := r.channels[id]; !taken && id != GlobalID {
			c := newChannel(id, kind, name)
			r.insertLocked(c)
			r.logger.Info().
				Str("channel_id", id.String()).
				Str("channel_type", string(kind)).
				Str("channel_name", name).
				Msg("Channel created.")
			return c
		}

		r.logger.Warn().
			Str("channel_id", id.String()).
			Int("attempt", attempt).
			Msg("Channel identifier collision. Retrying.")

		if attempt >= maxCreateAttempts {
			// a broken generator; fall back to the library one
			r.newID = uuid.New
		}
	}
}

// Restore registers a previously persisted channel under its original identifier.
// A GLOBAL channel is only accepted under GlobalID, which is always taken.
func (r *Registry) Restore(id uuid.UUID, kind Type, name string) (*Channel, error) {
	if kind == TypeGlobal && id != GlobalID {
		return nil, errs.NewError(errs.ErrMalformedChannel, id.String(), "only the reserved channel may be global")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[id]; exists {
		r.logger.Warn().Str("channel_id", id.String()).Msg("Attempted to restore existing channel.")
		return nil, errs.NewError(errs.ErrDuplicateChannel, id)
	}

	c := newChannel(id, kind, name)
	r.insertLocked(c)
	r.logger.Info().
		Str("channel_id", id.String()).
		Str("channel_type", string(kind)).
		Str("channel_name", name).
		Msg("Channel restored.")
	return c, nil
}

// Deserialize builds a channel from a parsed configuration section and restores it.
// The section carries "type" and "name"; "id" is optional and defaults to key.
func (r *Registry) Deserialize(key string, section map[string]any) (*Channel, error) {
	rawID := key
	if v, ok := section["id"]; ok {
		s, isString := v.(string)
		if !isString {
			return nil, errs.NewError(errs.ErrMalformedChannel, key, "id must be a string")
		}
		rawID = s
	}
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, errs.NewError(errs.ErrMalformedChannel, key, fmt.Sprintf("invalid id %q", rawID))
	}

	rawType, err := requireString(section, "type")
	if err != nil {
		return nil, errs.NewError(errs.ErrMalformedChannel, key, err.Error())
	}
	kind, err := ParseType(rawType)
	if err != nil {
		return nil, errs.NewError(errs.ErrMalformedChannel, key, err.Error())
	}

	name, err := requireString(section, "name")
	if err != nil {
		return nil, errs.NewError(errs.ErrMalformedChannel, key, err.Error())
	}

	return r.Restore(id, kind, name)
}

func requireString(section map[string]any, field string) (string, error) {
	v, ok := section[field]
	if !ok || v == nil {
		return "", fmt.Errorf("missing %s", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", field)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	return s, nil
}

// Global returns the global channel.
func (r *Registry) Global() *Channel {
	return r.global
}

// Remove unregisters the channel with the given id. It returns false for the global
// channel and for unknown ids. Players chatting in a removed channel fall back to global.
func (r *Registry) Remove(id uuid.UUID) bool {
	if id == GlobalID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.channels[id]
	if !ok {
		return false
	}
	delete(r.channels, id)

	for player, current := range r.active {
		if current == c {
			delete(r.active, player)
		}
	}

	r.logger.Info().Str("channel_id", id.String()).Msg("Channel removed.")
	return true
}

// Get looks up a channel by id.
func (r *Registry) Get(id uuid.UUID) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	return c, ok
}

// PlayerChannel returns the player's active channel, defaulting to global.
func (r *Registry) PlayerChannel(id user.ID) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.active[id]; ok {
		return c
	}
	return r.global
}

// SetPlayerChannel makes the channel with channelID the player's active channel and
// adds the player to its members. The previous channel keeps the player as a member.
func (r *Registry) SetPlayerChannel(id user.ID, channelID uuid.UUID) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.channels[channelID]
	if !ok {
		return nil, errs.NewError(errs.ErrChannelNotFound)
	}

	c.Join(id)
	if c.IsGlobal() {
		delete(r.active, id)
	} else {
		r.active[id] = c
	}
	return c, nil
}

// ForgetPlayer drops the player's active channel and every membership they hold.
func (r *Registry) ForgetPlayer(id user.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, id)
	for _, c := range r.channels {
		c.Leave(id)
	}
}

// Channels returns a snapshot of every channel in insertion order.
func (r *Registry) Channels() []*Channel {
	r.mu.RLock()
	out := make([]*Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}
