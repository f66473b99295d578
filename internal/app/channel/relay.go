package channel

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickychat/internal/app/notify"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/metrics"
)

// Broadcaster forwards a channel message to the other instances of the cluster.
type Broadcaster interface {
	BroadcastChannel(ctx context.Context, channel uuid.UUID, from user.ID, content string) error
}

// Relay delivers ambient chat: a player's message goes to their active channel on this
// instance and, unless the channel is LOCAL, to the same channel on every other instance.
type Relay struct {
	registry *Registry
	sink     notify.Sink

	// cluster is nil on a single-instance deployment.
	cluster Broadcaster

	logger zerolog.Logger
}

// NewRelay constructs a Relay. cluster may be nil.
func NewRelay(registry *Registry, sink notify.Sink, cluster Broadcaster) *Relay {
	return &Relay{
		registry: registry,
		sink:     sink,
		cluster:  cluster,
		logger:   logx.Component("ChannelRelay"),
	}
}

// Say sends content to from's active channel and returns that channel.
func (r *Relay) Say(ctx context.Context, from user.ID, content string) *Channel {
	c := r.registry.PlayerChannel(from)
	c.Deliver(ctx, r.sink, from, content)
	metrics.ChannelMessage("local")

	if r.cluster != nil && c.Type() != TypeLocal {
		if err := r.cluster.BroadcastChannel(ctx, c.ID(), from, content); err != nil {
			r.logger.Warn().
				Err(err).
				Str("channel", c.ID().String()).
				Msg("Channel message not forwarded to the cluster.")
		}
	}
	return c
}

// ReceiveChannel delivers a channel message forwarded by another instance. Messages for
// channels unknown here are dropped.
func (r *Relay) ReceiveChannel(ctx context.Context, channelID uuid.UUID, from user.ID, content string) {
	c, ok := r.registry.Get(channelID)
	if !ok || c.Type() == TypeLocal {
		r.logger.Debug().Str("channel", channelID.String()).Msg("Dropping forwarded message for unknown channel.")
		return
	}
	c.Deliver(ctx, r.sink, from, content)
	metrics.ChannelMessage("cluster")
}
