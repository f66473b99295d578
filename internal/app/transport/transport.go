/*
Package transport carries messages between instances of the cluster.

A direct message for a player connected elsewhere is wrapped in an Envelope and published to
the instance holding the connection. That instance runs its own recipient-side checks and
answers with an ack envelope carrying the outcome; failed outcomes are surfaced to the origin's
FailureHandler so the sender can be told. Channel messages are fanned out to every other
instance.

Two adapters share the same dispatch logic: Loopback connects instances living in one process,
Redis connects instances through Redis pub/sub.
*/
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickychat/internal/app/dm"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/metrics"
)

var (
	// ErrUnknownInstance is returned when no instance answers to the requested name.
	ErrUnknownInstance = errors.New("transport: unknown instance")

	// ErrOutboxFull is returned when the adapter cannot accept more outgoing envelopes.
	ErrOutboxFull = errors.New("transport: outbox full")
)

// Kind identifies the envelope payload.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindAck     Kind = "ack"
	KindChannel Kind = "channel"
)

// Envelope is the unit exchanged between instances.
type Envelope struct {
	Kind Kind `json:"kind"`

	// Nonce correlates an ack with the direct message it answers.
	Nonce uuid.UUID `json:"nonce"`

	// Origin is the instance that produced the envelope.
	Origin string `json:"origin"`

	From    user.ID   `json:"from"`
	To      user.ID   `json:"to,omitempty"`
	Channel uuid.UUID `json:"channel,omitempty"`
	Content string    `json:"content,omitempty"`

	// Status is the recipient-side outcome; set on acks only.
	Status dm.Status `json:"status,omitempty"`
}

// Adapter is the outbound side used by the routing core.
type Adapter interface {
	DeliverRemote(ctx context.Context, instance string, from, to user.ID, content string) error
	BroadcastChannel(ctx context.Context, channel uuid.UUID, from user.ID, content string) error
}

// DirectReceiver accepts direct messages arriving from other instances.
type DirectReceiver interface {
	ReceiveRemote(ctx context.Context, from, to user.ID, content string) (dm.Result, error)
}

// ChannelReceiver accepts channel messages arriving from other instances.
type ChannelReceiver interface {
	ReceiveChannel(ctx context.Context, channel uuid.UUID, from user.ID, content string)
}

// Failure describes a remote delivery the recipient's instance refused.
type Failure struct {
	Nonce  uuid.UUID
	From   user.ID
	To     user.ID
	Status dm.Status
}

// FailureHandler is told about remote deliveries that did not reach the recipient.
type FailureHandler interface {
	RemoteDeliveryFailed(ctx context.Context, f Failure)
}

// dispatcher routes inbound envelopes to the bound receivers.
type dispatcher struct {
	instance string

	// mu protects the receivers below.
	mu       sync.RWMutex
	direct   DirectReceiver
	channel  ChannelReceiver
	failures FailureHandler

	logger zerolog.Logger
}

// Bind attaches the inbound receivers. Any of them may be nil.
func (d *dispatcher) Bind(direct DirectReceiver, channel ChannelReceiver, failures FailureHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.direct = direct
	d.channel = channel
	d.failures = failures
}

func (d *dispatcher) newDirect(from, to user.ID, content string) Envelope {
	return Envelope{
		Kind:    KindDirect,
		Nonce:   uuid.New(),
		Origin:  d.instance,
		From:    from,
		To:      to,
		Content: content,
	}
}

func (d *dispatcher) newChannel(channel uuid.UUID, from user.ID, content string) Envelope {
	return Envelope{
		Kind:    KindChannel,
		Nonce:   uuid.New(),
		Origin:  d.instance,
		From:    from,
		Channel: channel,
		Content: content,
	}
}

// handle processes one inbound envelope and returns the ack to send back to its origin, if any.
func (d *dispatcher) handle(ctx context.Context, env Envelope) (Envelope, bool) {
	metrics.Envelope("in", string(env.Kind))

	d.mu.RLock()
	direct, channel, failures := d.direct, d.channel, d.failures
	d.mu.RUnlock()

	switch env.Kind {
	case KindDirect:
		status := dm.StatusTargetUnavailable
		if direct != nil {
			res, err := direct.ReceiveRemote(ctx, env.From, env.To, env.Content)
			if err == nil {
				status = res.Status
			}
		}
		return Envelope{
			Kind:   KindAck,
			Nonce:  env.Nonce,
			Origin: d.instance,
			From:   env.From,
			To:     env.To,
			Status: status,
		}, true

	case KindAck:
		if env.Status.Delivered() || failures == nil {
			return Envelope{}, false
		}
		failures.RemoteDeliveryFailed(ctx, Failure{
			Nonce:  env.Nonce,
			From:   env.From,
			To:     env.To,
			Status: env.Status,
		})

	case KindChannel:
		if channel != nil {
			channel.ReceiveChannel(ctx, env.Channel, env.From, env.Content)
		}

	default:
		d.logger.Warn().Str("kind", string(env.Kind)).Str("origin", env.Origin).Msg("Dropping envelope of unknown kind.")
	}
	return Envelope{}, false
}
