package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"stickychat/internal/app/dm"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/metrics"
)

const (
	defaultTopicPrefix = "stickychat:"

	// outboxSize bounds the envelopes waiting to be published.
	outboxSize = 1024
)

type outgoing struct {
	topic string
	env   Envelope
}

// Redis is the pub/sub Adapter of one instance. Each instance subscribes to its own
// topic and to the cluster broadcast topic; publishing happens on a single worker so
// callers only enqueue.
type Redis struct {
	client redis.UniversalClient
	prefix string
	outbox chan outgoing
	dispatcher
}

var _ Adapter = (*Redis)(nil)

// NewRedis returns the adapter for instance. Run must be started for envelopes to flow.
func NewRedis(client redis.UniversalClient, instance string) *Redis {
	return &Redis{
		client: client,
		prefix: defaultTopicPrefix,
		outbox: make(chan outgoing, outboxSize),
		dispatcher: dispatcher{
			instance: instance,
			logger:   logx.Component("RedisTransport").With().Str("instance", instance).Logger(),
		},
	}
}

func (r *Redis) nodeTopic(instance string) string {
	return r.prefix + "node:" + instance
}

func (r *Redis) broadcastTopic() string {
	return r.prefix + "broadcast"
}

func (r *Redis) enqueue(topic string, env Envelope) error {
	select {
	case r.outbox <- outgoing{topic: topic, env: env}:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (r *Redis) DeliverRemote(_ context.Context, instance string, from, to user.ID, content string) error {
	return r.enqueue(r.nodeTopic(instance), r.newDirect(from, to, content))
}

func (r *Redis) BroadcastChannel(_ context.Context, channel uuid.UUID, from user.ID, content string) error {
	return r.enqueue(r.broadcastTopic(), r.newChannel(channel, from, content))
}

// Run subscribes and publishes until ctx is cancelled.
func (r *Redis) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.nodeTopic(r.instance), r.broadcastTopic())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.logger.Info().Msg("Cluster transport subscribed.")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.publishLoop(ctx) })
	g.Go(func() error { return r.receiveLoop(ctx, sub.Channel()) })
	return g.Wait()
}

func (r *Redis) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx))
			return nil
		case out := <-r.outbox:
			r.publish(ctx, out)
		}
	}
}

// publish sends one envelope. A direct message that cannot be published, or that no
// instance is subscribed to receive, is reported to the FailureHandler as unavailable.
func (r *Redis) publish(ctx context.Context, out outgoing) {
	payload, err := json.Marshal(out.env)
	if err != nil {
		r.logger.Error().Err(err).Str("kind", string(out.env.Kind)).Msg("Failed to encode envelope.")
		r.undelivered(ctx, out.env)
		return
	}

	receivers, err := r.client.Publish(ctx, out.topic, payload).Result()
	if err != nil {
		r.logger.Error().Err(err).Str("topic", out.topic).Msg("Failed to publish envelope.")
		r.undelivered(ctx, out.env)
		return
	}
	if receivers == 0 && out.env.Kind != KindChannel {
		r.logger.Warn().Str("topic", out.topic).Str("kind", string(out.env.Kind)).Msg("No instance subscribed to topic.")
		r.undelivered(ctx, out.env)
		return
	}
	metrics.Envelope("out", string(out.env.Kind))
}

// drain reports the direct messages still queued when the adapter stops.
func (r *Redis) drain(ctx context.Context) {
	for {
		select {
		case out := <-r.outbox:
			r.undelivered(ctx, out.env)
		default:
			return
		}
	}
}

// undelivered tells the FailureHandler about a direct message that never reached the
// recipient's instance. Other envelopes are dropped.
func (r *Redis) undelivered(ctx context.Context, env Envelope) {
	if env.Kind != KindDirect {
		return
	}

	r.mu.RLock()
	failures := r.failures
	r.mu.RUnlock()
	if failures == nil {
		return
	}

	failures.RemoteDeliveryFailed(ctx, Failure{
		Nonce:  env.Nonce,
		From:   env.From,
		To:     env.To,
		Status: dm.StatusTargetUnavailable,
	})
}

func (r *Redis) receiveLoop(ctx context.Context, messages <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn().Err(err).Str("topic", msg.Channel).Msg("Dropping malformed envelope.")
				continue
			}
			if env.Origin == r.instance && env.Kind == KindChannel {
				continue
			}

			if ack, ok := r.handle(ctx, env); ok {
				topic := r.nodeTopic(env.Origin)
				if err := r.enqueue(topic, ack); err != nil {
					r.logger.Warn().Err(err).Str("origin", env.Origin).Msg("Outbox full. Publishing ack directly.")
					r.publish(ctx, outgoing{topic: topic, env: ack})
				}
			}
		}
	}
}
