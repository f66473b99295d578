package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/metrics"
)

// Hub connects Loopback adapters running in the same process. Deliveries run on their
// own goroutines so senders never wait for the receiving instance.
type Hub struct {
	mu    sync.RWMutex
	nodes map[string]*Loopback

	// inflight tracks envelopes still being handled.
	inflight sync.WaitGroup
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{nodes: make(map[string]*Loopback)}
}

// Join registers instance on the hub and returns its adapter.
func (h *Hub) Join(instance string) *Loopback {
	l := &Loopback{
		hub: h,
		dispatcher: dispatcher{
			instance: instance,
			logger:   logx.Component("LoopbackTransport").With().Str("instance", instance).Logger(),
		},
	}

	h.mu.Lock()
	h.nodes[instance] = l
	h.mu.Unlock()
	return l
}

// Leave removes instance from the hub.
func (h *Hub) Leave(instance string) {
	h.mu.Lock()
	delete(h.nodes, instance)
	h.mu.Unlock()
}

// Wait blocks until every envelope posted so far, and any ack it produced, has been handled.
func (h *Hub) Wait() {
	h.inflight.Wait()
}

func (h *Hub) node(instance string) (*Loopback, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.nodes[instance]
	return l, ok
}

func (h *Hub) post(ctx context.Context, instance string, env Envelope) error {
	node, ok := h.node(instance)
	if !ok {
		return ErrUnknownInstance
	}
	metrics.Envelope("out", string(env.Kind))

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx := context.WithoutCancel(ctx)
		if ack, ok := node.handle(ctx, env); ok {
			if err := h.post(ctx, env.Origin, ack); err != nil {
				node.logger.Warn().Err(err).Str("origin", env.Origin).Msg("Ack could not be returned.")
			}
		}
	}()
	return nil
}

// Loopback is the in-process Adapter of one instance.
type Loopback struct {
	hub *Hub
	dispatcher
}

var _ Adapter = (*Loopback)(nil)

func (l *Loopback) DeliverRemote(ctx context.Context, instance string, from, to user.ID, content string) error {
	return l.hub.post(ctx, instance, l.newDirect(from, to, content))
}

func (l *Loopback) BroadcastChannel(ctx context.Context, channel uuid.UUID, from user.ID, content string) error {
	env := l.newChannel(channel, from, content)

	l.hub.mu.RLock()
	targets := make([]string, 0, len(l.hub.nodes))
	for name := range l.hub.nodes {
		if name != l.instance {
			targets = append(targets, name)
		}
	}
	l.hub.mu.RUnlock()

	for _, name := range targets {
		if err := l.hub.post(ctx, name, env); err != nil {
			l.logger.Debug().Err(err).Str("instance", name).Msg("Instance left before broadcast.")
		}
	}
	return nil
}
