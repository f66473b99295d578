/*
Package dm routes direct messages between players.

The Router is the central coordinator of the messaging core. For every send it resolves the
target, applies the recipient's policy (direct-message toggle, priority tier, block set), asks
the directory where the recipient is connected, and either notifies them in process or hands
the message to the cluster transport. Successful deliveries link both players as each
other's last contact so either side can reply.

This file defines the Router and its send/receive paths; passthroughs.go holds the
per-player state operations exposed alongside it.
*/
package dm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"stickychat/internal/app/data"
	"stickychat/internal/app/directory"
	"stickychat/internal/app/notify"
	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/metrics"
)

// Transport hands a direct message to the instance holding the recipient's connection.
// It must not wait for the remote side to acknowledge.
type Transport interface {
	DeliverRemote(ctx context.Context, instance string, from, to user.ID, content string) error
}

// Options tunes the admission policy.
type Options struct {
	// Threshold is the highest recipient priority that still accepts direct messages.
	Threshold priority.Level

	// HideBlocks reports BLOCKED outcomes as TARGET_UNAVAILABLE so a sender cannot
	// find out whether they are blocked.
	HideBlocks bool
}

// DefaultOptions admits recipients up to the Direct tier and reports blocks as such.
func DefaultOptions() Options {
	return Options{Threshold: priority.Direct}
}

// Router routes direct messages for one instance.
type Router struct {
	// store owns the per-player state; the router only borrows it.
	store *data.Store

	dir       directory.Directory
	transport Transport
	sink      notify.Sink
	opts      Options

	// structured logger with Router context.
	logger zerolog.Logger
}

// NewRouter wires a Router. transport may be nil on a single-instance deployment, in
// which case REMOTE targets are treated as unavailable.
func NewRouter(store *data.Store, dir directory.Directory, transport Transport, sink notify.Sink, opts Options) *Router {
	return &Router{
		store:     store,
		dir:       dir,
		transport: transport,
		sink:      sink,
		opts:      opts,
		logger:    logx.Component("Router"),
	}
}

// Send routes content from one player to a target. Non-delivery outcomes are reported
// through the Result status; the error is reserved for infrastructure failures.
func (r *Router) Send(ctx context.Context, from user.ID, to Target, content string) (Result, error) {
	res, err := r.send(ctx, from, to, content)
	if err != nil {
		r.logger.Error().Err(err).Str("from", from.String()).Msg("Direct message routing failed.")
		return Result{}, err
	}

	metrics.DirectMessage("send", string(res.Status))
	r.logger.Debug().
		Str("from", from.String()).
		Str("to", res.Target.String()).
		Str("status", string(res.Status)).
		Msg("Direct message routed.")
	return res, nil
}

// Reply sends content to the sender's last contact.
func (r *Router) Reply(ctx context.Context, from user.ID, content string) (Result, error) {
	return r.Send(ctx, from, Last, content)
}

func (r *Router) send(ctx context.Context, from user.ID, to Target, content string) (Result, error) {
	sender, err := r.store.Get(ctx, from)
	if err != nil {
		return Result{}, err
	}

	target := to.id
	if to.last {
		last, ok := sender.Last()
		if !ok {
			return Result{Status: StatusTargetUnavailable}, nil
		}
		target = last
	}

	if target == from {
		return Result{Status: StatusSelfTarget, Target: target}, nil
	}

	status, recipient, loc, err := r.admit(ctx, from, target)
	if err != nil {
		return Result{}, err
	}
	if status != "" {
		return Result{Status: status, Target: target}, nil
	}

	switch loc.Kind {
	case directory.Local:
		r.sink.Notify(ctx, target, notify.Notification{
			Type:    notify.TypeInfo,
			Kind:    notify.KindDirect,
			From:    from,
			Content: content,
		})
		data.Link(sender, recipient)
		return Result{Status: StatusDeliveredLocal, Target: target}, nil

	case directory.Remote:
		if r.transport == nil {
			return Result{Status: StatusTargetUnavailable, Target: target}, nil
		}
		if err := r.transport.DeliverRemote(ctx, loc.Instance, from, target, content); err != nil {
			r.logger.Warn().
				Err(err).
				Str("to", target.String()).
				Str("instance", loc.Instance).
				Msg("Remote hand-off failed.")
			return Result{Status: StatusTargetUnavailable, Target: target}, nil
		}
		// The recipient's own instance records the sender as their last contact.
		sender.SetLast(target)
		return Result{Status: StatusDeliveredRemote, Target: target}, nil

	default:
		return Result{Status: StatusTargetUnavailable, Target: target}, nil
	}
}

// admit applies the recipient-side policy for a message from -> to. It returns an empty
// status when the message may proceed, along with the recipient's state and location.
// A recipient connected here is checked against their tracked state; any other recipient
// is checked against the persisted state and the tier published with their presence.
func (r *Router) admit(ctx context.Context, from, to user.ID) (Status, *data.Service, directory.Location, error) {
	known, err := r.dir.Exists(ctx, to)
	if err != nil {
		return "", nil, directory.Location{}, fmt.Errorf("check %s: %w", to, err)
	}
	if !known {
		return StatusTargetUnavailable, nil, directory.Location{}, nil
	}

	loc, err := r.dir.Locate(ctx, to)
	if err != nil {
		return "", nil, directory.Location{}, fmt.Errorf("locate %s: %w", to, err)
	}

	var (
		recipient *data.Service
		level     priority.Level
	)
	if loc.Kind == directory.Local {
		recipient, err = r.store.Get(ctx, to)
		if err == nil {
			level = recipient.Priority()
		}
	} else {
		recipient, err = r.store.Fresh(ctx, to)
		level = loc.Priority
	}
	if err != nil {
		return "", nil, loc, err
	}

	if !recipient.DirectMessagesEnabled() {
		return StatusTargetDisabled, recipient, loc, nil
	}
	if level.IsGreaterThan(r.opts.Threshold) {
		return StatusPriorityDenied, recipient, loc, nil
	}
	if recipient.Blocked(from) {
		if r.opts.HideBlocks {
			return StatusTargetUnavailable, recipient, loc, nil
		}
		return StatusBlocked, recipient, loc, nil
	}
	return "", recipient, loc, nil
}

// ReceiveRemote is the inbound half of a cross-instance send. The recipient's policy is
// checked again on this side before the message is shown.
func (r *Router) ReceiveRemote(ctx context.Context, from, to user.ID, content string) (Result, error) {
	res, err := r.receive(ctx, from, to, content)
	if err != nil {
		r.logger.Error().Err(err).Str("from", from.String()).Str("to", to.String()).Msg("Inbound direct message failed.")
		return Result{}, err
	}
	metrics.DirectMessage("receive", string(res.Status))
	return res, nil
}

func (r *Router) receive(ctx context.Context, from, to user.ID, content string) (Result, error) {
	if from == to {
		return Result{Status: StatusSelfTarget, Target: to}, nil
	}

	status, recipient, loc, err := r.admit(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	if status != "" {
		return Result{Status: status, Target: to}, nil
	}
	if loc.Kind != directory.Local {
		return Result{Status: StatusTargetUnavailable, Target: to}, nil
	}

	r.sink.Notify(ctx, to, notify.Notification{
		Type:    notify.TypeInfo,
		Kind:    notify.KindDirect,
		From:    from,
		Content: content,
	})
	recipient.SetLast(from)
	return Result{Status: StatusDeliveredLocal, Target: to}, nil
}

// SendSystemMessage shows content to a player connected to this instance. It bypasses
// the recipient's direct-message policy and does not touch last-contact state.
func (r *Router) SendSystemMessage(ctx context.Context, to user.ID, t notify.Type, content string) (Result, error) {
	loc, err := r.dir.Locate(ctx, to)
	if err != nil {
		return Result{}, fmt.Errorf("locate %s: %w", to, err)
	}
	if loc.Kind != directory.Local {
		metrics.DirectMessage("system", string(StatusTargetUnavailable))
		return Result{Status: StatusTargetUnavailable, Target: to}, nil
	}

	r.sink.Notify(ctx, to, notify.Notification{
		Type:    t,
		Kind:    notify.KindSystem,
		Content: content,
	})
	metrics.DirectMessage("system", string(StatusDeliveredLocal))
	return Result{Status: StatusDeliveredLocal, Target: to}, nil
}
