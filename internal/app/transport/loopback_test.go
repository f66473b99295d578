package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickychat/internal/app/dm"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	m.Run()
}

type stubReceiver struct {
	mu       sync.Mutex
	status   dm.Status
	err      error
	direct   []Envelope
	channel  []Envelope
	failures []Failure
}

func (s *stubReceiver) ReceiveRemote(_ context.Context, from, to user.ID, content string) (dm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = append(s.direct, Envelope{From: from, To: to, Content: content})
	return dm.Result{Status: s.status, Target: to}, s.err
}

func (s *stubReceiver) ReceiveChannel(_ context.Context, channel uuid.UUID, from user.ID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = append(s.channel, Envelope{Channel: channel, From: from, Content: content})
}

func (s *stubReceiver) RemoteDeliveryFailed(_ context.Context, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

func TestLoopbackDirectDelivered(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	alpha, beta := hub.Join("alpha"), hub.Join("beta")
	origin := &stubReceiver{}
	target := &stubReceiver{status: dm.StatusDeliveredLocal}
	alpha.Bind(origin, origin, origin)
	beta.Bind(target, target, target)
	from, to := uuid.New(), uuid.New()

	require.NoError(t, alpha.DeliverRemote(ctx, "beta", from, to, "hello"))
	hub.Wait()

	require.Len(t, target.direct, 1)
	assert.Equal(t, Envelope{From: from, To: to, Content: "hello"}, target.direct[0])
	assert.Empty(t, origin.failures)
}

func TestLoopbackRejectedDeliveryReportsFailure(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	alpha, beta := hub.Join("alpha"), hub.Join("beta")
	origin := &stubReceiver{}
	alpha.Bind(origin, origin, origin)
	beta.Bind(&stubReceiver{status: dm.StatusTargetDisabled}, nil, nil)
	from, to := uuid.New(), uuid.New()

	require.NoError(t, alpha.DeliverRemote(ctx, "beta", from, to, "hello"))
	hub.Wait()

	require.Len(t, origin.failures, 1)
	assert.Equal(t, dm.StatusTargetDisabled, origin.failures[0].Status)
	assert.Equal(t, from, origin.failures[0].From)
	assert.Equal(t, to, origin.failures[0].To)
}

func TestLoopbackReceiverErrorReportsUnavailable(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	alpha, beta := hub.Join("alpha"), hub.Join("beta")
	origin := &stubReceiver{}
	alpha.Bind(nil, nil, origin)
	beta.Bind(&stubReceiver{err: errors.New("db down")}, nil, nil)

	require.NoError(t, alpha.DeliverRemote(ctx, "beta", uuid.New(), uuid.New(), "hello"))
	hub.Wait()

	require.Len(t, origin.failures, 1)
	assert.Equal(t, dm.StatusTargetUnavailable, origin.failures[0].Status)
}

func TestLoopbackUnknownInstance(t *testing.T) {
	hub := NewHub()
	alpha := hub.Join("alpha")
	hub.Join("beta")
	hub.Leave("beta")

	err := alpha.DeliverRemote(context.Background(), "beta", uuid.New(), uuid.New(), "hello")
	assert.ErrorIs(t, err, ErrUnknownInstance)
}

func TestLoopbackBroadcastSkipsSelf(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	receivers := map[string]*stubReceiver{}
	adapters := map[string]*Loopback{}
	for _, name := range []string{"alpha", "beta", "gamma"} {
		receivers[name] = &stubReceiver{}
		adapters[name] = hub.Join(name)
		adapters[name].Bind(nil, receivers[name], nil)
	}
	channel, from := uuid.New(), uuid.New()

	require.NoError(t, adapters["alpha"].BroadcastChannel(ctx, channel, from, "all hands"))
	hub.Wait()

	assert.Empty(t, receivers["alpha"].channel)
	for _, name := range []string{"beta", "gamma"} {
		require.Len(t, receivers[name].channel, 1)
		assert.Equal(t, Envelope{Channel: channel, From: from, Content: "all hands"}, receivers[name].channel[0])
	}
}

func TestEnvelopeJSON(t *testing.T) {
	env := Envelope{
		Kind:   KindAck,
		Nonce:  uuid.New(),
		Origin: "beta",
		From:   uuid.New(),
		To:     uuid.New(),
		Status: dm.StatusBlocked,
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"ack"`)
	assert.Contains(t, string(raw), `"status":"BLOCKED"`)
	assert.NotContains(t, string(raw), `"content"`)
}

func TestUnknownKindIsDropped(t *testing.T) {
	d := &dispatcher{instance: "alpha", logger: logx.Component("test")}
	_, reply := d.handle(context.Background(), Envelope{Kind: "bogus"})
	assert.False(t, reply)
}
