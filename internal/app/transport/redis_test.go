package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickychat/internal/app/dm"
)

const waitFor = 2 * time.Second

func (s *stubReceiver) counts() (direct, channel, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.direct), len(s.channel), len(s.failures)
}

func (s *stubReceiver) failureList() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Failure(nil), s.failures...)
}

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

// subscribers returns how many connections listen on topic.
func subscribers(client *redis.Client, topic string) int64 {
	counts, err := client.PubSubNumSub(context.Background(), topic).Result()
	if err != nil {
		return 0
	}
	return counts[topic]
}

// startAdapter runs an adapter for instance until the test ends and waits for its
// subscriptions to be in place.
func startAdapter(t *testing.T, client *redis.Client, instance string, recv *stubReceiver) *Redis {
	t.Helper()
	adapter := NewRedis(client, instance)
	adapter.Bind(recv, recv, recv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- adapter.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return subscribers(client, adapter.nodeTopic(instance)) > 0
	}, waitFor, 10*time.Millisecond)
	return adapter
}

func TestRedisDirectDelivered(t *testing.T) {
	_, client := newRedisClient(t)
	origin := &stubReceiver{}
	target := &stubReceiver{status: dm.StatusDeliveredLocal}
	alpha := startAdapter(t, client, "alpha", origin)
	startAdapter(t, client, "beta", target)
	from, to := uuid.New(), uuid.New()

	require.NoError(t, alpha.DeliverRemote(context.Background(), "beta", from, to, "hello"))

	require.Eventually(t, func() bool {
		direct, _, _ := target.counts()
		return direct == 1
	}, waitFor, 10*time.Millisecond)
	target.mu.Lock()
	assert.Equal(t, Envelope{From: from, To: to, Content: "hello"}, target.direct[0])
	target.mu.Unlock()

	assert.Never(t, func() bool {
		_, _, failures := origin.counts()
		return failures > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestRedisRefusalComesBackAsFailure(t *testing.T) {
	_, client := newRedisClient(t)
	origin := &stubReceiver{}
	alpha := startAdapter(t, client, "alpha", origin)
	startAdapter(t, client, "beta", &stubReceiver{status: dm.StatusBlocked})
	from, to := uuid.New(), uuid.New()

	require.NoError(t, alpha.DeliverRemote(context.Background(), "beta", from, to, "hello"))

	require.Eventually(t, func() bool {
		_, _, failures := origin.counts()
		return failures == 1
	}, waitFor, 10*time.Millisecond)

	f := origin.failureList()[0]
	assert.Equal(t, dm.StatusBlocked, f.Status)
	assert.Equal(t, from, f.From)
	assert.Equal(t, to, f.To)
}

func TestRedisUnsubscribedInstanceReportsUnavailable(t *testing.T) {
	_, client := newRedisClient(t)
	origin := &stubReceiver{}
	alpha := startAdapter(t, client, "alpha", origin)
	from, to := uuid.New(), uuid.New()

	require.NoError(t, alpha.DeliverRemote(context.Background(), "gamma", from, to, "anyone?"))

	require.Eventually(t, func() bool {
		_, _, failures := origin.counts()
		return failures == 1
	}, waitFor, 10*time.Millisecond)

	f := origin.failureList()[0]
	assert.Equal(t, dm.StatusTargetUnavailable, f.Status)
	assert.Equal(t, from, f.From)
	assert.Equal(t, to, f.To)
}

func TestRedisPublishErrorReportsUnavailable(t *testing.T) {
	server, client := newRedisClient(t)
	origin := &stubReceiver{}
	adapter := NewRedis(client, "alpha")
	adapter.Bind(nil, nil, origin)
	from, to := uuid.New(), uuid.New()

	server.Close()
	adapter.publish(context.Background(), outgoing{
		topic: adapter.nodeTopic("beta"),
		env:   adapter.newDirect(from, to, "hello"),
	})
	adapter.publish(context.Background(), outgoing{
		topic: adapter.broadcastTopic(),
		env:   adapter.newChannel(uuid.New(), from, "hello"),
	})

	failures := origin.failureList()
	require.Len(t, failures, 1)
	assert.Equal(t, dm.StatusTargetUnavailable, failures[0].Status)
	assert.Equal(t, to, failures[0].To)
}

func TestRedisStopReportsQueuedDirectMessages(t *testing.T) {
	_, client := newRedisClient(t)
	origin := &stubReceiver{}
	adapter := NewRedis(client, "alpha")
	adapter.Bind(nil, nil, origin)

	require.NoError(t, adapter.DeliverRemote(context.Background(), "beta", uuid.New(), uuid.New(), "one"))
	require.NoError(t, adapter.BroadcastChannel(context.Background(), uuid.New(), uuid.New(), "two"))
	adapter.drain(context.Background())

	_, _, failures := origin.counts()
	assert.Equal(t, 1, failures)
	assert.Empty(t, adapter.outbox)
}

func TestRedisBroadcastSkipsOrigin(t *testing.T) {
	_, client := newRedisClient(t)
	origin, peer := &stubReceiver{}, &stubReceiver{}
	alpha := startAdapter(t, client, "alpha", origin)
	startAdapter(t, client, "beta", peer)
	require.Eventually(t, func() bool {
		return subscribers(client, alpha.broadcastTopic()) == 2
	}, waitFor, 10*time.Millisecond)
	channel, from := uuid.New(), uuid.New()

	require.NoError(t, alpha.BroadcastChannel(context.Background(), channel, from, "all hands"))

	require.Eventually(t, func() bool {
		_, got, _ := peer.counts()
		return got == 1
	}, waitFor, 10*time.Millisecond)
	peer.mu.Lock()
	assert.Equal(t, Envelope{Channel: channel, From: from, Content: "all hands"}, peer.channel[0])
	peer.mu.Unlock()

	_, got, _ := origin.counts()
	assert.Zero(t, got)
}
