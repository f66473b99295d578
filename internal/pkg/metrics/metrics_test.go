package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDirectMessageCountsByPathAndStatus(t *testing.T) {
	c := directMessages.WithLabelValues("send", "BLOCKED")
	before := testutil.ToFloat64(c)

	DirectMessage("send", "BLOCKED")
	DirectMessage("send", "BLOCKED")

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestEnvelopeAndChannelCounters(t *testing.T) {
	env := transportEnvelopes.WithLabelValues("in", "ack")
	ch := channelMessages.WithLabelValues("cluster")
	envBefore, chBefore := testutil.ToFloat64(env), testutil.ToFloat64(ch)

	Envelope("in", "ack")
	ChannelMessage("cluster")

	assert.Equal(t, envBefore+1, testutil.ToFloat64(env))
	assert.Equal(t, chBefore+1, testutil.ToFloat64(ch))
}

func TestActiveSessionsGauge(t *testing.T) {
	before := testutil.ToFloat64(activeSessions)

	SessionOpened()
	SessionOpened()
	SessionClosed()

	assert.Equal(t, before+1, testutil.ToFloat64(activeSessions))
	SessionClosed()
}
