package pow

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickychat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	m.Run()
}

// solve brute-forces a counter for nonce.
func solve(t *testing.T, nonce string, difficulty int) string {
	t.Helper()
	for i := 0; i < 1<<24; i++ {
		counter := strconv.Itoa(i)
		if Meets(nonce, counter, difficulty) {
			return counter
		}
	}
	t.Fatal("no solution found")
	return ""
}

// miss finds a counter that does not meet difficulty.
func miss(nonce string, difficulty int) string {
	for i := 0; ; i++ {
		counter := strconv.Itoa(i)
		if !Meets(nonce, counter, difficulty) {
			return counter
		}
	}
}

func TestRedeemOnce(t *testing.T) {
	g := NewGate(1)
	t.Cleanup(g.Close)

	c := g.Challenge()
	assert.Equal(t, 1, c.Difficulty)
	counter := solve(t, c.Nonce, c.Difficulty)

	require.NoError(t, g.Redeem(c.Nonce, counter))
	assert.ErrorIs(t, g.Redeem(c.Nonce, counter), ErrUnknownNonce)
}

func TestRedeemRejectsWeakProofAndKeepsNonce(t *testing.T) {
	g := NewGate(2)
	t.Cleanup(g.Close)

	c := g.Challenge()
	assert.ErrorIs(t, g.Redeem(c.Nonce, miss(c.Nonce, c.Difficulty)), ErrInsufficientWork)
	assert.NoError(t, g.Redeem(c.Nonce, solve(t, c.Nonce, c.Difficulty)))
}

func TestRedeemUnknownNonce(t *testing.T) {
	g := NewGate(1)
	t.Cleanup(g.Close)

	nonce := "never-issued"
	assert.ErrorIs(t, g.Redeem(nonce, solve(t, nonce, 1)), ErrUnknownNonce)
}

func TestDifficultyIsClamped(t *testing.T) {
	low, high := NewGate(0), NewGate(99)
	t.Cleanup(low.Close)
	t.Cleanup(high.Close)

	assert.Equal(t, 1, low.Difficulty())
	assert.Equal(t, MaxDifficulty, high.Difficulty())
}

func TestSweepDropsExpired(t *testing.T) {
	g := NewGate(1)
	t.Cleanup(g.Close)

	c := g.Challenge()
	assert.Equal(t, 0, g.sweep(time.Now()))
	assert.Equal(t, 1, g.sweep(time.Now().Add(NonceExpiryDuration+time.Second)))
	assert.ErrorIs(t, g.Redeem(c.Nonce, solve(t, c.Nonce, 1)), ErrUnknownNonce)
}
