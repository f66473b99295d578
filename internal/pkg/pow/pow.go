/*
Package pow implements the proof-of-work gate in front of anonymous session issuance.

A client asks for a challenge, searches for a counter such that the SHA-256 of nonce+counter
starts with the required number of hex zeros, and presents both when requesting a session.
Each nonce can be redeemed once.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stickychat/internal/pkg/logx"
)

const (
	// NonceExpiryDuration is the validity period for a challenge nonce.
	NonceExpiryDuration = 5 * time.Minute

	// MaxDifficulty bounds the configured difficulty; each step multiplies the client's work by 16.
	MaxDifficulty = 8

	cleanupInterval = time.Minute
)

var (
	// ErrUnknownNonce is returned for nonces that were never issued, expired, or were already redeemed.
	ErrUnknownNonce = errors.New("nonce expired or invalid")

	// ErrInsufficientWork is returned when the hash does not meet the difficulty.
	ErrInsufficientWork = errors.New("proof does not meet difficulty requirement")
)

// Challenge is handed to the client.
type Challenge struct {
	Nonce      string    `json:"nonce"`
	Difficulty int       `json:"difficulty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Gate issues and redeems challenges. It is safe for concurrent use.
type Gate struct {
	// difficulty is the required number of leading hex zeros.
	difficulty int

	// mu protects nonces.
	mu sync.Mutex

	// nonces maps outstanding nonces to their expiry.
	nonces map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGate returns a Gate requiring difficulty leading zeros, clamped to [1, MaxDifficulty],
// and starts its cleanup loop.
func NewGate(difficulty int) *Gate {
	difficulty = max(1, min(difficulty, MaxDifficulty))

	g := &Gate{
		difficulty: difficulty,
		nonces:     make(map[string]time.Time),
		stop:       make(chan struct{}),
	}
	go g.cleanUpLoop()
	return g
}

// Difficulty returns the number of leading zeros a proof needs.
func (g *Gate) Difficulty() int {
	return g.difficulty
}

// Challenge issues a fresh nonce.
func (g *Gate) Challenge() Challenge {
	nonce := uuid.NewString()
	expiresAt := time.Now().Add(NonceExpiryDuration)

	g.mu.Lock()
	g.nonces[nonce] = expiresAt
	g.mu.Unlock()

	return Challenge{Nonce: nonce, Difficulty: g.difficulty, ExpiresAt: expiresAt}
}

// Redeem checks a proof and consumes its nonce. A nonce whose proof is rejected stays
// outstanding so the client can retry until it expires.
func (g *Gate) Redeem(nonce, counter string) error {
	if !Meets(nonce, counter, g.difficulty) {
		return ErrInsufficientWork
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	expiresAt, ok := g.nonces[nonce]
	if !ok || time.Now().After(expiresAt) {
		return ErrUnknownNonce
	}
	delete(g.nonces, nonce)
	return nil
}

// Meets reports whether SHA-256(nonce+counter) starts with difficulty hex zeros.
func Meets(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// Close stops the cleanup loop.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *Gate) cleanUpLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case now := <-ticker.C:
			g.sweep(now)
		}
	}
}

// sweep drops expired nonces and returns how many were removed.
func (g *Gate) sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for nonce, expiresAt := range g.nonces {
		if now.After(expiresAt) {
			delete(g.nonces, nonce)
			removed++
		}
	}

	if removed > 0 {
		logx.Debug("Expired challenges removed.", "removed", removed, "remaining", len(g.nonces))
	}
	return removed
}
