/*
Package limiter provides keyed rate limiting.

It utilizes the Token Bucket algorithm (rate.Limiter) to control the event frequency per key
(a client IP address on the HTTP surface, a player identifier for direct messages) and runs
a cleanup goroutine that periodically removes idle limiters, preventing memory leaks.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/resp"
)

// cleanupInterval is how often idle limiters are swept.
const cleanupInterval = 3 * time.Minute

// Keyed implements a rate limiter with one token bucket per key.
type Keyed struct {
	// name labels the limiter in logs.
	name string

	// mu is used to protect concurrent access to the limits map.
	mu sync.RWMutex

	// limits stores the map from key to the *rate.Limiter instance.
	limits map[string]*rate.Limiter

	// r is the rate (rate.Limit) of the limiter, defining the number of events allowed per second.
	r rate.Limit

	// b is the burst size (token bucket size) of the limiter.
	b int

	// stop ends the cleanup goroutine.
	stop     chan struct{}
	stopOnce sync.Once
}

// NewKeyed creates a Keyed limiter and starts its cleanup goroutine. Close stops it.
func NewKeyed(name string, r rate.Limit, b int) *Keyed {
	k := &Keyed{
		name:   name,
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go k.cleanUpLoop()

	return k
}

// Get retrieves the limiter for key, creating it on first use.
// It uses a Double-Checked Locking pattern to ensure concurrent-safe creation of new limiters.
func (k *Keyed) Get(key string) *rate.Limiter {
	k.mu.RLock()
	limiter, exists := k.limits[key]
	k.mu.RUnlock()

	if !exists {
		k.mu.Lock()
		limiter, exists = k.limits[key]
		if !exists {
			limiter = rate.NewLimiter(k.r, k.b)
			k.limits[key] = limiter
		}
		k.mu.Unlock()
	}

	return limiter
}

// Allow reports whether one more event for key fits the rate.
func (k *Keyed) Allow(key string) bool {
	return k.Get(key).Allow()
}

// Close stops the cleanup goroutine.
func (k *Keyed) Close() {
	k.stopOnce.Do(func() { close(k.stop) })
}

func (k *Keyed) cleanUpLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			k.sweep(time.Now())
		}
	}
}

// sweep removes limiters whose bucket is full, i.e. keys idle long enough to have
// regained their whole burst.
func (k *Keyed) sweep(now time.Time) int {
	k.mu.Lock()
	count := 0
	for key, limiter := range k.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(k.limits, key)
			count++
		}
	}
	remaining := len(k.limits)
	k.mu.Unlock()

	logx.Debug("Rate limiter cleanup finished.", "limiter", k.name, "removed", count, "remaining", remaining)
	return count
}

// ClientIP extracts the remote IP of a request.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware returns an HTTP middleware that limits requests per client IP.
// If a request exceeds the limit, it responds with a 429 Too Many Requests error.
func (k *Keyed) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !k.Allow(ClientIP(r)) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
