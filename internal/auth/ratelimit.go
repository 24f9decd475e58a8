package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter tracks a token bucket per client id. Idle entries are
// dropped after the cleanup interval to keep the map bounded.
type RateLimiter struct {
	mutex    sync.Mutex
	clients  map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	maxIdle  time.Duration
	lastSeen func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		maxIdle:  10 * time.Minute,
		lastSeen: time.Now,
	}
}

// Allow reports whether the client may proceed.
func (r *RateLimiter) Allow(clientID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.lastSeen()
	c, ok := r.clients[clientID]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[clientID] = c
	}
	c.lastSeen = now

	return c.limiter.Allow()
}

// Cleanup drops limiters idle longer than the max idle window. Called
// periodically by the server loop.
func (r *RateLimiter) Cleanup() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := r.lastSeen().Add(-r.maxIdle)
	for id, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, id)
		}
	}
}

// ActiveClients reports how many clients currently hold a limiter.
func (r *RateLimiter) ActiveClients() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.clients)
}
