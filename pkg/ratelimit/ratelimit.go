package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-client token-bucket registry. Each client gets its
// own bucket refilled at requests_per_minute/60 tokens per second with
// burst_size capacity, initially full. State is per process, not
// shared between instances.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter

	limit rate.Limit
	burst int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter registry. requestsPerMinute and burstSize must
// be positive.
func New(requestsPerMinute, burstSize int) *Limiter {
	return &Limiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burstSize,
	}
}

// Allow reports whether the client may proceed, consuming one token
// when it may.
func (l *Limiter) Allow(clientID string) bool {
	return l.limiterFor(clientID).Allow()
}

func (l *Limiter) limiterFor(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[clientID]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Prune drops clients idle for longer than maxIdle and returns how
// many were removed. Callers run this periodically to bound memory.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// ClientCount returns the number of tracked clients.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
