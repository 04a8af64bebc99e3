package ratelimit

import (
	"context"
	"sync"
	"time"
)

// idleTTL is how long an untouched bucket survives before the next sweep
// drops it. Subscribers come and go; without eviction the bucket map grows
// with every subscriber ever dispatched to.
const idleTTL = 10 * time.Minute

// Limiter implements token bucket rate limiting per subscriber.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens    float64
	lastFill  time.Time
	rateLimit float64 // tokens per second
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Allow checks whether a subscriber is allowed to proceed.
// A rateLimit of 0 means unlimited (always returns true).
func (l *Limiter) Allow(subscriberID string, rateLimit int) bool {
	if rateLimit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictIdle(time.Now())
	b := l.getOrCreateBucket(subscriberID, float64(rateLimit))
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until the rate limit allows the request or the context is cancelled.
// A rateLimit of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, subscriberID string, rateLimit int) error {
	if rateLimit <= 0 {
		return nil
	}

	for {
		if l.Allow(subscriberID, rateLimit) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Second) / float64(rateLimit))):
			// Try again after estimated wait.
		}
	}
}

// Reset clears the rate limit state for a subscriber.
func (l *Limiter) Reset(subscriberID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, subscriberID)
}

// evictIdle drops buckets whose last fill is older than idleTTL. Runs at
// most once per idleTTL so the full-map scan stays off the hot path.
// Caller holds l.mu.
func (l *Limiter) evictIdle(now time.Time) {
	if now.Sub(l.lastSweep) < idleTTL {
		return
	}
	l.lastSweep = now
	for id, b := range l.buckets {
		if now.Sub(b.lastFill) >= idleTTL {
			delete(l.buckets, id)
		}
	}
}

func (l *Limiter) getOrCreateBucket(subscriberID string, rateLimit float64) *bucket {
	b, ok := l.buckets[subscriberID]
	if !ok {
		b = &bucket{
			tokens:    rateLimit, // start full
			lastFill:  time.Now(),
			rateLimit: rateLimit,
		}
		l.buckets[subscriberID] = b
	}
	return b
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rateLimit
	if b.tokens > b.rateLimit {
		b.tokens = b.rateLimit // cap at burst size = rate limit
	}
	b.lastFill = now
}
