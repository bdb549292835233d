package ratelimit

import "context"

// Store defines the interface for rate limit storage backends.
// MemoryStore serves single-instance deployments; RedisStore serves
// clustered ones.
type Store interface {
	// Allow checks whether a request for the counselor should be allowed.
	Allow(ctx context.Context, counselorID int64, capacity, refillRate float64) (allowed bool, remaining float64, err error)

	// Reset clears the counselor's bucket.
	Reset(ctx context.Context, counselorID int64) error

	// Close releases resources.
	Close() error
}

// Limiter rate limits billing API calls per counselor using a pluggable
// storage backend.
type Limiter struct {
	store      Store
	capacity   float64
	refillRate float64
}

// Config holds configuration for the rate limiter.
type Config struct {
	// Storage backend (optional, defaults to MemoryStore).
	Store Store

	// RequestsPerSecond is the sustained per-counselor rate.
	RequestsPerSecond float64
	// BurstSize is the per-counselor burst capacity.
	BurstSize float64
}

// NewLimiter creates a rate limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 40
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{
		store:      store,
		capacity:   cfg.BurstSize,
		refillRate: cfg.RequestsPerSecond,
	}
}

// Allow checks whether a request for the counselor should be allowed.
// Backend errors fail open: billing correctness is enforced by the ledger,
// the limiter only sheds load.
func (l *Limiter) Allow(ctx context.Context, counselorID int64) bool {
	if counselorID == 0 {
		return true
	}
	allowed, _, err := l.store.Allow(ctx, counselorID, l.capacity, l.refillRate)
	if err != nil {
		return true
	}
	return allowed
}

// Reset clears the rate limit state for a counselor.
func (l *Limiter) Reset(ctx context.Context, counselorID int64) error {
	return l.store.Reset(ctx, counselorID)
}

// Close releases the backing store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
