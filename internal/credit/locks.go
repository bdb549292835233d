package credit

import (
	"context"
	"sync"
	"time"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
)

// KeyedMutex provides per-counselor mutual exclusion. Debits for different
// counselors proceed fully in parallel; only operations on the same key
// serialize. There is deliberately no global lock.
type KeyedMutex struct {
	mu      sync.Mutex
	slots   map[int64]*slot
	maxWait time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates a keyed mutex whose Acquire waits at most maxWait.
func NewKeyedMutex(maxWait time.Duration) *KeyedMutex {
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &KeyedMutex{
		slots:   make(map[int64]*slot),
		maxWait: maxWait,
	}
}

// Acquire takes the lock for key, returning a release function. A caller
// that cannot get the lock within the configured wait (or before ctx is
// done) fails closed with ErrBusy; the caller retries with the same
// cumulative snapshot, which the coordinator makes safe.
func (m *KeyedMutex) Acquire(ctx context.Context, key int64) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			m.put(key, s)
		}, nil
	case <-timer.C:
		m.put(key, s)
		return nil, ledger.ErrBusy
	case <-ctx.Done():
		m.put(key, s)
		return nil, ledger.ErrBusy
	}
}

// put drops one reference to the slot and frees it when nobody is waiting,
// so the map does not grow with every counselor ever seen.
func (m *KeyedMutex) put(key int64, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}
