// Package lock provides per-instrument mutual exclusion with FIFO
// waiter queues. Locks serialize logical operations on one
// instrument's book while operations on different instruments proceed
// independently. Lock records are created lazily and live for the
// process lifetime.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrAcquireTimeout is returned when the caller's context expires
// while waiting in a lock's queue.
var ErrAcquireTimeout = errors.New("lock: acquire timed out")

type waiter struct {
	grant chan struct{}
}

type symbolLock struct {
	locked  bool
	waiters []*waiter
}

// Manager owns the instrument-to-lock registry.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*symbolLock

	acquisitions atomic.Uint64
	releases     atomic.Uint64
	contentions  atomic.Uint64
}

// Stats is a point-in-time report of lock activity.
type Stats struct {
	Acquisitions uint64 `json:"acquisitions"`
	Releases     uint64 `json:"releases"`
	Contentions  uint64 `json:"contentions"`
	ActiveLocks  int    `json:"activeLocks"`
	TotalLocks   int    `json:"totalLocks"`
}

func NewManager() *Manager {
	return &Manager{locks: make(map[string]*symbolLock)}
}

// Acquire blocks until the caller owns symbol's lock or ctx expires.
// Grants are strictly in request order. On expiry the waiter is pulled
// from the queue without disturbing the order of the others.
func (m *Manager) Acquire(ctx context.Context, symbol string) error {
	m.mu.Lock()
	l := m.locks[symbol]
	if l == nil {
		l = &symbolLock{}
		m.locks[symbol] = l
	}
	if !l.locked {
		l.locked = true
		m.mu.Unlock()
		m.acquisitions.Add(1)
		return nil
	}
	w := &waiter{grant: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	m.mu.Unlock()
	m.contentions.Add(1)

	select {
	case <-w.grant:
		m.acquisitions.Add(1)
		return nil
	case <-ctx.Done():
	}

	// Either remove ourselves from the queue, or — if the grant raced
	// the deadline — hand ownership straight to the next waiter.
	m.mu.Lock()
	for i, x := range l.waiters {
		if x == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			m.mu.Unlock()
			return fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
		}
	}
	l.grantNext()
	m.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
}

// Release transfers ownership to the head waiter if any, otherwise
// clears the locked flag. The lock is never observably unlocked
// between a release and the next grant.
func (m *Manager) Release(symbol string) {
	m.mu.Lock()
	l := m.locks[symbol]
	if l == nil {
		m.mu.Unlock()
		return
	}
	l.grantNext()
	m.mu.Unlock()
	m.releases.Add(1)
}

// AcquireMultiple takes several instrument locks in lexicographic
// order so that concurrent multi-instrument operations cannot
// deadlock. On failure, locks taken so far are released.
func (m *Manager) AcquireMultiple(ctx context.Context, symbols []string) error {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	for i, s := range sorted {
		if err := m.Acquire(ctx, s); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.Release(sorted[j])
			}
			return err
		}
	}
	return nil
}

// ReleaseMultiple releases the given locks; order does not matter.
func (m *Manager) ReleaseMultiple(symbols []string) {
	for _, s := range symbols {
		m.Release(s)
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	active := 0
	for _, l := range m.locks {
		if l.locked {
			active++
		}
	}
	total := len(m.locks)
	m.mu.Unlock()
	return Stats{
		Acquisitions: m.acquisitions.Load(),
		Releases:     m.releases.Load(),
		Contentions:  m.contentions.Load(),
		ActiveLocks:  active,
		TotalLocks:   total,
	}
}

// grantNext must be called with the manager mutex held.
func (l *symbolLock) grantNext() {
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next.grant)
		return
	}
	l.locked = false
}
