package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseUncontended(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "AAPL"))
	m.Release("AAPL")

	s := m.Stats()
	assert.Equal(t, uint64(1), s.Acquisitions)
	assert.Equal(t, uint64(1), s.Releases)
	assert.Equal(t, uint64(0), s.Contentions)
	assert.Equal(t, 0, s.ActiveLocks)
	assert.Equal(t, 1, s.TotalLocks)
}

func TestMutualExclusion(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	const workers = 16
	const iters = 200
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				require.NoError(t, m.Acquire(ctx, "X"))
				counter++
				m.Release("X")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iters, counter)
	s := m.Stats()
	assert.Equal(t, s.Acquisitions, s.Releases, "lock balance after all pairs complete")
	assert.Equal(t, uint64(workers*iters), s.Acquisitions)
}

func TestFIFOGrantOrder(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "X"))

	const waiters = 8
	var mu sync.Mutex
	var granted []int
	ready := make(chan struct{}, waiters)
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ready <- struct{}{}
			require.NoError(t, m.Acquire(ctx, "X"))
			mu.Lock()
			granted = append(granted, id)
			mu.Unlock()
			m.Release("X")
		}(i)
		// Wait until the goroutine is about to queue, then give it time
		// to actually enqueue so request order is deterministic.
		<-ready
		require.Eventually(t, func() bool {
			return m.Stats().Contentions == uint64(i+1)
		}, time.Second, time.Millisecond)
	}

	m.Release("X")
	wg.Wait()

	want := make([]int, waiters)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, granted, "grants follow request order")
}

func TestAcquireTimeout(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire(context.Background(), "X"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Acquire(ctx, "X")
	require.ErrorIs(t, err, ErrAcquireTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The timed-out waiter must not inherit ownership later.
	m.Release("X")
	require.NoError(t, m.Acquire(context.Background(), "X"))
	m.Release("X")
}

func TestTimeoutSkipsWaiterPreservingOrder(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire(context.Background(), "X"))

	shortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	timedOut := make(chan error, 1)
	go func() { timedOut <- m.Acquire(shortCtx, "X") }()
	require.Eventually(t, func() bool {
		return m.Stats().Contentions == 1
	}, time.Second, time.Millisecond)

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, m.Acquire(context.Background(), "X"))
		close(acquired)
	}()
	require.Eventually(t, func() bool {
		return m.Stats().Contentions == 2
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, <-timedOut, ErrAcquireTimeout)

	m.Release("X")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("surviving waiter was never granted")
	}
	m.Release("X")
}

func TestAcquireMultipleNoDeadlock(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbols := []string{"A", "B", "C"}
			if i%2 == 1 {
				symbols = []string{"C", "B", "A"}
			}
			for j := 0; j < 100; j++ {
				require.NoError(t, m.AcquireMultiple(ctx, symbols))
				m.ReleaseMultiple(symbols)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("deadlock in AcquireMultiple")
	}

	s := m.Stats()
	assert.Equal(t, s.Acquisitions, s.Releases)
	assert.Equal(t, 0, s.ActiveLocks)
}

func TestAcquireMultipleRollsBackOnTimeout(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Acquire(context.Background(), "B"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.AcquireMultiple(ctx, []string{"A", "B"})
	require.ErrorIs(t, err, ErrAcquireTimeout)

	// A must have been released during rollback.
	require.NoError(t, m.Acquire(context.Background(), "A"))
	m.Release("A")
	m.Release("B")
}

func TestReleaseUnknownSymbolIsNoop(t *testing.T) {
	m := NewManager()
	m.Release("GHOST")
	assert.Equal(t, uint64(0), m.Stats().Releases)
}
