// Package events implements the non-blocking side-effect queue that
// decouples trade notifications from the synchronous matching path.
// Publish never suspends the caller; a single drain goroutine delivers
// events in global FIFO order and a panicking handler is counted as a
// failure without stopping the loop.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler consumes one event payload. Handlers run sequentially, in
// registration order, on the drain goroutine.
type Handler func(payload any)

// Event types published by the engine.
const (
	TypeTrade        = "trade"
	TypeNotification = "notification"
)

type event struct {
	typ     string
	payload any
	at      time.Time
}

// Queue is an unbounded FIFO of events with at most one drain running
// at a time.
type Queue struct {
	mu       sync.Mutex
	items    []event
	draining bool
	idle     *sync.Cond // signalled when the queue empties

	hmu      sync.RWMutex
	handlers map[string][]Handler

	published atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64

	log *zap.Logger
}

// Stats is a point-in-time report of queue activity.
type Stats struct {
	Published   uint64 `json:"published"`
	Processed   uint64 `json:"processed"`
	Failed      uint64 `json:"failed"`
	QueueLength int    `json:"queueLength"`
	Draining    bool   `json:"draining"`
}

func NewQueue(log *zap.Logger) *Queue {
	q := &Queue{
		handlers: make(map[string][]Handler),
		log:      log,
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Subscribe registers a handler for an event type. All handlers for a
// type are invoked per event, in registration order.
func (q *Queue) Subscribe(eventType string, h Handler) {
	q.hmu.Lock()
	q.handlers[eventType] = append(q.handlers[eventType], h)
	q.hmu.Unlock()
}

// Publish appends an event and returns immediately. If no drain is
// running, one is started.
func (q *Queue) Publish(eventType string, payload any) {
	q.mu.Lock()
	q.items = append(q.items, event{typ: eventType, payload: payload, at: time.Now()})
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()
	q.published.Add(1)
	if start {
		go q.drain()
	}
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		e := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.dispatch(e)
		q.processed.Add(1)
	}
}

func (q *Queue) dispatch(e event) {
	q.hmu.RLock()
	handlers := q.handlers[e.typ]
	q.hmu.RUnlock()
	for _, h := range handlers {
		q.invoke(e, h)
	}
}

func (q *Queue) invoke(e event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			if q.log != nil {
				q.log.Warn("event handler panicked",
					zap.String("type", e.typ),
					zap.Any("panic", r),
				)
			}
		}
	}()
	h(e.payload)
}

// Flush blocks until the queue is empty and no drain is running, or
// ctx expires. Used for graceful shutdown and in tests.
func (q *Queue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.mu.Lock()
		for len(q.items) > 0 || q.draining {
			q.idle.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The waiter goroutine exits on the next empty-queue broadcast.
		return ctx.Err()
	}
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	length := len(q.items)
	draining := q.draining
	q.mu.Unlock()
	return Stats{
		Published:   q.published.Load(),
		Processed:   q.processed.Load(),
		Failed:      q.failed.Load(),
		QueueLength: length,
		Draining:    draining,
	}
}
