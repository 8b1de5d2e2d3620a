// Package engine is the public entry point of the matching core. It
// owns the instrument-to-book registry, enforces the
// lock-then-mutate-then-release protocol around every book mutation,
// and publishes trade side effects without blocking callers.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"simex/domain/book"
	"simex/engine/events"
	"simex/engine/lock"
	"simex/infra/memory"
	"simex/infra/sequence"
)

// OrderRequest is the synchronous input contract.
type OrderRequest struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
	UserID   string `json:"userId,omitempty"`
}

// Result is the synchronous output contract. Per-match detail travels
// only via published events.
type Result struct {
	OrderID   string `json:"orderId"`
	Success   bool   `json:"success"`
	Matches   int    `json:"matches"`
	Remaining int64  `json:"remaining"`
	Err       string `json:"error,omitempty"`
}

// Notification is the payload of "notification" events.
type Notification struct {
	Type string `json:"type"`
	book.Trade
}

// SymbolSnapshot is one instrument's view in a market snapshot.
// Pointer fields are nil for instruments that have no book yet.
type SymbolSnapshot struct {
	Symbol  string      `json:"symbol"`
	BestBid *int64      `json:"bestBid"`
	BestAsk *int64      `json:"bestAsk"`
	Depth   *book.Depth `json:"depth"`
}

// CoreStats are the engine-level counters.
type CoreStats struct {
	OrdersProcessed uint64 `json:"ordersProcessed"`
	TradesExecuted  uint64 `json:"tradesExecuted"`
	TotalVolume     int64  `json:"totalVolume"`
}

// Stats aggregates engine, lock and event-queue statistics.
type Stats struct {
	Engine  CoreStats    `json:"engine"`
	Locks   lock.Stats   `json:"locks"`
	Events  events.Stats `json:"events"`
	Symbols int          `json:"symbols"`
}

type Engine struct {
	mu    sync.RWMutex
	books map[string]*book.OrderBook

	locks *lock.Manager
	queue *events.Queue
	seq   *sequence.Sequencer
	pool  *memory.Pool[book.Order]
	log   *zap.Logger

	acquireTimeout time.Duration
	depthLevels    int

	ordersProcessed atomic.Uint64
	tradesExecuted  atomic.Uint64
	totalVolume     atomic.Int64
}

type Option func(*Engine)

// WithAcquireTimeout bounds every lock acquisition; zero disables the
// bound and a stuck holder starves its instrument's queue.
func WithAcquireTimeout(d time.Duration) Option {
	return func(e *Engine) { e.acquireTimeout = d }
}

// WithDepthLevels sets the default depth of market snapshots.
func WithDepthLevels(n int) Option {
	return func(e *Engine) { e.depthLevels = n }
}

func New(log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		books:       make(map[string]*book.OrderBook),
		locks:       lock.NewManager(),
		queue:       events.NewQueue(log),
		seq:         sequence.New(0),
		pool:        memory.NewPool(func() *book.Order { return &book.Order{} }, (*book.Order).Reset),
		log:         log,
		depthLevels: 5,
	}
	for _, opt := range opts {
		opt(e)
	}

	// The engine aggregates its own trade counters off the queue, like
	// any other subscriber.
	e.queue.Subscribe(events.TypeTrade, func(payload any) {
		t, ok := payload.(book.Trade)
		if !ok {
			return
		}
		e.tradesExecuted.Add(1)
		e.totalVolume.Add(t.Qty)
	})
	return e
}

// Events exposes the queue for collaborators (notification sinks,
// websocket hubs, delivery outboxes) to subscribe on.
func (e *Engine) Events() *events.Queue { return e.queue }

// ProcessOrder validates, locks the instrument, matches, publishes one
// trade and one notification event per match, rests the residual, and
// releases the lock on every exit path.
func (e *Engine) ProcessOrder(ctx context.Context, req OrderRequest) (Result, error) {
	side, err := book.ParseSide(req.Side)
	if err != nil {
		return Result{OrderID: req.ID, Remaining: req.Quantity, Err: err.Error()}, err
	}
	o := e.pool.Get()
	o.ID = req.ID
	o.UserID = req.UserID
	o.Symbol = req.Symbol
	o.Side = side
	o.Price = req.Price
	o.Qty = req.Quantity
	if err := o.Validate(); err != nil {
		e.pool.Put(o)
		return Result{OrderID: req.ID, Remaining: req.Quantity, Err: err.Error()}, err
	}

	if e.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.acquireTimeout)
		defer cancel()
	}
	if err := e.locks.Acquire(ctx, req.Symbol); err != nil {
		e.pool.Put(o)
		return Result{OrderID: req.ID, Remaining: req.Quantity, Err: err.Error()}, err
	}
	defer e.locks.Release(req.Symbol)

	b := e.bookFor(req.Symbol)
	o.Seq = e.seq.Next()

	trades, remaining, matchErr := b.Match(o)
	for i := range trades {
		trades[i].Seq = e.seq.Next()
		e.queue.Publish(events.TypeTrade, trades[i])
		e.queue.Publish(events.TypeNotification, Notification{Type: "trade", Trade: trades[i]})
	}

	switch {
	case matchErr != nil:
		// Fills before the failure stand; the residual is rejected.
		e.pool.Put(o)
		return Result{
			OrderID:   req.ID,
			Matches:   len(trades),
			Remaining: remaining,
			Err:       matchErr.Error(),
		}, matchErr
	case remaining > 0:
		if err := b.AddOrder(o); err != nil {
			e.pool.Put(o)
			return Result{OrderID: req.ID, Matches: len(trades), Remaining: remaining, Err: err.Error()}, err
		}
	default:
		e.pool.Put(o)
	}

	e.ordersProcessed.Add(1)
	return Result{
		OrderID:   req.ID,
		Success:   true,
		Matches:   len(trades),
		Remaining: remaining,
	}, nil
}

// ProcessBatch groups orders by instrument, processes groups
// concurrently and each group sequentially, preserving price-time
// priority per instrument. Only per-instrument relative order of the
// results is guaranteed.
func (e *Engine) ProcessBatch(ctx context.Context, reqs []OrderRequest) []Result {
	var symbols []string
	groups := make(map[string][]OrderRequest)
	for _, r := range reqs {
		if _, ok := groups[r.Symbol]; !ok {
			symbols = append(symbols, r.Symbol)
		}
		groups[r.Symbol] = append(groups[r.Symbol], r)
	}

	grouped := make([][]Result, len(symbols))
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, orders []OrderRequest) {
			defer wg.Done()
			out := make([]Result, 0, len(orders))
			for _, r := range orders {
				res, _ := e.ProcessOrder(ctx, r)
				out = append(out, res)
			}
			grouped[i] = out
		}(i, groups[sym])
	}
	wg.Wait()

	results := make([]Result, 0, len(reqs))
	for _, g := range grouped {
		results = append(results, g...)
	}
	return results
}

// MarketSnapshot returns best bid/ask and bounded depth per requested
// instrument. Reads take the instrument lock so a snapshot never
// observes a book mid-mutation. Unknown instruments get nil fields.
func (e *Engine) MarketSnapshot(ctx context.Context, symbols []string, levels int) (map[string]SymbolSnapshot, error) {
	if levels <= 0 {
		levels = e.depthLevels
	}
	snap := make(map[string]SymbolSnapshot, len(symbols))
	for _, sym := range symbols {
		e.mu.RLock()
		b := e.books[sym]
		e.mu.RUnlock()
		if b == nil {
			snap[sym] = SymbolSnapshot{Symbol: sym}
			continue
		}
		if err := e.locks.Acquire(ctx, sym); err != nil {
			return nil, err
		}
		s := SymbolSnapshot{Symbol: sym}
		if q, ok := b.BestBid(); ok {
			price := q.Price
			s.BestBid = &price
		}
		if q, ok := b.BestAsk(); ok {
			price := q.Price
			s.BestAsk = &price
		}
		d := b.Depth(levels)
		s.Depth = &d
		e.locks.Release(sym)
		snap[sym] = s
	}
	return snap, nil
}

// Flush blocks until all published events have been dispatched.
func (e *Engine) Flush(ctx context.Context) error {
	return e.queue.Flush(ctx)
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	symbols := len(e.books)
	e.mu.RUnlock()
	return Stats{
		Engine: CoreStats{
			OrdersProcessed: e.ordersProcessed.Load(),
			TradesExecuted:  e.tradesExecuted.Load(),
			TotalVolume:     e.totalVolume.Load(),
		},
		Locks:   e.locks.Stats(),
		Events:  e.queue.Stats(),
		Symbols: symbols,
	}
}

// bookFor returns the instrument's book, creating it on first use.
// Callers must hold the instrument's lock.
func (e *Engine) bookFor(symbol string) *book.OrderBook {
	e.mu.RLock()
	b := e.books[symbol]
	e.mu.RUnlock()
	if b != nil {
		return b
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if b = e.books[symbol]; b == nil {
		b = book.New(symbol, e.pool)
		e.books[symbol] = b
	}
	return b
}
