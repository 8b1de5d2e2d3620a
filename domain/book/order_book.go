package book

import "simex/infra/memory"

// Quote is one aggregated price level of a depth snapshot.
type Quote struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"quantity"`
}

// Depth is a bounded best-first view of both sides of the book.
type Depth struct {
	Bids []Quote `json:"bids"`
	Asks []Quote `json:"asks"`
}

type OrderBook struct {
	symbol string
	bids   *ladder
	asks   *ladder
	pool   *memory.Pool[Order]
}

// New creates an empty book for one instrument. pool may be nil, in
// which case fully-filled makers are left to the garbage collector.
func New(symbol string, pool *memory.Pool[Order]) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   newLadder(),
		asks:   newLadder(),
		pool:   pool,
	}
}

func (b *OrderBook) Symbol() string { return b.symbol }

// Levels returns the number of populated price levels per side.
func (b *OrderBook) Levels() (bids, asks int) {
	return b.bids.Size(), b.asks.Size()
}

// AddOrder rests o in its side's ladder. The caller keeps ownership of
// partially-filled incoming orders until this call succeeds.
func (b *OrderBook) AddOrder(o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Side == Buy {
		b.bids.Upsert(o.Price).enqueue(o)
	} else {
		b.asks.Upsert(o.Price).enqueue(o)
	}
	return nil
}

// Match executes o against the opposite ladder while a cross exists.
// Executions happen at the maker's price; exhausted makers are removed
// and recycled. The unfilled quantity is returned for the caller to
// rest or drop.
//
// A cross against the submitter's own resting order stops matching and
// returns ErrSelfTrade. Trades executed before the self-cross stand;
// the remainder must not be rested.
func (b *OrderBook) Match(o *Order) ([]Trade, int64, error) {
	if err := o.Validate(); err != nil {
		return nil, o.Qty, err
	}

	var trades []Trade
	for o.Qty > 0 {
		var lvl *PriceLevel
		if o.Side == Buy {
			lvl = b.asks.Min()
			if lvl == nil || lvl.Price > o.Price {
				break
			}
		} else {
			lvl = b.bids.Max()
			if lvl == nil || lvl.Price < o.Price {
				break
			}
		}

		maker := lvl.head
		if maker.UserID != "" && maker.UserID == o.UserID {
			return trades, o.Qty, ErrSelfTrade
		}

		fill := min(o.Qty, maker.Qty)
		o.Qty -= fill
		maker.Qty -= fill
		lvl.TotalQty -= fill

		t := Trade{Symbol: b.symbol, Price: lvl.Price, Qty: fill}
		if o.Side == Buy {
			t.BuyOrderID, t.SellOrderID = o.ID, maker.ID
		} else {
			t.BuyOrderID, t.SellOrderID = maker.ID, o.ID
		}
		trades = append(trades, t)

		if maker.Qty == 0 {
			b.retire(o.Side, lvl, maker)
		}
	}
	return trades, o.Qty, nil
}

// BestBid returns the highest bid level.
func (b *OrderBook) BestBid() (Quote, bool) {
	lvl := b.bids.Max()
	if lvl == nil {
		return Quote{}, false
	}
	return Quote{Price: lvl.Price, Qty: lvl.TotalQty}, true
}

// BestAsk returns the lowest ask level.
func (b *OrderBook) BestAsk() (Quote, bool) {
	lvl := b.asks.Min()
	if lvl == nil {
		return Quote{}, false
	}
	return Quote{Price: lvl.Price, Qty: lvl.TotalQty}, true
}

// Depth returns up to levels price/quantity pairs per side, best first.
func (b *OrderBook) Depth(levels int) Depth {
	var d Depth
	if levels <= 0 {
		return d
	}
	b.bids.Descend(func(lvl *PriceLevel) bool {
		d.Bids = append(d.Bids, Quote{Price: lvl.Price, Qty: lvl.TotalQty})
		return len(d.Bids) < levels
	})
	b.asks.Ascend(func(lvl *PriceLevel) bool {
		d.Asks = append(d.Asks, Quote{Price: lvl.Price, Qty: lvl.TotalQty})
		return len(d.Asks) < levels
	})
	return d
}

// retire unlinks a fully-filled maker from the side it rested on and
// returns it to the pool. incomingSide is the side of the taker.
func (b *OrderBook) retire(incomingSide Side, lvl *PriceLevel, o *Order) {
	lvl.unlink(o)
	if lvl.head == nil {
		if incomingSide == Buy {
			b.asks.Remove(lvl.Price)
		} else {
			b.bids.Remove(lvl.Price)
		}
	}
	if b.pool != nil {
		b.pool.Put(o)
	}
}
