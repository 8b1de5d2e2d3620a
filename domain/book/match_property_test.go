package book

import (
	"sort"
	"testing"

	"pgregory.net/rapid"
)

// naiveBook is the reference oracle: plain slices re-sorted on every
// insert, matching head-first. Slow but obviously correct.
type naiveBook struct {
	bids []*Order
	asks []*Order
}

func (n *naiveBook) add(o *Order) {
	if o.Side == Buy {
		n.bids = append(n.bids, o)
		sort.SliceStable(n.bids, func(i, j int) bool {
			if n.bids[i].Price != n.bids[j].Price {
				return n.bids[i].Price > n.bids[j].Price
			}
			return n.bids[i].Seq < n.bids[j].Seq
		})
	} else {
		n.asks = append(n.asks, o)
		sort.SliceStable(n.asks, func(i, j int) bool {
			if n.asks[i].Price != n.asks[j].Price {
				return n.asks[i].Price < n.asks[j].Price
			}
			return n.asks[i].Seq < n.asks[j].Seq
		})
	}
}

func (n *naiveBook) match(o *Order) []Trade {
	var trades []Trade
	opposite := &n.asks
	if o.Side == Sell {
		opposite = &n.bids
	}
	for o.Qty > 0 && len(*opposite) > 0 {
		maker := (*opposite)[0]
		if o.Side == Buy && maker.Price > o.Price {
			break
		}
		if o.Side == Sell && maker.Price < o.Price {
			break
		}
		fill := min(o.Qty, maker.Qty)
		o.Qty -= fill
		maker.Qty -= fill
		t := Trade{Symbol: "X", Price: maker.Price, Qty: fill}
		if o.Side == Buy {
			t.BuyOrderID, t.SellOrderID = o.ID, maker.ID
		} else {
			t.BuyOrderID, t.SellOrderID = maker.ID, o.ID
		}
		trades = append(trades, t)
		if maker.Qty == 0 {
			*opposite = (*opposite)[1:]
		}
	}
	return trades
}

func (n *naiveBook) depth(levels int) Depth {
	var d Depth
	collect := func(orders []*Order, descending bool) []Quote {
		agg := make(map[int64]int64)
		for _, o := range orders {
			agg[o.Price] += o.Qty
		}
		prices := make([]int64, 0, len(agg))
		for p := range agg {
			prices = append(prices, p)
		}
		sort.Slice(prices, func(i, j int) bool {
			if descending {
				return prices[i] > prices[j]
			}
			return prices[i] < prices[j]
		})
		if len(prices) > levels {
			prices = prices[:levels]
		}
		out := make([]Quote, 0, len(prices))
		for _, p := range prices {
			out = append(out, Quote{Price: p, Qty: agg[p]})
		}
		return out
	}
	d.Bids = collect(n.bids, true)
	d.Asks = collect(n.asks, false)
	return d
}

func TestMatchAgainstNaiveOracle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New("X", nil)
		oracle := &naiveBook{}

		n := rapid.IntRange(1, 60).Draw(t, "orders")
		for i := 0; i < n; i++ {
			side := Buy
			if rapid.Bool().Draw(t, "sell") {
				side = Sell
			}
			price := rapid.Int64Range(90, 110).Draw(t, "price")
			qty := rapid.Int64Range(1, 50).Draw(t, "qty")

			o := &Order{ID: "o", Symbol: "X", Side: side, Price: price, Qty: qty, Seq: uint64(i)}
			ref := *o

			trades, remaining, err := b.Match(o)
			if err != nil {
				t.Fatalf("match failed: %v", err)
			}
			refTrades := oracle.match(&ref)

			// Conservation: fills plus remainder equal the original.
			var filled int64
			for _, tr := range trades {
				filled += tr.Qty
			}
			if filled+remaining != qty {
				t.Fatalf("conservation violated: filled=%d remaining=%d original=%d", filled, remaining, qty)
			}

			if len(trades) != len(refTrades) {
				t.Fatalf("trade count diverged: got %d want %d", len(trades), len(refTrades))
			}
			for j := range trades {
				if trades[j].Price != refTrades[j].Price || trades[j].Qty != refTrades[j].Qty {
					t.Fatalf("trade %d diverged: got %+v want %+v", j, trades[j], refTrades[j])
				}
			}

			if remaining > 0 {
				if err := b.AddOrder(o); err != nil {
					t.Fatalf("add failed: %v", err)
				}
				oracle.add(&ref)
			}

			// No standing cross.
			bid, hasBid := b.BestBid()
			ask, hasAsk := b.BestAsk()
			if hasBid && hasAsk && bid.Price >= ask.Price {
				t.Fatalf("standing cross: bid %d >= ask %d", bid.Price, ask.Price)
			}

			// Both implementations agree on the aggregated book.
			got := b.Depth(40)
			want := oracle.depth(40)
			if len(got.Bids) != len(want.Bids) || len(got.Asks) != len(want.Asks) {
				t.Fatalf("depth shape diverged: got %+v want %+v", got, want)
			}
			for j := range got.Bids {
				if got.Bids[j] != want.Bids[j] {
					t.Fatalf("bid level %d diverged: got %+v want %+v", j, got.Bids[j], want.Bids[j])
				}
			}
			for j := range got.Asks {
				if got.Asks[j] != want.Asks[j] {
					t.Fatalf("ask level %d diverged: got %+v want %+v", j, got.Asks[j], want.Asks[j])
				}
			}
		}
	})
}
