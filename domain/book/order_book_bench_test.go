package book

import (
	"testing"
)

func BenchmarkAddOrder(b *testing.B) {
	bk := newTestBook()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := &Order{ID: "o", Side: Buy, Price: int64(90 + i%20), Qty: 10, Seq: uint64(i)}
		_ = bk.AddOrder(o)
	}
}

func BenchmarkMatchAgainstDeepBook(b *testing.B) {
	bk := newTestBook()
	for i := 0; i < 10_000; i++ {
		o := &Order{ID: "a", Side: Sell, Price: int64(100 + i%50), Qty: 1 << 30, Seq: uint64(i)}
		_ = bk.AddOrder(o)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := &Order{ID: "b", Side: Buy, Price: 100, Qty: 10, Seq: uint64(10_000 + i)}
		_, _, _ = bk.Match(o)
	}
}

func BenchmarkDepth(b *testing.B) {
	bk := newTestBook()
	for i := 0; i < 1_000; i++ {
		o := &Order{ID: "o", Side: Buy, Price: int64(i + 1), Qty: 10, Seq: uint64(i)}
		_ = bk.AddOrder(o)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bk.Depth(5)
	}
}
