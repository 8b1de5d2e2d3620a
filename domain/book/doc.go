// Package book implements the per-instrument resting-order book and
// the price-time-priority matching algorithm. Each side of the book is
// a red-black tree of price levels, and each level is a FIFO queue of
// orders, so inserts are logarithmic and the best price is the tree
// min/max.
//
// The book has no internal locking. All mutation of a given book must
// happen while holding that instrument's lock in the engine's lock
// manager; the book itself only guarantees its ordering invariants.
package book
