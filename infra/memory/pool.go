// Package memory provides typed object pooling for hot-path
// allocations. The engine recycles fully-filled orders through a Pool
// so a steady order flow does not churn the garbage collector.
// Reclamation is immediate: all book mutation is serialized by the
// per-instrument lock, so a retired order has no remaining readers.
package memory

import "sync"

// Pool is a typed object pool. The reset function is applied on Put so
// recycled objects never leak previous contents.
type Pool[T any] struct {
	p     sync.Pool
	reset func(*T)
}

func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any { return ctor() },
		},
		reset: reset,
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}
