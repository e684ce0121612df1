package generic

import "sync"

// Pool is a typed wrapper over sync.Pool. Callers that reuse mutable
// values (scratch maps, buffers) must reset them before Put.
type Pool[T any] struct {
	pool sync.Pool
}

// NewPool builds a pool that calls generate when empty.
func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}
