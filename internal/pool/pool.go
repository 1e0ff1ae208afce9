// Package pool provides object pooling using sync.Pool.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool with hit-rate accounting.
type Pool[T any] struct {
	pool    sync.Pool
	newFunc func() T
	reset   func(*T)

	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewPool creates a pool. resetFunc, when non-nil, scrubs an object before
// it goes back into the pool.
func NewPool[T any](newFunc func() T, resetFunc func(*T)) *Pool[T] {
	p := &Pool[T]{
		newFunc: newFunc,
		reset:   resetFunc,
	}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// Stats contains pool counters.
type Stats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate is the fraction of Gets served without allocating.
func (s Stats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// readBufSize matches the chunk size streaming decoders consume.
const readBufSize = 8192

var readBuffers = NewPool(
	func() *[]byte {
		b := make([]byte, readBufSize)
		return &b
	},
	nil,
)

// GetReadBuffer borrows a fixed-size read buffer. Return it with
// PutReadBuffer when the stream that used it finishes.
func GetReadBuffer() *[]byte {
	return readBuffers.Get()
}

// PutReadBuffer returns a buffer obtained from GetReadBuffer.
func PutReadBuffer(b *[]byte) {
	if b != nil {
		readBuffers.Put(b)
	}
}
