package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolReusesObjects(t *testing.T) {
	p := NewPool(
		func() *[]byte {
			b := make([]byte, 0, 32)
			return &b
		},
		func(b **[]byte) {
			**b = (**b)[:0]
		},
	)

	b := p.Get()
	*b = append(*b, 'x')
	p.Put(b)

	c := p.Get()
	assert.Empty(t, *c)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
}

func TestReadBufferRoundTrip(t *testing.T) {
	b := GetReadBuffer()
	assert.Len(t, *b, readBufSize)
	PutReadBuffer(b)
	PutReadBuffer(nil)
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{Gets: 10, News: 2}
	assert.InDelta(t, 0.8, s.HitRate(), 1e-9)
	assert.Zero(t, Stats{}.HitRate())
}
