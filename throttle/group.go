package throttle

import (
	"io"
	"sync/atomic"
	"time"
)

// Group divides one configured byte rate across every transfer that is
// actively using it. Two concurrent downloads through a 1 MB/s group each
// proceed at roughly 512 KB/s; when one finishes, the other speeds back up.
//
// A stream counts as active from its first Read until its Close.
type Group struct {
	rate       int64
	bucketSize int64
	active     atomic.Int64
}

// NewGroup creates a shared limit of rate bytes per second. A rate of 0
// makes every Reader from the group a passthrough.
func NewGroup(rate, bucketSize int64) *Group {
	if bucketSize < MinBucketSize {
		bucketSize = MinBucketSize
	}
	return &Group{rate: rate, bucketSize: bucketSize}
}

// Reader wraps inner with this group's shared limit.
func (g *Group) Reader(inner io.Reader) *Reader {
	return &Reader{
		inner:      inner,
		group:      g,
		bucketSize: g.bucketSize,
		tokens:     g.bucketSize,
		lastRefill: time.Now(),
		done:       make(chan struct{}),
	}
}

// Active returns the number of streams currently drawing on the group.
func (g *Group) Active() int64 {
	return g.active.Load()
}

// perStreamRate is the fair share for one stream right now. With a nonzero
// group rate it never returns 0, so a crowded group slows streams down but
// cannot stall them.
func (g *Group) perStreamRate() int64 {
	if g.rate <= 0 {
		return 0
	}
	n := g.active.Load()
	if n < 1 {
		n = 1
	}
	share := g.rate / n
	if share < 1 {
		share = 1
	}
	return share
}

func (g *Group) register()   { g.active.Add(1) }
func (g *Group) unregister() { g.active.Add(-1) }
