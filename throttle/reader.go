package throttle

import (
	"io"
	"math"
	"sync"
	"time"
)

// MinBucketSize is the smallest usable bucket. A bucket smaller than this
// would force sub-kilobyte reads and burn CPU on bookkeeping, so smaller
// configured values are raised to it.
const MinBucketSize = 1024

// Reader limits the rate at which bytes can be read from an inner reader
// using a token bucket: tokens accrue at the configured rate up to the
// bucket size, and each Read spends as many tokens as bytes it returns.
// Short idle periods earn a burst allowance bounded by the bucket size.
//
// A Reader belongs to a single goroutine. Close may be called from another
// goroutine and wakes a Read that is waiting for tokens.
type Reader struct {
	inner io.Reader
	group *Group

	rate       int64 // bytes per second; 0 disables throttling
	bucketSize int64
	tokens     int64
	lastRefill time.Time

	// mu guards the registration state, which Read and a concurrent Close
	// both touch.
	mu         sync.Mutex
	registered bool
	closed     bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewReader wraps inner with a standalone token bucket. A rate of 0 turns
// the Reader into a passthrough. The bucket size is raised to MinBucketSize
// when smaller.
func NewReader(inner io.Reader, rate, bucketSize int64) *Reader {
	if bucketSize < MinBucketSize {
		bucketSize = MinBucketSize
	}
	return &Reader{
		inner:      inner,
		rate:       rate,
		bucketSize: bucketSize,
		tokens:     bucketSize,
		lastRefill: time.Now(),
		done:       make(chan struct{}),
	}
}

// Read fills p with at most as many bytes as the bucket affords, sleeping
// until enough tokens accrue. It asks the bucket for min(len(p),
// MinBucketSize) tokens before reading, so one huge destination buffer
// cannot demand a burst larger than the guaranteed minimum.
func (r *Reader) Read(p []byte) (int, error) {
	rate := r.currentRate()
	if rate <= 0 {
		return r.inner.Read(p)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.group != nil && r.register() {
		// Registration changes the fair share for everyone.
		rate = r.currentRate()
	}

	want := int64(len(p))
	if want > MinBucketSize {
		want = MinBucketSize
	}
	for {
		r.refill(time.Now(), rate)
		if r.tokens >= want {
			break
		}
		wait := durationFor(want-r.tokens, rate)
		if !r.sleep(wait) {
			return 0, io.ErrClosedPipe
		}
		// The fair share may have shifted while sleeping.
		rate = r.currentRate()
		if rate <= 0 {
			break
		}
	}

	n := int64(len(p))
	if rate > 0 && n > r.tokens {
		n = r.tokens
	}
	read, err := r.inner.Read(p[:n])
	r.tokens -= int64(read)
	return read, err
}

// Close wakes any waiting Read, releases this stream's share of a Group,
// and closes the inner reader when it is a Closer. Safe to call more than
// once.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		r.closed = true
		if r.registered {
			r.group.unregister()
			r.registered = false
		}
		r.mu.Unlock()
		if c, ok := r.inner.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// register counts this stream against its group on the first Read. A Reader
// that was already closed never registers, so a Read racing with Close
// cannot leave a stale share behind.
func (r *Reader) register() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered || r.closed {
		return false
	}
	r.group.register()
	r.registered = true
	return true
}

func (r *Reader) currentRate() int64 {
	if r.group != nil {
		return r.group.perStreamRate()
	}
	return r.rate
}

// refill credits tokens for the time elapsed since the last refill. The
// refill clock only advances by the time actually converted into whole
// tokens, so fractional earnings carry over instead of being truncated
// away on every call.
func (r *Reader) refill(now time.Time, rate int64) {
	elapsed := now.Sub(r.lastRefill)
	if elapsed <= 0 {
		return
	}
	var add int64
	if int64(elapsed) > math.MaxInt64/rate {
		add = math.MaxInt64
	} else {
		add = int64(elapsed) * rate / int64(time.Second)
	}
	if add <= 0 {
		return
	}
	if r.tokens >= r.bucketSize-add {
		r.tokens = r.bucketSize
		r.lastRefill = now
		return
	}
	r.tokens += add
	if add > math.MaxInt64/int64(time.Second) {
		r.lastRefill = now
		return
	}
	r.lastRefill = r.lastRefill.Add(time.Duration(add * int64(time.Second) / rate))
	if r.lastRefill.After(now) {
		r.lastRefill = now
	}
}

// sleep waits for d or until the Reader is closed. It reports whether the
// Reader is still open.
func (r *Reader) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.done:
		return false
	}
}

// durationFor converts a token deficit into the wait that earns it back,
// rounding up so the subsequent refill is guaranteed to cover the deficit.
func durationFor(deficit, rate int64) time.Duration {
	d := (deficit*int64(time.Second) + rate - 1) / rate
	return time.Duration(d)
}
