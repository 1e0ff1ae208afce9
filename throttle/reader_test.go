package throttle

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestReaderZeroRatePassesThrough(t *testing.T) {
	data := randomBytes(t, 64*1024)
	r := NewReader(bytes.NewReader(data), 0, 0)

	start := time.Now()
	got, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, data, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReaderPreservesContent(t *testing.T) {
	data := randomBytes(t, 10*1024)
	// Fast enough that the test stays quick, slow enough to exercise the
	// token accounting across many refills.
	r := NewReader(bytes.NewReader(data), 1<<20, 2048)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReaderEnforcesRate(t *testing.T) {
	const (
		size   = 6 * 1024
		rate   = 16 * 1024
		bucket = MinBucketSize
	)
	data := randomBytes(t, size)
	r := NewReader(bytes.NewReader(data), rate, bucket)

	start := time.Now()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)

	// The bucket starts full, so size-bucket bytes must be earned at the
	// configured rate.
	minElapsed := time.Duration(float64(size-bucket) / float64(rate) * float64(time.Second))
	assert.GreaterOrEqual(t, time.Since(start), minElapsed-20*time.Millisecond)
}

func TestReaderSmallBucketIsRaised(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), 100, 1)
	assert.Equal(t, int64(MinBucketSize), r.bucketSize)
}

func TestReaderCloseWakesBlockedRead(t *testing.T) {
	data := randomBytes(t, 4*1024)
	// 5 B/s: once the initial bucket is spent the next read would block
	// for minutes.
	r := NewReader(bytes.NewReader(data), 5, MinBucketSize)

	buf := make([]byte, len(data))
	n, err := io.ReadFull(r, buf[:MinBucketSize])
	require.NoError(t, err)
	require.Equal(t, MinBucketSize, n)

	go func() {
		time.Sleep(50 * time.Millisecond)
		r.Close()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(buf[MinBucketSize:])
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestReaderCloseClosesInner(t *testing.T) {
	inner := &closeRecorder{Reader: bytes.NewReader(nil)}
	r := NewReader(inner, 0, 0)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, inner.closes)
}

type closeRecorder struct {
	io.Reader
	closes int
}

func (c *closeRecorder) Close() error {
	c.closes++
	return nil
}

func TestReaderContentProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("throttling never alters the bytes", prop.ForAll(
		func(data []byte, bucket int) bool {
			r := NewReader(bytes.NewReader(data), 10<<20, int64(bucket))
			got, err := io.ReadAll(r)
			if err != nil {
				return false
			}
			return bytes.Equal(data, got)
		},
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(0, 8192),
	))

	properties.TestingRun(t)
}
