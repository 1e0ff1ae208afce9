package throttle

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupTracksActiveStreams(t *testing.T) {
	g := NewGroup(1<<20, 2048)
	assert.Equal(t, int64(0), g.Active())

	r1 := g.Reader(bytes.NewReader(make([]byte, 10)))
	r2 := g.Reader(bytes.NewReader(make([]byte, 10)))
	// Streams only count once they start reading.
	assert.Equal(t, int64(0), g.Active())

	buf := make([]byte, 4)
	_, err := r1.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Active())

	_, err = r2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), g.Active())

	require.NoError(t, r1.Close())
	assert.Equal(t, int64(1), g.Active())
	require.NoError(t, r2.Close())
	assert.Equal(t, int64(0), g.Active())
}

func TestGroupSharesRate(t *testing.T) {
	const (
		size = 3 * 1024
		rate = 16 * 1024
	)
	g := NewGroup(rate, MinBucketSize)

	run := func(data []byte) error {
		r := g.Reader(bytes.NewReader(data))
		defer r.Close()
		got, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		if !bytes.Equal(data, got) {
			return io.ErrUnexpectedEOF
		}
		return nil
	}

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = run(make([]byte, size))
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Two streams split the rate, so each needs roughly twice as long as a
	// lone stream for the bytes beyond its initial bucket.
	minElapsed := time.Duration(float64(size-MinBucketSize) / float64(rate/2) * float64(time.Second))
	assert.GreaterOrEqual(t, elapsed, minElapsed/2)
	assert.Equal(t, int64(0), g.Active())
}

func TestGroupReaderClosedFromAnotherGoroutine(t *testing.T) {
	// 1 byte/s: the first Read drains the initial bucket, the second blocks
	// until Close wakes it from the other goroutine.
	g := NewGroup(1, MinBucketSize)
	r := g.Reader(bytes.NewReader(make([]byte, 4*MinBucketSize)))

	buf := make([]byte, MinBucketSize)
	_, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, int64(1), g.Active())

	readDone := make(chan error, 1)
	go func() {
		_, err := r.Read(buf)
		readDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case err := <-readDone:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after Close")
	}
	// Close must release the stream's share even when it races a Read.
	assert.Equal(t, int64(0), g.Active())
}

func TestGroupReaderClosedBeforeFirstRead(t *testing.T) {
	g := NewGroup(1<<20, MinBucketSize)
	r := g.Reader(bytes.NewReader(make([]byte, 10)))
	require.NoError(t, r.Close())

	// A closed reader never registers, so the group's count stays balanced.
	_, err := r.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(0), g.Active())
}

func TestGroupZeroRatePassesThrough(t *testing.T) {
	g := NewGroup(0, 0)
	data := make([]byte, 32*1024)
	r := g.Reader(bytes.NewReader(data))

	start := time.Now()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Less(t, time.Since(start), time.Second)
	require.NoError(t, r.Close())
}
