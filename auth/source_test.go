package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftware/b2go/types"
)

func authWithToken(token string) *Authorization {
	return &Authorization{
		AccountID: "acct",
		Token:     token,
		APIURL:    "https://api.example",
	}
}

func TestSourceRefreshesOnce(t *testing.T) {
	var calls atomic.Int32
	src := NewSource(func(ctx context.Context) (*Authorization, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return authWithToken("tok-1"), nil
	})

	const n = 25
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := src.Authorization(context.Background())
			errs[i] = err
			if err == nil {
				tokens[i] = a.Token
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}

	// Cached now; no further refresh.
	_, err := src.Authorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSourceErrorFansOutAndRecovers(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("auth endpoint down")
	src := NewSource(func(ctx context.Context) (*Authorization, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return authWithToken("tok-2"), nil
	})

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = src.Authorization(context.Background())
		}()
	}
	wg.Wait()

	// Every waiter of the failing round saw the same error; the cache
	// stayed empty, so a later call retries and succeeds. Depending on
	// scheduling some goroutines may have joined the second round instead.
	var failures int
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], boom)
			failures++
		}
	}
	assert.Greater(t, failures, 0)

	a, err := src.Authorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", a.Token)
}

func TestSourceMarkExpired(t *testing.T) {
	var calls atomic.Int32
	src := NewSource(func(ctx context.Context) (*Authorization, error) {
		n := calls.Add(1)
		return authWithToken("tok-" + string(rune('0'+n))), nil
	})

	a, err := src.Authorization(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", a.Token)

	// A stale token neither evicts the current authorization nor triggers
	// a refresh.
	src.MarkExpired("tok-0")
	assert.NotNil(t, src.Current())
	assert.Equal(t, int32(1), calls.Load())

	// The current token does both; the refresh runs in the background.
	src.MarkExpired(a.Token)
	deadline := time.After(2 * time.Second)
	for {
		if cur := src.Current(); cur != nil && cur.Token == "tok-2" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("background refresh never replaced the authorization")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestSourceProvide(t *testing.T) {
	src := NewSource(func(ctx context.Context) (*Authorization, error) {
		t.Fatal("refresh must not run when an authorization was provided")
		return nil, nil
	})
	src.Provide(authWithToken("provided"))

	a, err := src.Authorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "provided", a.Token)
}

func TestSourcePanicBecomesAborted(t *testing.T) {
	var calls atomic.Int32
	src := NewSource(func(ctx context.Context) (*Authorization, error) {
		if calls.Add(1) == 1 {
			panic("refresh exploded")
		}
		return authWithToken("tok-after-panic"), nil
	})

	_, err := src.Authorization(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrAborted, types.GetErrorCode(err))

	// Leadership was released; the next call runs a fresh refresh.
	a, err := src.Authorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-after-panic", a.Token)
}

func TestSourceWaiterCancelDoesNotStopRefresh(t *testing.T) {
	release := make(chan struct{})
	src := NewSource(func(ctx context.Context) (*Authorization, error) {
		<-release
		return authWithToken("slow"), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := src.Authorization(ctx)
		done <- err
	}()

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	// The refresh keeps going and still lands in the cache.
	close(release)
	deadline := time.After(2 * time.Second)
	for src.Current() == nil {
		select {
		case <-deadline:
			t.Fatal("refresh result never cached")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.Equal(t, "slow", src.Current().Token)
}

func TestCredentialsBasicAuth(t *testing.T) {
	c := Credentials{KeyID: "id", ApplicationKey: "secret"}
	// base64("id:secret")
	assert.Equal(t, "Basic aWQ6c2VjcmV0", c.BasicAuth())
}

func TestCapabilitiesHas(t *testing.T) {
	caps := Capabilities{CapListBuckets, CapReadFiles}
	assert.True(t, caps.Has(CapReadFiles))
	assert.False(t, caps.Has(CapDeleteFiles))
}
