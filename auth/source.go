package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/driftware/b2go/types"
)

// RefreshFunc performs one account-authorization round trip.
type RefreshFunc func(ctx context.Context) (*Authorization, error)

type refreshResult struct {
	auth *Authorization
	err  error
}

// Source caches an Authorization and deduplicates refreshes. Any number of
// goroutines may call its methods concurrently; when the cache is empty, one
// caller becomes the refresh leader and everyone else waits for the leader's
// outcome. A caller that joins an in-flight refresh and then gives up (its
// context expires) never cancels the refresh for the others.
type Source struct {
	refresh RefreshFunc
	logger  *zap.Logger

	state  atomic.Pointer[Authorization]
	active atomic.Bool

	mu      sync.Mutex
	waiters []chan refreshResult
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithLogger sets the logger used for refresh lifecycle events.
func WithLogger(logger *zap.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource creates an empty Source. The first Authorization call triggers
// a refresh.
func NewSource(refresh RefreshFunc, opts ...SourceOption) *Source {
	s := &Source{
		refresh: refresh,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "auth_source"))
	return s
}

// Authorization returns the cached authorization, refreshing it first if
// the cache is empty. Concurrent callers during a refresh all receive the
// same outcome. The context bounds only this caller's wait: an in-flight
// refresh keeps running for the benefit of other callers even after ctx
// expires.
func (s *Source) Authorization(ctx context.Context) (*Authorization, error) {
	if a := s.state.Load(); a != nil {
		return a, nil
	}

	s.mu.Lock()
	// The leader may have finished between the lock-free check and here.
	if a := s.state.Load(); a != nil {
		s.mu.Unlock()
		return a, nil
	}
	w := make(chan refreshResult, 1)
	s.waiters = append(s.waiters, w)
	lead := s.active.CompareAndSwap(false, true)
	s.mu.Unlock()

	if lead {
		s.logger.Debug("starting authorization refresh")
		go s.runRefresh()
	}

	select {
	case r := <-w:
		if r.err != nil {
			return nil, r.err
		}
		return r.auth, nil
	case <-ctx.Done():
		// The buffered channel lets the leader deliver without us.
		return nil, ctx.Err()
	}
}

// MarkExpired drops the cached authorization if its token matches the one
// the caller observed failing, and kicks off a replacement refresh in the
// background without making the caller wait for it. A token mismatch means
// another goroutine already replaced the authorization; the newer one is
// left alone and no refresh starts. A refresh already in flight is joined,
// never cancelled.
func (s *Source) MarkExpired(token string) {
	cur := s.state.Load()
	if cur == nil || cur.Token != token {
		return
	}
	if !s.state.CompareAndSwap(cur, nil) {
		return
	}
	if s.active.CompareAndSwap(false, true) {
		s.logger.Debug("starting authorization refresh after expiry report")
		go s.runRefresh()
	}
}

// Provide installs an authorization obtained out of band, replacing any
// cached one.
func (s *Source) Provide(auth *Authorization) {
	s.state.Store(auth)
}

// Current returns the cached authorization without triggering a refresh,
// or nil when the cache is empty.
func (s *Source) Current() *Authorization {
	return s.state.Load()
}

// runRefresh executes one refresh as the leader. Whatever happens, including
// a panic inside the refresh function, the leadership flag is released and
// every waiter is answered; a panic surfaces to waiters as an aborted error
// rather than a hang.
func (s *Source) runRefresh() {
	var (
		auth *Authorization
		err  error
	)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("authorization refresh panicked", zap.Any("panic", r))
			auth, err = nil, types.AbortedError()
		}
		s.finish(auth, err)
	}()
	auth, err = s.refresh(context.Background())
}

func (s *Source) finish(auth *Authorization, err error) {
	s.mu.Lock()
	if err == nil {
		s.state.Store(auth)
	}
	s.active.Store(false)
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("authorization refresh failed", zap.Error(err))
	} else {
		s.logger.Debug("authorization refresh succeeded",
			zap.String("account_id", auth.AccountID))
	}
	for _, w := range waiters {
		w <- refreshResult{auth: auth, err: err}
	}
}
