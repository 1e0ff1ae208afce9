package b2go

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driftware/b2go/auth"
	"github.com/driftware/b2go/config"
	"github.com/driftware/b2go/internal/metrics"
	"github.com/driftware/b2go/throttle"
	"github.com/driftware/b2go/transport"
	"github.com/driftware/b2go/types"
)

const (
	// DefaultAuthEndpoint is the production account-authorization host.
	DefaultAuthEndpoint = "https://api.backblazeb2.com"

	apiPath = "/b2api/v2/"
)

// Client talks to the B2 API. It is safe for concurrent use; authorization
// is cached and refreshed once no matter how many goroutines hit an
// expired token at the same time.
type Client struct {
	http      *http.Client
	creds     auth.Credentials
	source    *auth.Source
	limiter   *rate.Limiter
	transfers *throttle.Group
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
	authURL   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestRate caps how many API calls per second the client issues.
func WithRequestRate(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithTransferRate caps payload bytes per second, shared across all
// concurrent uploads and downloads.
func WithTransferRate(bytesPerSecond, bucketSize int64) Option {
	return func(c *Client) {
		if bytesPerSecond > 0 {
			c.transfers = throttle.NewGroup(bytesPerSecond, bucketSize)
		}
	}
}

// WithMetrics registers Prometheus metrics under the namespace.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = metrics.NewCollector(namespace, reg, c.logger)
	}
}

// WithAuthEndpoint overrides the account-authorization host, mainly for
// tests against a local server.
func WithAuthEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.authURL = url
		}
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for per-call
// spans. The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer("b2go")
		}
	}
}

// New creates a Client for the given application key. No network activity
// happens until the first call.
func New(creds auth.Credentials, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 5 * time.Minute},
		creds:   creds,
		logger:  zap.NewNop(),
		authURL: DefaultAuthEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("b2go")
	}
	c.logger = c.logger.With(zap.String("component", "b2go"))
	c.source = auth.NewSource(c.authorizeAccount, auth.WithLogger(c.logger))
	return c
}

// NewFromConfig creates a Client from a loaded configuration. Options run
// after the configuration and may override it.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg.Account.KeyID == "" || cfg.Account.ApplicationKey == "" {
		return nil, types.ConfigError("account key_id and application_key are required")
	}
	base := []Option{
		WithAuthEndpoint(cfg.Account.AuthEndpoint),
		WithRequestRate(cfg.Request.RatePerSecond, cfg.Request.Burst),
		WithTransferRate(cfg.Transfer.RateBytesPerSecond, cfg.Transfer.BucketSizeBytes),
	}
	if cfg.HTTP.Timeout > 0 {
		base = append(base, WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}))
	}
	creds := auth.Credentials{
		KeyID:          cfg.Account.KeyID,
		ApplicationKey: cfg.Account.ApplicationKey,
	}
	return New(creds, append(base, opts...)...), nil
}

// Authorize forces an authorization round trip now instead of on the first
// API call, and returns the resulting authorization.
func (c *Client) Authorize(ctx context.Context) (*auth.Authorization, error) {
	return c.source.Authorization(ctx)
}

// ProvideAuthorization installs an authorization obtained elsewhere, for
// callers that persist tokens across processes.
func (c *Client) ProvideAuthorization(a *auth.Authorization) {
	c.source.Provide(a)
}

// authorizeAccount is the refresh function behind the auth source.
func (c *Client) authorizeAccount(ctx context.Context) (*auth.Authorization, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.authURL+apiPath+"b2_authorize_account", nil)
	if err != nil {
		return nil, types.TransportError(err)
	}
	req.Header.Set("Authorization", c.creds.BasicAuth())
	a, err := transport.DecodeOnce[auth.Authorization](ctx, c.exchange(req))
	if err != nil {
		c.metrics.RecordAuthRefresh(refreshOutcome(err))
		return nil, err
	}
	c.metrics.RecordAuthRefresh("success")
	return &a, nil
}

func refreshOutcome(err error) string {
	if types.GetErrorCode(err) == types.ErrAborted {
		return "aborted"
	}
	return "failure"
}

// exchange binds a prepared request to the client's HTTP transport.
func (c *Client) exchange(req *http.Request) transport.Exchange {
	return transport.ExchangeFunc(func(ctx context.Context) (*http.Response, error) {
		return c.http.Do(req.WithContext(ctx))
	})
}

// apiExchange defers the whole request construction until the exchange is
// resolved: the rate limiter, the cached (or freshly fetched) authorization,
// and only then the HTTP round trip. The token actually used is written to
// usedToken so the caller can invalidate exactly that token on an
// authorization failure.
func (c *Client) apiExchange(op string, body any, usedToken *string) transport.Exchange {
	return transport.ExchangeFunc(func(ctx context.Context) (*http.Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		a, err := c.source.Authorization(ctx)
		if err != nil {
			return nil, err
		}
		*usedToken = a.Token

		payload, err := json.Marshal(body)
		if err != nil {
			return nil, types.TransportError(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.APIURL+apiPath+op, bytes.NewReader(payload))
		if err != nil {
			return nil, types.TransportError(err)
		}
		req.Header.Set("Authorization", a.Token)
		req.Header.Set("Content-Type", "application/json")
		requestID := uuid.NewString()
		req.Header.Set("X-Request-ID", requestID)
		c.logger.Debug("api request",
			zap.String("operation", op),
			zap.String("request_id", requestID))
		return c.http.Do(req)
	})
}

// call performs one JSON-in, JSON-out API operation.
func call[T any](ctx context.Context, c *Client, op string, body any) (T, error) {
	var zero T
	ctx, span := c.tracer.Start(ctx, "b2."+op)
	defer span.End()

	start := time.Now()
	var usedToken string
	v, err := transport.DecodeOnce[T](ctx, c.apiExchange(op, body, &usedToken))
	c.observe(op, usedToken, start, err)
	if err != nil {
		span.RecordError(err)
		return zero, err
	}
	return v, nil
}

// observe records the call outcome and invalidates the authorization when
// the failure indicates the token is no longer usable.
func (c *Client) observe(op, token string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		if code := types.GetErrorCode(err); code != "" {
			status = string(code)
		} else {
			status = "error"
		}
		if token != "" && types.ShouldReauthorize(err) {
			c.source.MarkExpired(token)
		}
		c.logger.Warn("api call failed",
			zap.String("operation", op), zap.Error(err))
	}
	c.metrics.RecordAPICall(op, status, time.Since(start))
}

// Stream yields list elements one at a time as the response body arrives.
// It belongs to one goroutine; Close releases the connection early.
type Stream[T any] struct {
	inner *transport.Stream[T]
	c     *Client
	op    string
	token *string
	start time.Time
	done  bool
}

func newStream[T any](c *Client, op string, body any, level int) *Stream[T] {
	token := new(string)
	return &Stream[T]{
		inner: transport.DecodeStream[T](c.apiExchange(op, body, token), level),
		c:     c,
		op:    op,
		token: token,
		start: time.Now(),
	}
}

// failedStream reports a pre-flight error through the stream interface, so
// list methods have a single error path.
func failedStream[T any](c *Client, op string, err error) *Stream[T] {
	return &Stream[T]{
		inner: transport.DecodeStream[T](transport.FailedExchange(err), 1),
		c:     c,
		op:    op,
		token: new(string),
		start: time.Now(),
	}
}

// Next returns the next element, (zero, false, nil) at the clean end of the
// stream, or an error. Calling Next again after the stream finished panics.
func (s *Stream[T]) Next(ctx context.Context) (T, bool, error) {
	v, ok, err := s.inner.Next(ctx)
	if ok {
		s.c.metrics.RecordStreamElement(s.op)
		return v, true, nil
	}
	if !s.done {
		s.done = true
		s.c.observe(s.op, *s.token, s.start, err)
	}
	return v, false, err
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Close releases the underlying connection without draining the stream.
func (s *Stream[T]) Close() error {
	s.done = true
	return s.inner.Close()
}
