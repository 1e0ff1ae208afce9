package transport

import (
	"context"
	"net/http"

	"github.com/driftware/b2go/types"
)

// Exchange is a pending HTTP exchange: it produces a response, or a
// transport error, exactly once. An *http.Request built with
// http.NewRequestWithContext and executed by an *http.Client is the usual
// implementation; tests substitute their own.
type Exchange interface {
	Do(ctx context.Context) (*http.Response, error)
}

// ExchangeFunc adapts a function to the Exchange interface.
type ExchangeFunc func(ctx context.Context) (*http.Response, error)

// Do implements Exchange.
func (f ExchangeFunc) Do(ctx context.Context) (*http.Response, error) {
	return f(ctx)
}

// FailedExchange returns an Exchange that immediately fails with err. Call
// sites that detect a request-construction error before any network activity
// use it to report the failure through the same decoding path as everything
// else.
func FailedExchange(err error) Exchange {
	return ExchangeFunc(func(context.Context) (*http.Response, error) {
		return nil, err
	})
}

// asTransportError preserves structured errors and wraps everything else as
// a transport failure.
func asTransportError(err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.TransportError(err)
}
