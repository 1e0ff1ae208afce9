package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/driftware/b2go/types"
)

// Error payloads are assumed small; anything bigger than this is truncated
// rather than buffered without bound.
const maxErrorBody = 1 << 20

// apiErrorPayload is the error body shape the service returns on non-2xx
// answers.
type apiErrorPayload struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeOnce resolves a pending exchange to a single decoded value. On a
// success status the whole body is deserialized into T; on a non-success
// status the body is deserialized as the structured API error payload and
// surfaced as a *types.Error. Transport failures from the exchange or the
// body propagate immediately.
func DecodeOnce[T any](ctx context.Context, ex Exchange) (T, error) {
	var zero T
	resp, err := ex.Do(ctx)
	if err != nil {
		return zero, asTransportError(err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return zero, types.TransportError(err)
	}
	if !isSuccess(resp.StatusCode) {
		return zero, decodeAPIError(resp.StatusCode, body)
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return zero, types.DecodeError(err)
	}
	return v, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// readBody collects the whole response body, pre-sizing from Content-Length
// when the header is present and sane.
func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if n := resp.ContentLength; n > 0 && n < 1<<24 {
		buf.Grow(int(n))
	}
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAPIError(status int, body []byte) error {
	var payload apiErrorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.DecodeError(err)
	}
	return types.APIError(status, payload.Code, payload.Message)
}
