package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorFormatting(t *testing.T) {
	err := APIError(404, "not_found", "bucket does not exist")
	assert.Equal(t, "404 (not_found): bucket does not exist", err.Error())
}

func TestTransportErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := TransportError(cause)

	assert.Equal(t, ErrTransport, GetErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
}

func TestAsErrorThroughWrapping(t *testing.T) {
	inner := APIError(429, "too_many_requests", "slow down")
	wrapped := fmt.Errorf("listing buckets: %w", inner)

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 429, e.HTTPStatus)
	assert.True(t, IsTooManyRequests(wrapped))
}

func TestRetryableByStatus(t *testing.T) {
	assert.True(t, IsRetryable(APIError(503, "service_unavailable", "busy")))
	assert.True(t, IsRetryable(APIError(408, "request_timeout", "timeout")))
	assert.True(t, IsRetryable(APIError(429, "too_many_requests", "slow down")))
	assert.False(t, IsRetryable(APIError(400, "bad_request", "nope")))
	assert.False(t, IsRetryable(APIError(401, "unauthorized", "nope")))
}

func TestShouldBackOff(t *testing.T) {
	assert.True(t, ShouldBackOff(APIError(503, "service_unavailable", "busy")))
	assert.True(t, ShouldBackOff(APIError(429, "too_many_requests", "slow down")))
	assert.True(t, ShouldBackOff(APIError(408, "request_timeout", "timeout")))
	assert.False(t, ShouldBackOff(APIError(500, "internal_error", "oops")))
	assert.False(t, ShouldBackOff(errors.New("plain")))
}

func TestAuthorizationPredicates(t *testing.T) {
	expired := APIError(401, "expired_auth_token", "auth token expired")
	bad := APIError(401, "bad_auth_token", "invalid auth token")

	assert.True(t, IsExpiredAuthorization(expired))
	assert.False(t, IsExpiredAuthorization(bad))
	assert.True(t, IsWrongCredentials(bad))
	assert.True(t, IsAuthorizationIssue(expired))
	assert.True(t, IsAuthorizationIssue(bad))
	assert.False(t, IsAuthorizationIssue(APIError(403, "cap_exceeded", "over cap")))
}

func TestShouldReauthorize(t *testing.T) {
	assert.True(t, ShouldReauthorize(TransportError(errors.New("reset"))))
	assert.True(t, ShouldReauthorize(APIError(401, "expired_auth_token", "expired")))
	assert.True(t, ShouldReauthorize(APIError(500, "internal_error", "oops")))
	assert.False(t, ShouldReauthorize(APIError(404, "not_found", "missing")))
	assert.False(t, ShouldReauthorize(DecodeError(errors.New("bad json"))))
}

func TestAbortedError(t *testing.T) {
	err := AbortedError()
	assert.Equal(t, ErrAborted, GetErrorCode(err))
	assert.False(t, IsRetryable(err))
}

func TestResourcePredicates(t *testing.T) {
	assert.True(t, IsFileNotFound(APIError(400, "file_not_present", "File not present: a.txt")))
	assert.True(t, IsFileNotFound(APIError(404, "not_found", "gone")))
	assert.True(t, IsDuplicateBucketName(APIError(400, "duplicate_bucket_name", "taken")))
	assert.True(t, IsCapExceeded(APIError(403, "cap_exceeded", "over cap")))
	assert.False(t, IsFileNotFound(APIError(400, "bad_request", "nope")))
}
