package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the library.
type ErrorCode string

const (
	// ErrTransport covers failures below the API: connection resets,
	// timeouts, TLS problems, anything the HTTP layer reports.
	ErrTransport ErrorCode = "TRANSPORT"
	// ErrDecode covers malformed response bodies and schema mismatches.
	ErrDecode ErrorCode = "DECODE"
	// ErrAPI covers well-formed error payloads returned by the service.
	ErrAPI ErrorCode = "API"
	// ErrAborted is delivered to authorization waiters whose refresh
	// leader terminated without completing.
	ErrAborted ErrorCode = "AUTH_ABORTED"
	// ErrConfig covers invalid or missing client configuration.
	ErrConfig ErrorCode = "CONFIG"
)

// Error represents a structured error with code, message, and metadata.
//
// For ErrAPI errors, HTTPStatus, APICode and Message are stored exactly as
// received from the service so callers can classify them with the helper
// predicates below.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	APICode    string    `json:"api_code,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code == ErrAPI {
		return fmt.Sprintf("%d (%s): %s", e.HTTPStatus, e.APICode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// TransportError wraps a failure from the HTTP layer.
func TransportError(cause error) *Error {
	return &Error{
		Code:      ErrTransport,
		Message:   "transport failure",
		Retryable: true,
		Cause:     cause,
	}
}

// DecodeError wraps a body that could not be decoded into the expected shape.
func DecodeError(cause error) *Error {
	return &Error{
		Code:    ErrDecode,
		Message: "malformed response body",
		Cause:   cause,
	}
}

// APIError builds an error from a well-formed service error payload.
func APIError(status int, code, message string) *Error {
	return &Error{
		Code:       ErrAPI,
		Message:    message,
		HTTPStatus: status,
		APICode:    code,
		Retryable:  status == 408 || status == 429 || status >= 500,
	}
}

// AbortedError is returned to waiters whose refresh leader never completed.
func AbortedError() *Error {
	return &Error{
		Code:    ErrAborted,
		Message: "authorization refresh aborted before completion",
	}
}

// ConfigError reports an invalid configuration value.
func ConfigError(message string) *Error {
	return &Error{Code: ErrConfig, Message: message}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsRetryable checks if an error is marked retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// IsServiceUnavailable reports whether the service answered with any status
// in the 5xx range.
func IsServiceUnavailable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.HTTPStatus >= 500 && e.HTTPStatus <= 599
}

// IsTooManyRequests reports whether the caller is being rate limited by the
// service.
func IsTooManyRequests(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.HTTPStatus == 429
}

// ShouldBackOff reports whether future requests should be delayed. Backoff
// itself is the caller's responsibility.
func ShouldBackOff(err error) bool {
	e, ok := AsError(err)
	if !ok || e.Code != ErrAPI {
		return false
	}
	switch e.HTTPStatus {
	case 408, 429, 503:
		return true
	}
	return false
}

// IsExpiredAuthorization reports whether the error is caused by an expired
// authorization token.
func IsExpiredAuthorization(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.HTTPStatus == 401 && e.APICode == "expired_auth_token"
}

// IsWrongCredentials reports whether the service rejected the token outright.
func IsWrongCredentials(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.APICode == "bad_auth_token"
}

// IsAuthorizationIssue reports whether the error relates to the authorization
// token in any way, including expiry and invalid tokens.
func IsAuthorizationIssue(err error) bool {
	if IsExpiredAuthorization(err) || IsWrongCredentials(err) {
		return true
	}
	e, ok := AsError(err)
	if !ok || e.Code != ErrAPI {
		return false
	}
	if strings.HasPrefix(e.Message, "Account ") && strings.HasSuffix(e.Message, " does not exist") {
		return true
	}
	if strings.HasPrefix(e.Message, "Bucket is not authorized: ") {
		return true
	}
	switch e.Message {
	case "Invalid authorization token", "Authorization token for wrong cluster",
		"Not authorized", "AccountId bad":
		return true
	}
	return e.HTTPStatus == 401
}

// ShouldReauthorize reports whether the caller should obtain a fresh
// authorization before trying again. True for authorization issues, 5xx
// answers, and transport-level connection failures.
func ShouldReauthorize(err error) bool {
	if e, ok := AsError(err); ok && e.Code == ErrTransport {
		return true
	}
	return IsAuthorizationIssue(err) || IsServiceUnavailable(err)
}

// IsFileNotFound reports whether the error relates to a file that does not
// exist.
func IsFileNotFound(err error) bool {
	e, ok := AsError(err)
	if !ok || e.Code != ErrAPI {
		return false
	}
	switch e.APICode {
	case "no_such_file", "not_found", "file_not_present":
		return true
	}
	for _, prefix := range []string{
		"Invalid fileId: ", "Not a valid file id: ", "File not present: ",
	} {
		if strings.HasPrefix(e.Message, prefix) {
			return true
		}
	}
	return false
}

// IsBucketNotFound reports whether the error relates to a bucket that does
// not exist.
func IsBucketNotFound(err error) bool {
	e, ok := AsError(err)
	if !ok || e.Code != ErrAPI {
		return false
	}
	for _, prefix := range []string{
		"Bucket does not exist: ", "Invalid bucket id: ", "Invalid bucketId: ",
	} {
		if strings.HasPrefix(e.Message, prefix) {
			return true
		}
	}
	switch e.Message {
	case "bad bucketId", "invalid_bucket_id", "BucketId not valid for account":
		return true
	}
	return false
}

// IsDuplicateBucketName reports whether a bucket with the requested name
// already exists.
func IsDuplicateBucketName(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.HTTPStatus == 400 && e.APICode == "duplicate_bucket_name"
}

// IsInvalidFileName reports whether the service rejected the file name.
func IsInvalidFileName(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.APICode == "bad_request" &&
		strings.HasPrefix(e.Message, "File names must ")
}

// IsCapExceeded reports whether the account's usage cap has been exceeded.
func IsCapExceeded(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.APICode == "cap_exceeded"
}

// IsConflict reports whether a conditional request failed its precondition.
func IsConflict(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == ErrAPI && e.HTTPStatus == 409
}
