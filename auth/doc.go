// Package auth holds account credentials, the authorization state returned
// by the service, and a concurrency-safe cache that deduplicates refreshes:
// however many goroutines discover an expired token at once, exactly one
// re-authorization round trip happens and every caller shares its outcome.
package auth
