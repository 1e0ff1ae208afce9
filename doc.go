// Package b2go is a client for the Backblaze B2 cloud storage HTTP API.
//
// A Client authorizes lazily and caches the authorization: the first call
// performs the account-authorization round trip, concurrent callers share
// it, and a token the service rejects as expired is dropped so the next
// call re-authorizes. List operations stream their results, decoding each
// element as its bytes arrive instead of buffering whole response bodies.
// Transfer payloads can be rate limited, individually or as a shared pool.
//
// The client classifies failures (see the types package predicates) but
// never retries on its own; retry policy belongs to the caller.
package b2go
