// Package transport implements the response-decoding core shared by every
// b2go API call: a whole-body decoder, a streaming element decoder built on
// an incremental JSON scanner, and the Exchange abstraction both consume.
//
// The decoders are single-owner values. Exactly one goroutine may advance a
// Stream at a time; hand the value off rather than sharing it.
package transport
