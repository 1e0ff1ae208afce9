// Package throttle bounds the byte rate of transfers. A Reader wraps the
// payload side of an upload or download with a token bucket; a Group shares
// one configured rate fairly across however many transfers are running at
// once.
package throttle
