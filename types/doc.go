// Package types defines the structured error taxonomy shared by every
// b2go package, together with the classification helpers callers use to
// build their own retry and re-authentication policies. The library
// itself never retries; it only classifies.
package types
