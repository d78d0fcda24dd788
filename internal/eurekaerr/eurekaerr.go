// Package eurekaerr defines clipfinder's error kinds, checked with
// errors.Is at each collaborator boundary.
package eurekaerr

import "errors"

var (
	// ErrInputUnavailable covers a missing decoder binary, a missing
	// audio file, or an unreadable cache. Fatal; surfaced to the CLI.
	ErrInputUnavailable = errors.New("eureka: input unavailable")

	// ErrDecoderFailure covers a decoder child process that exited
	// nonzero or wrote to its error channel. Surfaced promptly, no
	// retries.
	ErrDecoderFailure = errors.New("eureka: decoder failure")

	// ErrMalformedCache covers a JSON parse error on a cache file.
	// Recoverable: the caller ignores the cache and recomputes.
	ErrMalformedCache = errors.New("eureka: malformed fingerprint cache")
)
