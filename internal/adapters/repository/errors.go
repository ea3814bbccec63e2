package repository

import "errors"

// Sentinel kinds for sorted-score store errors.
var (
	// ErrUnavailable means the cache backend cannot serve the call.
	// Never surfaced to end users; it triggers the rebuild fallback.
	ErrUnavailable = errors.New("score store unavailable")

	// ErrNotFound means the member has no entry under the key.
	ErrNotFound = errors.New("member not found")

	// ErrInvalidRange means limit or offset is out of bounds.
	ErrInvalidRange = errors.New("invalid range")
)
