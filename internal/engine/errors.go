package engine

import "errors"

// Sentinel kinds for engine errors.
var (
	// ErrInvalidQuery means limit or offset is out of bounds.
	ErrInvalidQuery = errors.New("invalid leaderboard query")
)
