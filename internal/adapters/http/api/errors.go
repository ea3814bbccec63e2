package api

import "errors"

// Sentinel kinds for API errors. Dependencies wrap their failures with
// these so handlers can map them to status codes.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
)
