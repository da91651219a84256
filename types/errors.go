package types

import "errors"

var (
	// ErrNotFound means the upstream has no data for the requested entity.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the upstream could not be reached or answered badly.
	ErrUnavailable = errors.New("upstream unavailable")
)
