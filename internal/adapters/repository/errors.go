package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid database path")
)
