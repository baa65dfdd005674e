package model

import "errors"

// Sentinel errors shared across packages.
var (
	ErrInvalidStatus  = errors.New("invalid recognition status")
	ErrReasonRequired = errors.New("reclassification reason is required")
	ErrInvalidRequest = errors.New("invalid request")
	ErrSameStatus     = errors.New("event already has that status")
	ErrNotFound       = errors.New("not found")
	ErrNoPayload      = errors.New("event carries no tracked payload")
	ErrBadPayload     = errors.New("malformed payload")
)
