package catalog

import "errors"

var (
	ErrNotFound         = errors.New("unknown pattern not found")
	ErrInvalidPromotion = errors.New("invalid promotion")
	ErrNoStore          = errors.New("catalog has no promotion store")
)
