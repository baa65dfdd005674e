package rules

import "errors"

// Sentinel errors returned by Compile.
var (
	ErrInvalidRule      = errors.New("invalid validation rule")
	ErrUnknownPredicate = errors.New("unknown custom predicate")
)
