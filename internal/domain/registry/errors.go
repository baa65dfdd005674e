package registry

import "errors"

// Sentinel errors for registry loading.
var (
	ErrNoSources   = errors.New("registry has no sources")
	ErrLoadSource  = errors.New("registry source failed")
	ErrBadGrammar  = errors.New("invalid grammar")
	ErrEmptySchema = errors.New("registry snapshot has no event definitions")
)
