package worker

import "errors"

// Sentinel errors for the ingestion pipeline.
var (
	ErrDrainTimeout = errors.New("pipeline drain timed out")
	ErrNotRunning   = errors.New("pipeline is not running")
)
