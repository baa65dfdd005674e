package model

import "time"

// TimingStats is an online min/max/average of processing times.
type TimingStats struct {
	Count   int64         `json:"count"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Average time.Duration `json:"avg_ns"`
}

// EventTypeStats is the per event code part of a snapshot.
type EventTypeStats struct {
	Total    int64                       `json:"total"`
	ByStatus map[RecognitionStatus]int64 `json:"by_status"`
	Timing   TimingStats                 `json:"timing"`
}

// ErrorCount is one row of the top-N validation error table.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// TransportStats counts datagrams that never became events.
type TransportStats struct {
	Datagrams    int64 `json:"datagrams"`
	DecodeErrors int64 `json:"decode_errors"`
	QueueDrops   int64 `json:"queue_drops"`
}

// StatisticsSnapshot is an immutable copy of the aggregator state.
type StatisticsSnapshot struct {
	SessionID   string                      `json:"session_id"`
	StartedAt   time.Time                   `json:"started_at"`
	TakenAt     time.Time                   `json:"taken_at"`
	Total       int64                       `json:"total"`
	ByStatus    map[RecognitionStatus]int64 `json:"by_status"`
	ByEventType map[string]EventTypeStats   `json:"by_event_type"`
	Timing      TimingStats                 `json:"timing"`
	TopErrors   []ErrorCount                `json:"top_errors"`
	Transport   TransportStats              `json:"transport"`
}
