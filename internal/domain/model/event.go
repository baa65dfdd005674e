// Package model holds the data types shared by every stage of the ingestion pipeline.
package model

import (
	"fmt"
	"strings"
	"time"
)

// RecognitionStatus is the classification outcome of a parsed event.
type RecognitionStatus string

const (
	StatusRecognized RecognitionStatus = "recognized"
	StatusPartial    RecognitionStatus = "partial"
	StatusUnknown    RecognitionStatus = "unknown"
	StatusDeprecated RecognitionStatus = "deprecated"
)

// Statuses lists every valid status in a stable order.
var Statuses = []RecognitionStatus{StatusRecognized, StatusPartial, StatusDeprecated, StatusUnknown}

// Valid reports whether s is one of the fixed statuses.
func (s RecognitionStatus) Valid() bool {
	switch s {
	case StatusRecognized, StatusPartial, StatusUnknown, StatusDeprecated:
		return true
	}
	return false
}

// Tracked reports whether events with this status feed the match state tracker.
func (s RecognitionStatus) Tracked() bool {
	return s == StatusRecognized || s == StatusPartial || s == StatusDeprecated
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(v string) (RecognitionStatus, error) {
	s := RecognitionStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// Codes of the zero-field events synthesized from hardware connection markers.
const (
	CodeConnected    = "connected"
	CodeDisconnected = "disconnected"
)

// RawMessage is one decoded datagram.
type RawMessage struct {
	Text       string
	ReceivedAt time.Time
	Source     string
	// Sentinel is set when Text was synthesized from a connection marker.
	Sentinel bool
}

// FieldValue is one entry of an ordered field map.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ValidationError is the outcome of one failed rule.
type ValidationError struct {
	Rule    string   `json:"rule"`
	Kind    RuleKind `json:"kind"`
	Field   string   `json:"field,omitempty"`
	Message string   `json:"message"`
}

// ParsedEvent is a classified datagram. It is not mutated after classification;
// manual reclassification is recorded by the store as a history record.
type ParsedEvent struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	EventCode       string            `json:"event_code"`
	ProtocolVersion string            `json:"protocol_version"`
	Category        Category          `json:"category,omitempty"`
	Athlete         int               `json:"athlete,omitempty"`
	Round           int               `json:"round,omitempty"`
	Fields          []FieldValue      `json:"fields,omitempty"`
	Extra           []string          `json:"extra,omitempty"`
	Tokens          []string          `json:"tokens,omitempty"`
	Status          RecognitionStatus `json:"status"`
	Confidence      float64           `json:"confidence"`
	Errors          []ValidationError `json:"validation_errors,omitempty"`
	ProcessingTime  time.Duration     `json:"processing_time_ns"`
	ReceivedAt      time.Time         `json:"received_at"`
	RawText         string            `json:"raw_text"`
	Source          string            `json:"source,omitempty"`
}

// Field returns the named field value and whether it was present in the datagram.
func (e *ParsedEvent) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// FieldMap returns the fields as a map. Order is lost.
func (e *ParsedEvent) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// RecognitionHistoryRecord is one append-only audit entry of a manual reclassification.
type RecognitionHistoryRecord struct {
	ID        string            `json:"id"`
	EventID   string            `json:"event_id"`
	OldStatus RecognitionStatus `json:"old_status"`
	NewStatus RecognitionStatus `json:"new_status"`
	ChangedBy string            `json:"changed_by"`
	Reason    string            `json:"reason"`
	Timestamp time.Time         `json:"timestamp"`
}

// ReclassifyRequest asks the store to amend one event's status.
type ReclassifyRequest struct {
	EventID   string            `json:"event_id"`
	NewStatus RecognitionStatus `json:"status"`
	ChangedBy string            `json:"changed_by"`
	Reason    string            `json:"reason"`
}

// Validate checks the request against the status enum and the reason requirement.
func (r ReclassifyRequest) Validate() error {
	if strings.TrimSpace(r.EventID) == "" {
		return fmt.Errorf("%w: event id", ErrInvalidRequest)
	}
	if !r.NewStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.NewStatus)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// UnknownEventRecord groups unknown datagrams of one normalized shape.
type UnknownEventRecord struct {
	PatternHash        string    `json:"pattern_hash"`
	Pattern            string    `json:"pattern"`
	RawPattern         string    `json:"raw_pattern"`
	OccurrenceCount    int64     `json:"occurrence_count"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	SuggestedEventCode string    `json:"suggested_event_code,omitempty"`
}
