package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pss/internal/domain/model"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 10000
)

// SaveEvent writes a classified event and its validation errors.
// Saving the same event id twice is a no-op.
func (s *Store) SaveEvent(ctx context.Context, ev *model.ParsedEvent) error {
	fields, err := marshalOptional(ev.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	extra, err := marshalOptional(ev.Extra)
	if err != nil {
		return fmt.Errorf("encode extra: %w", err)
	}
	tokens, err := marshalOptional(ev.Tokens)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save event: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO events(event_id, session_id, event_code, protocol_version, category, athlete, round, status, confidence, processing_ns, received_at, raw_text, source, fields_json, extra_json, tokens_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING
`, ev.ID, ev.SessionID, ev.EventCode, ev.ProtocolVersion, string(ev.Category), ev.Athlete, ev.Round, string(ev.Status),
		ev.Confidence, int64(ev.ProcessingTime), ts(ev.ReceivedAt), ev.RawText, ev.Source, fields, extra, tokens)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback() //nolint:errcheck
		return nil
	}
	for i, ve := range ev.Errors {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO event_errors(event_id, position, rule_name, kind, field, message) VALUES (?, ?, ?, ?, ?, ?)
`, ev.ID, i, ve.Rule, string(ve.Kind), ve.Field, ve.Message); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert event error: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save event: %w", err)
	}
	return nil
}

// GetEvent loads one event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.ParsedEvent, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+` WHERE event_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	events, err := s.scanEvents(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return events[0], nil
}

// EventsByStatus returns the most recent events with the given status.
// An empty status matches every event. limit <= 0 uses the default.
func (s *Store) EventsByStatus(ctx context.Context, status model.RecognitionStatus, limit int) ([]*model.ParsedEvent, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	limit = clampLimit(limit)

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(ctx, selectEvents+` ORDER BY received_at DESC, event_id LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectEvents+` WHERE status = ? ORDER BY received_at DESC, event_id LIMIT ?`, string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query events by status: %w", err)
	}
	return s.scanEvents(ctx, rows)
}

// Reclassify amends one event's status and appends a history record in a
// single transaction. Invalid requests leave the store untouched.
func (s *Store) Reclassify(ctx context.Context, req model.ReclassifyRequest) (model.RecognitionHistoryRecord, error) {
	if err := req.Validate(); err != nil {
		return model.RecognitionHistoryRecord{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RecognitionHistoryRecord{}, fmt.Errorf("begin reclassify: %w", err)
	}
	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM events WHERE event_id = ?`, req.EventID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback() //nolint:errcheck
		return model.RecognitionHistoryRecord{}, fmt.Errorf("event %s: %w", req.EventID, ErrNotFound)
	}
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return model.RecognitionHistoryRecord{}, fmt.Errorf("load event status: %w", err)
	}
	if model.RecognitionStatus(current) == req.NewStatus {
		tx.Rollback() //nolint:errcheck
		return model.RecognitionHistoryRecord{}, fmt.Errorf("%w: already %s", model.ErrSameStatus, current)
	}

	rec := model.RecognitionHistoryRecord{
		ID:        uuid.NewString(),
		EventID:   req.EventID,
		OldStatus: model.RecognitionStatus(current),
		NewStatus: req.NewStatus,
		ChangedBy: strings.TrimSpace(req.ChangedBy),
		Reason:    strings.TrimSpace(req.Reason),
		Timestamp: s.now().UTC(),
	}
	if rec.ChangedBy == "" {
		rec.ChangedBy = "operator"
	}
	if _, err := tx.ExecContext(ctx, `UPDATE events SET status = ? WHERE event_id = ?`, string(rec.NewStatus), rec.EventID); err != nil {
		tx.Rollback() //nolint:errcheck
		return model.RecognitionHistoryRecord{}, fmt.Errorf("update event status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO recognition_history(history_id, event_id, old_status, new_status, changed_by, reason, changed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, rec.ID, rec.EventID, string(rec.OldStatus), string(rec.NewStatus), rec.ChangedBy, rec.Reason, ts(rec.Timestamp)); err != nil {
		tx.Rollback() //nolint:errcheck
		return model.RecognitionHistoryRecord{}, fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.RecognitionHistoryRecord{}, fmt.Errorf("commit reclassify: %w", err)
	}
	return rec, nil
}

// History returns the reclassification trail of one event, oldest first.
func (s *Store) History(ctx context.Context, eventID string) ([]model.RecognitionHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT history_id, event_id, old_status, new_status, changed_by, reason, changed_at
FROM recognition_history WHERE event_id = ? ORDER BY changed_at, history_id
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.RecognitionHistoryRecord
	for rows.Next() {
		var (
			rec          model.RecognitionHistoryRecord
			oldS, newS   string
			changedAtRaw string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &oldS, &newS, &rec.ChangedBy, &rec.Reason, &changedAtRaw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.OldStatus = model.RecognitionStatus(oldS)
		rec.NewStatus = model.RecognitionStatus(newS)
		if rec.Timestamp, err = parseTS(changedAtRaw); err != nil {
			return nil, fmt.Errorf("parse history time: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const selectEvents = `
SELECT event_id, session_id, event_code, protocol_version, category, athlete, round, status, confidence, processing_ns, received_at, raw_text, source, fields_json, extra_json, tokens_json
FROM events`

func (s *Store) scanEvents(ctx context.Context, rows *sql.Rows) ([]*model.ParsedEvent, error) {
	defer rows.Close()

	var out []*model.ParsedEvent
	for rows.Next() {
		var (
			ev                    model.ParsedEvent
			category, status      string
			processingNs          int64
			receivedAt            string
			fields, extra, tokens sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.EventCode, &ev.ProtocolVersion, &category, &ev.Athlete, &ev.Round,
			&status, &ev.Confidence, &processingNs, &receivedAt, &ev.RawText, &ev.Source, &fields, &extra, &tokens); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Category = model.Category(category)
		ev.Status = model.RecognitionStatus(status)
		ev.ProcessingTime = time.Duration(processingNs)
		t, err := parseTS(receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		ev.ReceivedAt = t
		if err := unmarshalOptional(fields, &ev.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
		if err := unmarshalOptional(extra, &ev.Extra); err != nil {
			return nil, fmt.Errorf("decode extra: %w", err)
		}
		if err := unmarshalOptional(tokens, &ev.Tokens); err != nil {
			return nil, fmt.Errorf("decode tokens: %w", err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	rows.Close()

	for _, ev := range out {
		errs, err := s.eventErrors(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		ev.Errors = errs
	}
	return out, nil
}

func (s *Store) eventErrors(ctx context.Context, id string) ([]model.ValidationError, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT rule_name, kind, field, message FROM event_errors WHERE event_id = ? ORDER BY position
`, id)
	if err != nil {
		return nil, fmt.Errorf("query event errors: %w", err)
	}
	defer rows.Close()

	var out []model.ValidationError
	for rows.Next() {
		var (
			ve   model.ValidationError
			kind string
		)
		if err := rows.Scan(&ve.Rule, &kind, &ve.Field, &ve.Message); err != nil {
			return nil, fmt.Errorf("scan event error: %w", err)
		}
		ve.Kind = model.RuleKind(kind)
		out = append(out, ve)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultEventLimit
	}
	return min(limit, maxEventLimit)
}

func marshalOptional[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalOptional[T any](raw sql.NullString, dst *[]T) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}
