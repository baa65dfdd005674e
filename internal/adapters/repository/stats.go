package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/pss/internal/domain/model"
)

const (
	emptyCode       = "(empty)"
	defaultTopError = 10
)

// SessionStatistics recomputes a statistics snapshot for one session from
// stored events. Transport counters are not persisted and stay zero.
func (s *Store) SessionStatistics(ctx context.Context, sessionID string, topN int) (model.StatisticsSnapshot, error) {
	if topN <= 0 {
		topN = defaultTopError
	}
	snap := model.StatisticsSnapshot{
		SessionID:   sessionID,
		TakenAt:     s.now().UTC(),
		ByStatus:    map[model.RecognitionStatus]int64{},
		ByEventType: map[string]model.EventTypeStats{},
	}

	var (
		count        int64
		minNs, maxNs sql.NullInt64
		avgNs        sql.NullFloat64
		startedAtRaw sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), MIN(processing_ns), MAX(processing_ns), AVG(processing_ns), MIN(received_at)
FROM events WHERE session_id = ?
`, sessionID).Scan(&count, &minNs, &maxNs, &avgNs, &startedAtRaw)
	if err != nil {
		return snap, fmt.Errorf("query session totals: %w", err)
	}
	if count == 0 {
		return snap, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	snap.Total = count
	snap.Timing = timing(count, minNs, maxNs, avgNs)
	if snap.StartedAt, err = parseNullTS(startedAtRaw); err != nil {
		return snap, fmt.Errorf("parse session start: %w", err)
	}

	if err := s.sessionByType(ctx, sessionID, &snap); err != nil {
		return snap, err
	}
	if snap.TopErrors, err = s.sessionTopErrors(ctx, sessionID, topN); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) sessionByType(ctx context.Context, sessionID string, snap *model.StatisticsSnapshot) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT CASE WHEN event_code = '' THEN ? ELSE event_code END AS code,
	COUNT(*), MIN(processing_ns), MAX(processing_ns), AVG(processing_ns)
FROM events WHERE session_id = ? GROUP BY code
`, emptyCode, sessionID)
	if err != nil {
		return fmt.Errorf("query session codes: %w", err)
	}
	for rows.Next() {
		var (
			code         string
			count        int64
			minNs, maxNs sql.NullInt64
			avgNs        sql.NullFloat64
		)
		if err := rows.Scan(&code, &count, &minNs, &maxNs, &avgNs); err != nil {
			rows.Close()
			return fmt.Errorf("scan session code: %w", err)
		}
		snap.ByEventType[code] = model.EventTypeStats{
			Total:    count,
			ByStatus: map[model.RecognitionStatus]int64{},
			Timing:   timing(count, minNs, maxNs, avgNs),
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate session codes: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
SELECT CASE WHEN event_code = '' THEN ? ELSE event_code END AS code, status, COUNT(*)
FROM events WHERE session_id = ? GROUP BY code, status
`, emptyCode, sessionID)
	if err != nil {
		return fmt.Errorf("query session statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			code, status string
			count        int64
		)
		if err := rows.Scan(&code, &status, &count); err != nil {
			return fmt.Errorf("scan session status: %w", err)
		}
		st := model.RecognitionStatus(status)
		snap.ByStatus[st] += count
		if ets, ok := snap.ByEventType[code]; ok {
			ets.ByStatus[st] = count
		}
	}
	return rows.Err()
}

func (s *Store) sessionTopErrors(ctx context.Context, sessionID string, topN int) ([]model.ErrorCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ee.message, COUNT(*) AS n
FROM event_errors ee JOIN events e ON e.event_id = ee.event_id
WHERE e.session_id = ?
GROUP BY ee.message ORDER BY n DESC, ee.message LIMIT ?
`, sessionID, topN)
	if err != nil {
		return nil, fmt.Errorf("query session errors: %w", err)
	}
	defer rows.Close()

	out := []model.ErrorCount{}
	for rows.Next() {
		var ec model.ErrorCount
		if err := rows.Scan(&ec.Message, &ec.Count); err != nil {
			return nil, fmt.Errorf("scan session error: %w", err)
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}

// Sessions lists stored session ids, most recent first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id FROM events GROUP BY session_id ORDER BY MAX(received_at) DESC
`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func timing(count int64, minNs, maxNs sql.NullInt64, avgNs sql.NullFloat64) model.TimingStats {
	return model.TimingStats{
		Count:   count,
		Min:     time.Duration(minNs.Int64),
		Max:     time.Duration(maxNs.Int64),
		Average: time.Duration(avgNs.Float64),
	}
}
