package repository

import (
	"context"
	"fmt"

	"github.com/okian/pss/internal/domain/model"
)

// UpsertUnknown stores the cataloger's view of one pattern. Counts never
// move backwards and first_seen keeps the earliest value.
func (s *Store) UpsertUnknown(ctx context.Context, rec model.UnknownEventRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO unknown_events(pattern_hash, pattern, raw_pattern, occurrence_count, first_seen, last_seen, suggested_event_code)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(pattern_hash) DO UPDATE SET
	occurrence_count=MAX(unknown_events.occurrence_count, excluded.occurrence_count),
	first_seen=MIN(unknown_events.first_seen, excluded.first_seen),
	last_seen=MAX(unknown_events.last_seen, excluded.last_seen),
	raw_pattern=excluded.raw_pattern,
	suggested_event_code=CASE
		WHEN excluded.suggested_event_code != '' THEN excluded.suggested_event_code
		ELSE unknown_events.suggested_event_code
	END
`, rec.PatternHash, rec.Pattern, rec.RawPattern, rec.OccurrenceCount, ts(rec.FirstSeen), ts(rec.LastSeen), rec.SuggestedEventCode)
	if err != nil {
		return fmt.Errorf("upsert unknown: %w", err)
	}
	return nil
}

// ListUnknowns returns patterns by descending occurrence. limit <= 0 returns all.
func (s *Store) ListUnknowns(ctx context.Context, limit int) ([]model.UnknownEventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT pattern_hash, pattern, raw_pattern, occurrence_count, first_seen, last_seen, suggested_event_code
FROM unknown_events ORDER BY occurrence_count DESC, pattern_hash LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unknowns: %w", err)
	}
	defer rows.Close()

	var out []model.UnknownEventRecord
	for rows.Next() {
		var (
			rec                 model.UnknownEventRecord
			firstSeen, lastSeen string
		)
		if err := rows.Scan(&rec.PatternHash, &rec.Pattern, &rec.RawPattern, &rec.OccurrenceCount, &firstSeen, &lastSeen, &rec.SuggestedEventCode); err != nil {
			return nil, fmt.Errorf("scan unknown: %w", err)
		}
		if rec.FirstSeen, err = parseTS(firstSeen); err != nil {
			return nil, fmt.Errorf("parse first_seen: %w", err)
		}
		if rec.LastSeen, err = parseTS(lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
