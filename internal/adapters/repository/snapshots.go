package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/pss/internal/domain/model"
)

// SaveMatchSnapshot appends the state carried by a delta.
func (s *Store) SaveMatchSnapshot(ctx context.Context, d model.MatchDelta) error {
	state, err := json.Marshal(d.State)
	if err != nil {
		return fmt.Errorf("encode match state: %w", err)
	}
	at := d.At
	if at.IsZero() {
		at = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO match_snapshots(generation, event_id, event_code, taken_at, state_json) VALUES (?, ?, ?, ?, ?)
`, int64(d.State.Generation), d.EventID, d.EventCode, ts(at), string(state))
	if err != nil {
		return fmt.Errorf("insert match snapshot: %w", err)
	}
	return nil
}

// LatestMatchSnapshot returns the most recently stored match state.
func (s *Store) LatestMatchSnapshot(ctx context.Context) (model.MatchState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM match_snapshots ORDER BY snapshot_id DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MatchState{}, fmt.Errorf("match snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return model.MatchState{}, fmt.Errorf("query match snapshot: %w", err)
	}
	var st model.MatchState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return model.MatchState{}, fmt.Errorf("decode match snapshot: %w", err)
	}
	return st, nil
}
