package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SessionState is the single-row persisted view state: which brand is active
// and which view the user was last on.
type SessionState struct {
	CurrentBrandID int64
	ViewName       string
}

// SaveSessionState upserts the single session row.
func (s *Store) SaveSessionState(ctx context.Context, state SessionState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (id, current_brand_id, view_name) VALUES (1, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            current_brand_id = excluded.current_brand_id,
            view_name = excluded.view_name`,
		state.CurrentBrandID, state.ViewName,
	)
	if err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// GetSessionState reads the single session row. A fresh database yields the
// zero state rather than an error.
func (s *Store) GetSessionState(ctx context.Context) (SessionState, error) {
	var state SessionState
	row := s.db.QueryRowContext(ctx, "SELECT current_brand_id, view_name FROM session_state WHERE id = 1")
	if err := row.Scan(&state.CurrentBrandID, &state.ViewName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionState{}, nil
		}
		return SessionState{}, fmt.Errorf("get session state: %w", err)
	}
	return state, nil
}
