package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/wonderland/internal/types"
)

func (s *Store) SaveSession(ctx context.Context, rec *types.BrowsingSessionRecord) error {
	data, err := encodeJSON(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO browsing_sessions (session_id, seed_id, started_at, finished_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			record = excluded.record`,
		rec.SessionID, rec.SeedID, unixNano(rec.StartedAt), unixNano(rec.FinishedAt), data)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	return nil
}

// LastSession returns the most recently finished session, or nil.
func (s *Store) LastSession(ctx context.Context, seedID string) (*types.BrowsingSessionRecord, error) {
	list, err := s.SessionHistory(ctx, seedID, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// SessionHistory returns up to limit sessions, newest first. A non-positive
// limit returns all of them.
func (s *Store) SessionHistory(ctx context.Context, seedID string, limit int) ([]*types.BrowsingSessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM browsing_sessions
		WHERE seed_id = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?`, seedID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.BrowsingSessionRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var rec types.BrowsingSessionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) SavePromptEvolution(ctx context.Context, state *types.PromptEvolutionState) error {
	adaptations, err := encodeJSON(nonNil(state.Adaptations))
	if err != nil {
		return fmt.Errorf("encode adaptations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompt_evolution (seed_id, adaptations, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seed_id) DO UPDATE SET
			adaptations = excluded.adaptations,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		state.SeedID, adaptations, state.Version, unixNano(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save prompt evolution %s: %w", state.SeedID, err)
	}
	return nil
}

// LoadPromptEvolution returns nil when nothing is stored for seedID.
func (s *Store) LoadPromptEvolution(ctx context.Context, seedID string) (*types.PromptEvolutionState, error) {
	var (
		state       = types.PromptEvolutionState{SeedID: seedID}
		adaptations string
		updated     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT adaptations, version, updated_at FROM prompt_evolution WHERE seed_id = ?`, seedID).
		Scan(&adaptations, &state.Version, &updated)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load prompt evolution %s: %w", seedID, err)
	}
	if err := json.Unmarshal([]byte(adaptations), &state.Adaptations); err != nil {
		return nil, fmt.Errorf("decode adaptations: %w", err)
	}
	state.UpdatedAt = fromUnixNano(updated)
	return &state, nil
}
