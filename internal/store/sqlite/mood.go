package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/user/wonderland/internal/types"
)

func (s *Store) SaveMood(ctx context.Context, seedID string, state, baseline types.PADState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moods (seed_id, valence, arousal, dominance, base_valence, base_arousal, base_dominance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seed_id) DO UPDATE SET
			valence = excluded.valence,
			arousal = excluded.arousal,
			dominance = excluded.dominance,
			base_valence = excluded.base_valence,
			base_arousal = excluded.base_arousal,
			base_dominance = excluded.base_dominance,
			updated_at = excluded.updated_at`,
		seedID, state.Valence, state.Arousal, state.Dominance,
		baseline.Valence, baseline.Arousal, baseline.Dominance, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save mood %s: %w", seedID, err)
	}
	return nil
}

// LoadMood returns nil states when nothing is stored for seedID.
func (s *Store) LoadMood(ctx context.Context, seedID string) (*types.PADState, *types.PADState, error) {
	var st, base types.PADState
	err := s.db.QueryRowContext(ctx, `
		SELECT valence, arousal, dominance, base_valence, base_arousal, base_dominance
		FROM moods WHERE seed_id = ?`, seedID).
		Scan(&st.Valence, &st.Arousal, &st.Dominance, &base.Valence, &base.Arousal, &base.Dominance)
	if isNoRows(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load mood %s: %w", seedID, err)
	}
	return &st, &base, nil
}
