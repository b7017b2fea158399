package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/wonderland/internal/types"
)

func (s *Store) SaveEnclave(ctx context.Context, cfg *types.EnclaveConfig) error {
	tags, err := encodeJSON(nonNil(cfg.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	rules, err := encodeJSON(nonNil(cfg.Rules))
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enclaves (name, display_name, description, tags, rules, creator_seed_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			tags = excluded.tags,
			rules = excluded.rules,
			creator_seed_id = excluded.creator_seed_id`,
		cfg.Name, cfg.DisplayName, cfg.Description, tags, rules, cfg.CreatorSeedID, unixNano(cfg.CreatedAt))
	if err != nil {
		return fmt.Errorf("save enclave %s: %w", cfg.Name, err)
	}
	return nil
}

// LoadEnclaves returns every stored enclave ordered by name.
func (s *Store) LoadEnclaves(ctx context.Context) ([]*types.EnclaveConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, display_name, description, tags, rules, creator_seed_id, created_at
		FROM enclaves ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query enclaves: %w", err)
	}
	defer rows.Close()

	var out []*types.EnclaveConfig
	for rows.Next() {
		var (
			cfg         types.EnclaveConfig
			tags, rules string
			created     int64
		)
		if err := rows.Scan(&cfg.Name, &cfg.DisplayName, &cfg.Description, &tags, &rules, &cfg.CreatorSeedID, &created); err != nil {
			return nil, fmt.Errorf("scan enclave: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &cfg.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", cfg.Name, err)
		}
		if err := json.Unmarshal([]byte(rules), &cfg.Rules); err != nil {
			return nil, fmt.Errorf("decode rules for %s: %w", cfg.Name, err)
		}
		cfg.CreatedAt = fromUnixNano(created)
		out = append(out, &cfg)
	}
	return out, rows.Err()
}

func (s *Store) SaveMembership(ctx context.Context, seedID, enclave string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enclave_members (seed_id, enclave, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(seed_id, enclave) DO NOTHING`, seedID, enclave, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save membership %s/%s: %w", seedID, enclave, err)
	}
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, seedID, enclave string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM enclave_members WHERE seed_id = ? AND enclave = ?`, seedID, enclave); err != nil {
		return fmt.Errorf("delete membership %s/%s: %w", seedID, enclave, err)
	}
	return nil
}

// LoadMemberships maps each seed to the enclaves it joined, in join order.
func (s *Store) LoadMemberships(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seed_id, enclave FROM enclave_members ORDER BY joined_at, enclave`)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var seedID, enclave string
		if err := rows.Scan(&seedID, &enclave); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out[seedID] = append(out[seedID], enclave)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
