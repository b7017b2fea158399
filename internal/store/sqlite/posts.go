package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/wonderland/internal/types"
)

// SavePost inserts or replaces the post, engagement counters included.
func (s *Store) SavePost(ctx context.Context, post *types.WonderlandPost) error {
	data, err := encodeJSON(post)
	if err != nil {
		return fmt.Errorf("encode post: %w", err)
	}
	var published int64
	if post.PublishedAt != nil {
		published = unixNano(*post.PublishedAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (post_id, seed_id, status, published_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			status = excluded.status,
			published_at = excluded.published_at,
			record = excluded.record`,
		post.PostID, post.SeedID, string(post.Status), published, data)
	if err != nil {
		return fmt.Errorf("save post %s: %w", post.PostID, err)
	}
	return nil
}

// GetPost returns nil when the post is unknown.
func (s *Store) GetPost(ctx context.Context, postID string) (*types.WonderlandPost, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM posts WHERE post_id = ?`, postID).Scan(&data)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return decodePost(data)
}

// ListPosts returns published posts newest first. An empty seedID lists
// every author; a non-positive limit returns all rows.
func (s *Store) ListPosts(ctx context.Context, seedID string, limit int) ([]*types.WonderlandPost, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM posts
		WHERE status = ? AND (? = '' OR seed_id = ?)
		ORDER BY published_at DESC, rowid DESC
		LIMIT ?`, string(types.PostPublished), seedID, seedID, limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []*types.WonderlandPost
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p, err := decodePost(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodePost(data string) (*types.WonderlandPost, error) {
	var p types.WonderlandPost
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode post: %w", err)
	}
	return &p, nil
}
