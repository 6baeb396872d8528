package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCachedStreams returns the cached resolver response for key, or nil when
// there is none younger than the cache TTL.
func (s *Store) GetCachedStreams(ctx context.Context, cacheKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM resolve_cache WHERE cache_key = ? AND cached_at > ?`,
		cacheKey, s.now().UTC().Add(-s.cacheTTL),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached streams: %w", err)
	}
	return data, nil
}

func (s *Store) SetCachedStreams(ctx context.Context, cacheKey string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolve_cache (cache_key, response, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			response=excluded.response, cached_at=excluded.cached_at`,
		cacheKey, data, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set cached streams: %w", err)
	}
	return nil
}

// BackdateResolveCache sets the cached_at timestamp for a given key (test helper).
func (s *Store) BackdateResolveCache(cacheKey string, t time.Time) error {
	_, err := s.db.Exec(`UPDATE resolve_cache SET cached_at = ? WHERE cache_key = ?`, t.UTC(), cacheKey)
	return err
}
