package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeExpiredStreams deletes resolve cache rows older than the cache TTL.
func (s *Store) PurgeExpiredStreams(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM resolve_cache WHERE cached_at <= ?`,
		s.now().UTC().Add(-s.cacheTTL),
	)
	if err != nil {
		return 0, fmt.Errorf("purging resolve cache: %w", err)
	}
	return result.RowsAffected()
}

// PurgePlaybackHistory deletes history rows that ended before cutoff.
func (s *Store) PurgePlaybackHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM playback_history WHERE ended_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging playback history: %w", err)
	}
	return result.RowsAffected()
}
