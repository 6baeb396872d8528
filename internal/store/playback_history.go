package store

import (
	"context"
	"fmt"

	"uwave/internal/models"
)

const playbackColumns = `id, action_id, source_type, source_id, playback_type, outcome, error_kind, message, started_at, ended_at`

func scanPlayback(scanner interface{ Scan(...any) error }) (models.PlaybackRecord, error) {
	var r models.PlaybackRecord
	var outcome, kind string
	err := scanner.Scan(&r.ID, &r.ActionID, &r.SourceType, &r.SourceID, &r.PlaybackType,
		&outcome, &kind, &r.Message, &r.StartedAt, &r.EndedAt)
	r.Outcome = models.PlaybackOutcome(outcome)
	r.ErrorKind = models.ErrorKind(kind)
	return r, err
}

func (s *Store) InsertPlayback(ctx context.Context, rec *models.PlaybackRecord) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO playback_history (action_id, source_type, source_id, playback_type, outcome, error_kind, message, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ActionID, rec.SourceType, rec.SourceID, int(rec.PlaybackType), string(rec.Outcome),
		string(rec.ErrorKind), rec.Message, rec.StartedAt.UTC(), rec.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert playback: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert playback id: %w", err)
	}
	rec.ID = id
	return nil
}

type PlaybackHistoryResult struct {
	Items   []models.PlaybackRecord `json:"items"`
	Total   int                     `json:"total"`
	Page    int                     `json:"page"`
	PerPage int                     `json:"per_page"`
}

// ListPlaybackHistory returns history newest first. sourceType filters when
// non-empty.
func (s *Store) ListPlaybackHistory(ctx context.Context, page, perPage int, sourceType string) (*PlaybackHistoryResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 50
	}

	where := ""
	var args []any
	if sourceType != "" {
		where = " WHERE source_type = ?"
		args = append(args, sourceType)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM playback_history`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count playback history: %w", err)
	}

	query := `SELECT ` + playbackColumns + ` FROM playback_history` + where + ` ORDER BY ended_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, fmt.Errorf("list playback history: %w", err)
	}
	defer rows.Close()

	items := []models.PlaybackRecord{}
	for rows.Next() {
		r, err := scanPlayback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playback: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &PlaybackHistoryResult{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}
