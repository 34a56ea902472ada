package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postforge/internal/brand"
)

// PutVideoJob registers a pending rendering operation keyed by idea.
func (s *Store) PutVideoJob(ctx context.Context, job brand.VideoJob) error {
	if job.IdeaID == "" || job.Operation == "" {
		return errors.New("put video job: idea id and operation required")
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO video_jobs (idea_id, operation, created_at) VALUES (?, ?, ?)
         ON CONFLICT(idea_id) DO UPDATE SET operation = excluded.operation, created_at = excluded.created_at`,
		job.IdeaID, job.Operation, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("put video job: %w", err)
	}
	return nil
}

// ListVideoJobs returns every tracked rendering operation, oldest first.
func (s *Store) ListVideoJobs(ctx context.Context) ([]brand.VideoJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idea_id, operation, created_at FROM video_jobs ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list video jobs: %w", err)
	}
	defer rows.Close()

	var jobs []brand.VideoJob
	for rows.Next() {
		var (
			job        brand.VideoJob
			createdRaw sql.NullString
		)
		if err := rows.Scan(&job.IdeaID, &job.Operation, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan video job: %w", err)
		}
		job.CreatedAt = parseTime(createdRaw)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list video jobs: %w", err)
	}
	return jobs, nil
}

// DeleteVideoJob deregisters a rendering operation once a terminal state is
// observed.
func (s *Store) DeleteVideoJob(ctx context.Context, ideaID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM video_jobs WHERE idea_id = ?", ideaID); err != nil {
		return fmt.Errorf("delete video job: %w", err)
	}
	return nil
}
