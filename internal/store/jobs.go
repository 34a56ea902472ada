package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postforge/internal/brand"
	"postforge/internal/textutil"
)

const jobColumns = "id, normalized_url, name, status, progress, error_message, started_at, completed_at, profile_json, ideas_json, consumed"

// PutJob inserts or replaces a background job row keyed by identifier.
func (s *Store) PutJob(ctx context.Context, job brand.Job) error {
	if job.ID == "" {
		return errors.New("put job: id required")
	}
	normalized := textutil.NormalizeURL(job.URL)
	if normalized == "" {
		return errors.New("put job: url required")
	}

	profile, err := marshalJSON(job.Profile)
	if err != nil {
		return err
	}
	var ideas any
	if len(job.Ideas) > 0 {
		ideas, err = marshalJSON(job.Ideas)
		if err != nil {
			return err
		}
	}
	var completed any
	if job.CompletedAt != nil {
		completed = formatTime(*job.CompletedAt)
	}
	started := job.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO background_jobs (
            id, normalized_url, name, status, progress, error_message,
            started_at, completed_at, profile_json, ideas_json, consumed
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		normalized,
		job.Name,
		string(job.Status),
		job.Progress,
		job.Error,
		formatTime(started),
		completed,
		profile,
		ideas,
		boolToInt(job.Consumed),
	)
	if err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id string) (*brand.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM background_jobs WHERE id = ?", id)
	return scanJob(row)
}

// GetJobByURL fetches a job by its normalized source URL.
func (s *Store) GetJobByURL(ctx context.Context, sourceURL string) (*brand.Job, error) {
	normalized := textutil.NormalizeURL(sourceURL)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM background_jobs WHERE normalized_url = ?", normalized)
	return scanJob(row)
}

// ListJobs returns all tracked jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]*brand.Job, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM background_jobs ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*brand.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job row.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM background_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkInFlightJobsFailed fails every non-terminal job. Run at startup: a run
// in flight at crash is not resumable.
func (s *Store) MarkInFlightJobsFailed(ctx context.Context, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE background_jobs SET status = ?, error_message = ?, completed_at = ?
         WHERE status NOT IN (?, ?)`,
		string(brand.JobFailed),
		reason,
		formatTime(time.Now()),
		string(brand.JobComplete),
		string(brand.JobFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("mark in-flight jobs failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark in-flight jobs failed: rows affected: %w", err)
	}
	return affected, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*brand.Job, error) {
	var (
		id           string
		normalized   string
		name         string
		status       string
		progress     float64
		errorMessage string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		profileRaw   sql.NullString
		ideasRaw     sql.NullString
		consumed     int64
	)
	if err := scanner.Scan(
		&id,
		&normalized,
		&name,
		&status,
		&progress,
		&errorMessage,
		&startedRaw,
		&completedRaw,
		&profileRaw,
		&ideasRaw,
		&consumed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job := &brand.Job{
		ID:          id,
		URL:         normalized,
		Name:        name,
		Status:      brand.JobStatus(status),
		Progress:    progress,
		Error:       errorMessage,
		StartedAt:   parseTime(startedRaw),
		CompletedAt: parseTimePtr(completedRaw),
		Consumed:    consumed != 0,
	}
	if profileRaw.Valid && profileRaw.String != "" {
		var profile brand.Profile
		if err := json.Unmarshal([]byte(profileRaw.String), &profile); err == nil {
			job.Profile = &profile
		}
	}
	if ideasRaw.Valid && ideasRaw.String != "" {
		if err := json.Unmarshal([]byte(ideasRaw.String), &job.Ideas); err != nil {
			job.Ideas = nil
		}
	}
	return job, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
