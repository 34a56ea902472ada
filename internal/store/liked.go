package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postforge/internal/brand"
)

const likedColumns = "id, brand_id, platform, caption, hashtags_json, visual_prompt, visual_url, visual_source, video_url, video_status, scheduled_at, created_at, updated_at"

// UpsertLikedPost moves an idea into the durable liked store. Liked posts
// are excluded from cache TTL semantics entirely.
func (s *Store) UpsertLikedPost(ctx context.Context, idea brand.Idea) error {
	if idea.ID == "" {
		return errors.New("upsert liked post: idea id required")
	}
	hashtags, err := marshalJSON(idea.Hashtags)
	if err != nil {
		return err
	}
	var scheduled any
	if idea.ScheduledAt != nil {
		scheduled = formatTime(*idea.ScheduledAt)
	}
	created := idea.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	timestamp := formatTime(time.Now())

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO liked_posts (
            id, brand_id, platform, caption, hashtags_json, visual_prompt,
            visual_url, visual_source, video_url, video_status, scheduled_at,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            caption = excluded.caption,
            hashtags_json = excluded.hashtags_json,
            visual_prompt = excluded.visual_prompt,
            visual_url = excluded.visual_url,
            visual_source = excluded.visual_source,
            video_url = excluded.video_url,
            video_status = excluded.video_status,
            scheduled_at = excluded.scheduled_at,
            updated_at = excluded.updated_at`,
		idea.ID,
		idea.BrandID,
		string(idea.Platform),
		idea.Caption,
		hashtags,
		idea.VisualPrompt,
		idea.VisualURL,
		string(idea.VisualSource),
		idea.VideoURL,
		string(idea.VideoStatus),
		scheduled,
		formatTime(created),
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert liked post: %w", err)
	}
	return nil
}

// GetLikedPost fetches one liked post by idea identifier.
func (s *Store) GetLikedPost(ctx context.Context, ideaID string) (*brand.Idea, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+likedColumns+" FROM liked_posts WHERE id = ?", ideaID)
	return scanLikedPost(row)
}

// ListLikedPosts returns the brand's liked posts, newest first.
func (s *Store) ListLikedPosts(ctx context.Context, brandID int64) ([]brand.Idea, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+likedColumns+" FROM liked_posts WHERE brand_id = ? ORDER BY created_at DESC", brandID)
	if err != nil {
		return nil, fmt.Errorf("list liked posts: %w", err)
	}
	defer rows.Close()

	var ideas []brand.Idea
	for rows.Next() {
		idea, err := scanLikedPost(rows)
		if err != nil {
			return nil, err
		}
		ideas = append(ideas, *idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list liked posts: %w", err)
	}
	return ideas, nil
}

// UpdateLikedPostVideo records the terminal outcome of a rendering job.
func (s *Store) UpdateLikedPostVideo(ctx context.Context, ideaID, videoURL string, status brand.VideoStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE liked_posts SET video_url = ?, video_status = ?, updated_at = ? WHERE id = ?",
		videoURL, string(status), formatTime(time.Now()), ideaID,
	)
	if err != nil {
		return fmt.Errorf("update liked post video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update liked post video: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLikedPostSchedule sets or clears the scheduled timestamp.
func (s *Store) UpdateLikedPostSchedule(ctx context.Context, ideaID string, scheduledAt *time.Time) error {
	var scheduled any
	if scheduledAt != nil {
		scheduled = formatTime(*scheduledAt)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE liked_posts SET scheduled_at = ?, updated_at = ? WHERE id = ?",
		scheduled, formatTime(time.Now()), ideaID,
	)
	if err != nil {
		return fmt.Errorf("update liked post schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update liked post schedule: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLikedPost removes a liked post by explicit user action.
func (s *Store) DeleteLikedPost(ctx context.Context, ideaID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM liked_posts WHERE id = ?", ideaID)
	if err != nil {
		return fmt.Errorf("delete liked post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete liked post: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLikedPost(scanner interface{ Scan(dest ...any) error }) (*brand.Idea, error) {
	var (
		id           string
		brandID      int64
		platform     string
		caption      string
		hashtags     sql.NullString
		visualPrompt string
		visualURL    string
		visualSource string
		videoURL     string
		videoStatus  string
		scheduledRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&brandID,
		&platform,
		&caption,
		&hashtags,
		&visualPrompt,
		&visualURL,
		&visualSource,
		&videoURL,
		&videoStatus,
		&scheduledRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan liked post: %w", err)
	}

	return &brand.Idea{
		ID:           id,
		BrandID:      brandID,
		Platform:     brand.Platform(platform),
		Caption:      caption,
		Hashtags:     unmarshalStrings(hashtags),
		VisualPrompt: visualPrompt,
		VisualURL:    visualURL,
		VisualSource: brand.VisualSource(visualSource),
		VideoURL:     videoURL,
		VideoStatus:  brand.VideoStatus(videoStatus),
		ScheduledAt:  parseTimePtr(scheduledRaw),
		Status:       brand.IdeaLiked,
		CreatedAt:    parseTime(createdRaw),
	}, nil
}
