package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postforge/internal/brand"
)

// CacheEntry is the per-brand snapshot of generated content. At most one
// live entry exists per brand.
type CacheEntry struct {
	BrandID       int64
	Ideas         []brand.Idea
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ItemCount     int
	ResolvedCount int
}

// CacheMeta is the payload-free view of a cache entry used for freshness
// checks.
type CacheMeta struct {
	BrandID       int64
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ItemCount     int
	ResolvedCount int
}

// PutCacheEntry replaces the brand's cache entry wholesale.
func (s *Store) PutCacheEntry(ctx context.Context, entry CacheEntry) error {
	ideas, err := marshalJSON(entry.Ideas)
	if err != nil {
		return err
	}
	if ideas == nil {
		ideas = "[]"
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (brand_id, ideas_json, created_at, expires_at, item_count, resolved_count)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(brand_id) DO UPDATE SET
            ideas_json = excluded.ideas_json,
            created_at = excluded.created_at,
            expires_at = excluded.expires_at,
            item_count = excluded.item_count,
            resolved_count = excluded.resolved_count`,
		entry.BrandID,
		ideas,
		formatTime(entry.CreatedAt),
		formatTime(entry.ExpiresAt),
		entry.ItemCount,
		entry.ResolvedCount,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry fetches the full entry including the idea payload.
func (s *Store) GetCacheEntry(ctx context.Context, brandID int64) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT brand_id, ideas_json, created_at, expires_at, item_count, resolved_count FROM cache_entries WHERE brand_id = ?",
		brandID,
	)
	var (
		entry      CacheEntry
		ideasRaw   string
		createdRaw sql.NullString
		expiresRaw sql.NullString
	)
	if err := row.Scan(&entry.BrandID, &ideasRaw, &createdRaw, &expiresRaw, &entry.ItemCount, &entry.ResolvedCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	entry.CreatedAt = parseTime(createdRaw)
	entry.ExpiresAt = parseTime(expiresRaw)
	if err := json.Unmarshal([]byte(ideasRaw), &entry.Ideas); err != nil {
		return nil, fmt.Errorf("decode cache ideas: %w", err)
	}
	return &entry, nil
}

// GetCacheMeta fetches freshness metadata without the idea payload.
func (s *Store) GetCacheMeta(ctx context.Context, brandID int64) (*CacheMeta, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT brand_id, created_at, expires_at, item_count, resolved_count FROM cache_entries WHERE brand_id = ?",
		brandID,
	)
	var (
		meta       CacheMeta
		createdRaw sql.NullString
		expiresRaw sql.NullString
	)
	if err := row.Scan(&meta.BrandID, &createdRaw, &expiresRaw, &meta.ItemCount, &meta.ResolvedCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan cache meta: %w", err)
	}
	meta.CreatedAt = parseTime(createdRaw)
	meta.ExpiresAt = parseTime(expiresRaw)
	return &meta, nil
}

// UpdateCacheIdeas replaces the stored idea list and counters without
// touching the entry's TTL.
func (s *Store) UpdateCacheIdeas(ctx context.Context, brandID int64, ideas []brand.Idea, resolvedCount int) error {
	encoded, err := marshalJSON(ideas)
	if err != nil {
		return err
	}
	if encoded == nil {
		encoded = "[]"
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE cache_entries SET ideas_json = ?, item_count = ?, resolved_count = ? WHERE brand_id = ?",
		encoded, len(ideas), resolvedCount, brandID,
	)
	if err != nil {
		return fmt.Errorf("update cache ideas: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cache ideas: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCacheEntry removes the brand's entry outright.
func (s *Store) DeleteCacheEntry(ctx context.Context, brandID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE brand_id = ?", brandID); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteExpiredCacheEntries removes every entry whose expiry has passed and
// returns the number removed.
func (s *Store) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: rows affected: %w", err)
	}
	return affected, nil
}
