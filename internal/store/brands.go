package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postforge/internal/brand"
	"postforge/internal/textutil"
)

const brandColumns = "id, normalized_url, source_url, name, industry, essence, strategy, vibe, colors_json, services_json, handles_json, logo_url, confidence, created_at, updated_at"

// UpsertBrand inserts or updates a brand keyed by its normalized source URL
// and returns the stored row.
func (s *Store) UpsertBrand(ctx context.Context, profile brand.Profile) (*brand.Profile, error) {
	normalized := textutil.NormalizeURL(profile.SourceURL)
	if normalized == "" {
		return nil, errors.New("upsert brand: source url required")
	}

	colors, err := marshalJSON(profile.Colors)
	if err != nil {
		return nil, err
	}
	services, err := marshalJSON(profile.Services)
	if err != nil {
		return nil, err
	}
	handles, err := marshalJSON(profile.Handles)
	if err != nil {
		return nil, err
	}

	timestamp := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO brands (
            normalized_url, source_url, name, industry, essence, strategy, vibe,
            colors_json, services_json, handles_json, logo_url, confidence,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(normalized_url) DO UPDATE SET
            source_url = excluded.source_url,
            name = excluded.name,
            industry = excluded.industry,
            essence = excluded.essence,
            strategy = excluded.strategy,
            vibe = excluded.vibe,
            colors_json = excluded.colors_json,
            services_json = excluded.services_json,
            handles_json = excluded.handles_json,
            logo_url = excluded.logo_url,
            confidence = excluded.confidence,
            updated_at = excluded.updated_at`,
		normalized,
		profile.SourceURL,
		profile.Name,
		profile.Industry,
		profile.Essence,
		profile.Strategy,
		profile.Vibe,
		colors,
		services,
		handles,
		profile.LogoURL,
		profile.Confidence,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert brand: %w", err)
	}
	return s.GetBrandByURL(ctx, profile.SourceURL)
}

// GetBrand fetches a brand by identifier.
func (s *Store) GetBrand(ctx context.Context, id int64) (*brand.Profile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+brandColumns+" FROM brands WHERE id = ?", id)
	return scanBrand(row)
}

// GetBrandByURL fetches a brand by its normalized source URL.
func (s *Store) GetBrandByURL(ctx context.Context, sourceURL string) (*brand.Profile, error) {
	normalized := textutil.NormalizeURL(sourceURL)
	row := s.db.QueryRowContext(ctx, "SELECT "+brandColumns+" FROM brands WHERE normalized_url = ?", normalized)
	return scanBrand(row)
}

// ListBrands returns all brands ordered by creation time.
func (s *Store) ListBrands(ctx context.Context) ([]*brand.Profile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+brandColumns+" FROM brands ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	var profiles []*brand.Profile
	for rows.Next() {
		profile, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	return profiles, nil
}

// DeleteBrand removes a brand. Owned assets, liked posts, and cache entries
// cascade with it.
func (s *Store) DeleteBrand(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM brands WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete brand: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete brand: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBrand(scanner interface{ Scan(dest ...any) error }) (*brand.Profile, error) {
	var (
		id         int64
		normalized string
		sourceURL  string
		name       string
		industry   string
		essence    string
		strategy   string
		vibe       string
		colors     sql.NullString
		services   sql.NullString
		handles    sql.NullString
		logoURL    string
		confidence int
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&normalized,
		&sourceURL,
		&name,
		&industry,
		&essence,
		&strategy,
		&vibe,
		&colors,
		&services,
		&handles,
		&logoURL,
		&confidence,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan brand: %w", err)
	}

	return &brand.Profile{
		ID:         id,
		SourceURL:  sourceURL,
		Name:       name,
		Industry:   industry,
		Essence:    essence,
		Strategy:   strategy,
		Vibe:       vibe,
		Colors:     unmarshalStrings(colors),
		Services:   unmarshalStrings(services),
		Handles:    unmarshalStrings(handles),
		LogoURL:    logoURL,
		Confidence: confidence,
		CreatedAt:  parseTime(createdRaw),
		UpdatedAt:  parseTime(updatedRaw),
	}, nil
}
