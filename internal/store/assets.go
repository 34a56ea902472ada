package store

import (
	"context"
	"fmt"
	"strings"

	"postforge/internal/brand"
)

// UpsertAssets stores catalogued brand-owned images keyed by (brand, url).
// Existing labels are overwritten; nothing is removed.
func (s *Store) UpsertAssets(ctx context.Context, brandID int64, assets []brand.Asset) error {
	for _, asset := range assets {
		url := strings.TrimSpace(asset.URL)
		if url == "" {
			continue
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO assets (brand_id, url, label) VALUES (?, ?, ?)
             ON CONFLICT(brand_id, url) DO UPDATE SET label = excluded.label`,
			brandID, url, strings.TrimSpace(asset.Label),
		)
		if err != nil {
			return fmt.Errorf("upsert asset %s: %w", url, err)
		}
	}
	return nil
}

// ListAssets returns the brand's catalogued assets.
func (s *Store) ListAssets(ctx context.Context, brandID int64) ([]brand.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT brand_id, url, label FROM assets WHERE brand_id = ? ORDER BY url ASC", brandID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []brand.Asset
	for rows.Next() {
		var asset brand.Asset
		if err := rows.Scan(&asset.BrandID, &asset.URL, &asset.Label); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}
