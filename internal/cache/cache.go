// Package cache maintains the per-brand snapshot of generated content: one
// time-boxed entry per brand with read-through, explicit invalidation, and
// degrade-to-invalidate on write failure. The cache is the single source of
// truth for what content currently exists for a brand.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/logging"
	"postforge/internal/store"
)

// Cache wraps the store's cache_entries table with TTL semantics.
type Cache struct {
	store  *store.Store
	ttl    time.Duration
	sweep  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Decision is the metadata-only answer to "should regeneration be skipped".
type Decision struct {
	UseCache      bool
	Age           time.Duration
	ItemCount     int
	ResolvedCount int
}

// New constructs the cache layer.
func New(cfg config.Cache, st *store.Store, logger *slog.Logger) *Cache {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	sweep := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	if sweep <= 0 {
		sweep = time.Hour
	}
	return &Cache{
		store:  st,
		ttl:    ttl,
		sweep:  sweep,
		logger: logging.NewComponentLogger(logger, "cache"),
		now:    time.Now,
	}
}

// Write replaces the brand's entry wholesale with a fresh TTL. Liked ideas
// never enter the cache; they live in the durable liked store.
func (c *Cache) Write(ctx context.Context, brandID int64, ideas []brand.Idea) error {
	cacheable := excludeLiked(ideas)
	now := c.now()
	entry := store.CacheEntry{
		BrandID:       brandID,
		Ideas:         cacheable,
		CreatedAt:     now,
		ExpiresAt:     now.Add(c.ttl),
		ItemCount:     len(cacheable),
		ResolvedCount: countResolved(cacheable),
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Read returns the brand's ideas if a live entry exists. An expired entry is
// treated as absent and removed on the way out.
func (c *Cache) Read(ctx context.Context, brandID int64) ([]brand.Idea, bool, error) {
	entry, err := c.store.GetCacheEntry(ctx, brandID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read: %w", err)
	}
	if !entry.ExpiresAt.After(c.now()) {
		if err := c.store.DeleteCacheEntry(ctx, brandID); err != nil {
			c.logger.Warn("lazy expiry delete failed",
				logging.Int64(logging.FieldBrandID, brandID),
				logging.Error(err))
		}
		return nil, false, nil
	}
	return entry.Ideas, true, nil
}

// ShouldUseCache is the cheap freshness check: metadata only, no payload.
func (c *Cache) ShouldUseCache(ctx context.Context, brandID int64) (Decision, error) {
	meta, err := c.store.GetCacheMeta(ctx, brandID)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("cache freshness: %w", err)
	}
	now := c.now()
	if !meta.ExpiresAt.After(now) {
		return Decision{}, nil
	}
	return Decision{
		UseCache:      true,
		Age:           now.Sub(meta.CreatedAt),
		ItemCount:     meta.ItemCount,
		ResolvedCount: meta.ResolvedCount,
	}, nil
}

// UpdateSubset bulk-replaces the stored idea list without touching the TTL.
// Used when visuals resolve or ideas are liked/rejected mid-cycle.
func (c *Cache) UpdateSubset(ctx context.Context, brandID int64, ideas []brand.Idea) error {
	cacheable := excludeLiked(ideas)
	err := c.store.UpdateCacheIdeas(ctx, brandID, cacheable, countResolved(cacheable))
	if errors.Is(err, store.ErrNotFound) {
		// No live entry to update; write-through would extend the TTL, so
		// leave the cache absent.
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache update: %w", err)
	}
	return nil
}

// Invalidate deletes the brand's entry outright.
func (c *Cache) Invalidate(ctx context.Context, brandID int64) error {
	if err := c.store.DeleteCacheEntry(ctx, brandID); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// DeleteIdea removes one idea from the entry. Any failure along the way
// falls back to invalidating the whole entry: stale content reappearing is
// worse than a cache miss.
func (c *Cache) DeleteIdea(ctx context.Context, brandID int64, ideaID string) error {
	entry, err := c.store.GetCacheEntry(ctx, brandID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return c.nuke(ctx, brandID, err)
	}

	remaining := make([]brand.Idea, 0, len(entry.Ideas))
	for _, idea := range entry.Ideas {
		if idea.ID == ideaID {
			continue
		}
		remaining = append(remaining, idea)
	}
	if len(remaining) == len(entry.Ideas) {
		return nil
	}
	if err := c.store.UpdateCacheIdeas(ctx, brandID, remaining, countResolved(remaining)); err != nil {
		return c.nuke(ctx, brandID, err)
	}
	return nil
}

func (c *Cache) nuke(ctx context.Context, brandID int64, cause error) error {
	c.logger.Warn("targeted removal failed, invalidating entry",
		logging.Int64(logging.FieldBrandID, brandID),
		logging.Error(cause))
	// The update may have failed because the caller's context timed out;
	// the invalidate must still go through.
	ctx = context.WithoutCancel(ctx)
	if err := c.store.DeleteCacheEntry(ctx, brandID); err != nil {
		return fmt.Errorf("cache invalidate after failed update: %w (update failed: %s)", err, cause)
	}
	return nil
}

// SweepExpired deletes all entries whose expiry has passed.
func (c *Cache) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := c.store.DeleteExpiredCacheEntries(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	if removed > 0 {
		c.logger.Info("expired entries swept", logging.Int64("removed", removed))
	}
	return removed, nil
}

// RunSweeper sweeps once immediately and then on the configured interval
// until the context ends.
func (c *Cache) RunSweeper(ctx context.Context) {
	if _, err := c.SweepExpired(ctx); err != nil {
		c.logger.Warn("startup sweep failed", logging.Error(err))
	}
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.SweepExpired(ctx); err != nil {
				c.logger.Warn("periodic sweep failed", logging.Error(err))
			}
		}
	}
}

func excludeLiked(ideas []brand.Idea) []brand.Idea {
	out := make([]brand.Idea, 0, len(ideas))
	for _, idea := range ideas {
		if idea.Status == brand.IdeaLiked {
			continue
		}
		out = append(out, idea)
	}
	return out
}

func countResolved(ideas []brand.Idea) int {
	resolved := 0
	for _, idea := range ideas {
		if idea.HasVisual() {
			resolved++
		}
	}
	return resolved
}
