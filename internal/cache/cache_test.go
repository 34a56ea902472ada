package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/logging"
	"postforge/internal/store"
)

func newTestCache(t *testing.T) (*Cache, *store.Store, int64) {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "postforge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	profile, err := st.UpsertBrand(context.Background(), brand.Profile{SourceURL: "https://acme.example", Name: "Acme"})
	if err != nil {
		t.Fatalf("seed brand: %v", err)
	}

	c := New(config.Cache{TTLHours: 24, SweepIntervalMinutes: 60}, st, logging.NewNop())
	return c, st, profile.ID
}

func ideas(ids ...string) []brand.Idea {
	out := make([]brand.Idea, 0, len(ids))
	for _, id := range ids {
		out = append(out, brand.Idea{ID: id, Caption: "c-" + id, Status: brand.IdeaPending})
	}
	return out
}

func TestReadReturnsOnlyFreshEntries(t *testing.T) {
	c, _, brandID := newTestCache(t)
	ctx := context.Background()

	if err := c.Write(ctx, brandID, ideas("a", "b")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, ok, err := c.Read(ctx, brandID)
	if err != nil || !ok {
		t.Fatalf("read fresh: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ideas, got %d", len(got))
	}

	// Advance the clock past the TTL: the entry is logically absent and is
	// removed by the read itself.
	c.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, ok, err = c.Read(ctx, brandID)
	if err != nil {
		t.Fatalf("read expired: %v", err)
	}
	if ok {
		t.Fatal("expired entry must read as absent")
	}

	c.now = time.Now
	if _, ok, _ = c.Read(ctx, brandID); ok {
		t.Fatal("lazy expiry should have removed the entry")
	}
}

func TestShouldUseCacheIsMetadataOnly(t *testing.T) {
	c, _, brandID := newTestCache(t)
	ctx := context.Background()

	decision, err := c.ShouldUseCache(ctx, brandID)
	if err != nil {
		t.Fatalf("freshness empty: %v", err)
	}
	if decision.UseCache {
		t.Fatal("empty cache should not be used")
	}

	withVisual := ideas("a", "b")
	withVisual[0].VisualURL = "https://cdn.example/a.png"
	if err := c.Write(ctx, brandID, withVisual); err != nil {
		t.Fatalf("write: %v", err)
	}

	decision, err = c.ShouldUseCache(ctx, brandID)
	if err != nil {
		t.Fatalf("freshness: %v", err)
	}
	if !decision.UseCache || decision.ItemCount != 2 || decision.ResolvedCount != 1 {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestWriteExcludesLikedIdeas(t *testing.T) {
	c, _, brandID := newTestCache(t)
	ctx := context.Background()

	mixed := ideas("a", "b")
	mixed[1].Status = brand.IdeaLiked
	if err := c.Write(ctx, brandID, mixed); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok, err := c.Read(ctx, brandID)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("liked idea leaked into cache: %+v", got)
	}
}

func TestUpdateSubsetKeepsTTL(t *testing.T) {
	c, st, brandID := newTestCache(t)
	ctx := context.Background()

	if err := c.Write(ctx, brandID, ideas("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	before, err := st.GetCacheMeta(ctx, brandID)
	if err != nil {
		t.Fatalf("meta before: %v", err)
	}

	if err := c.UpdateSubset(ctx, brandID, ideas("a", "b", "c")); err != nil {
		t.Fatalf("update subset: %v", err)
	}
	after, err := st.GetCacheMeta(ctx, brandID)
	if err != nil {
		t.Fatalf("meta after: %v", err)
	}
	if !after.ExpiresAt.Equal(before.ExpiresAt) {
		t.Fatalf("ttl changed: %v -> %v", before.ExpiresAt, after.ExpiresAt)
	}
	if after.ItemCount != 3 {
		t.Fatalf("item count not updated: %d", after.ItemCount)
	}
}

func TestUpdateSubsetWithoutEntryIsNoop(t *testing.T) {
	c, _, brandID := newTestCache(t)
	ctx := context.Background()

	if err := c.UpdateSubset(ctx, brandID, ideas("a")); err != nil {
		t.Fatalf("update on absent entry: %v", err)
	}
	if _, ok, _ := c.Read(ctx, brandID); ok {
		t.Fatal("update must not create an entry")
	}
}

func TestDeleteIdeaRemovesSingleIdea(t *testing.T) {
	c, _, brandID := newTestCache(t)
	ctx := context.Background()

	if err := c.Write(ctx, brandID, ideas("a", "b", "c")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.DeleteIdea(ctx, brandID, "b"); err != nil {
		t.Fatalf("delete idea: %v", err)
	}

	got, ok, err := c.Read(ctx, brandID)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ideas, got %d", len(got))
	}
	for _, idea := range got {
		if idea.ID == "b" {
			t.Fatal("idea b still present")
		}
	}
}

func TestDeleteIdeaFallsBackToInvalidate(t *testing.T) {
	c, _, brandID := newTestCache(t)
	ctx := context.Background()

	if err := c.Write(ctx, brandID, ideas("a", "b")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A dead caller context makes the targeted update fail; correctness
	// demands the whole entry go rather than risk stale content.
	dead, cancel := context.WithCancel(ctx)
	cancel()
	if err := c.DeleteIdea(dead, brandID, "a"); err != nil {
		t.Fatalf("delete with dead context: %v", err)
	}

	if _, ok, _ := c.Read(ctx, brandID); ok {
		t.Fatal("entry should have been invalidated")
	}
}

func TestSweepExpired(t *testing.T) {
	c, st, brandID := newTestCache(t)
	ctx := context.Background()

	other, err := st.UpsertBrand(ctx, brand.Profile{SourceURL: "https://other.example", Name: "Other"})
	if err != nil {
		t.Fatalf("second brand: %v", err)
	}

	if err := c.Write(ctx, brandID, ideas("a")); err != nil {
		t.Fatalf("write fresh: %v", err)
	}
	c.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	if err := c.Write(ctx, other.ID, ideas("b")); err != nil {
		t.Fatalf("write stale: %v", err)
	}
	c.now = time.Now

	removed, err := c.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, ok, _ := c.Read(ctx, brandID); !ok {
		t.Fatal("fresh entry swept")
	}
}
