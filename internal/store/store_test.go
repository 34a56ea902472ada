package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"postforge/internal/brand"
	"postforge/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "postforge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedBrand(t *testing.T, s *store.Store) *brand.Profile {
	t.Helper()
	profile, err := s.UpsertBrand(context.Background(), brand.Profile{
		SourceURL:  "https://acme.example",
		Name:       "Acme",
		Industry:   "manufacturing",
		Colors:     []string{"#112233"},
		Services:   []string{"anvils"},
		Confidence: 80,
	})
	if err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	return profile
}

func TestUpsertBrandDedupesByNormalizedURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedBrand(t, s)

	// Same site, different URL spelling: must update, not duplicate.
	second, err := s.UpsertBrand(ctx, brand.Profile{
		SourceURL:  "http://www.acme.example/",
		Name:       "Acme Industrial",
		Confidence: 90,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row, got ids %d and %d", first.ID, second.ID)
	}
	if second.Name != "Acme Industrial" {
		t.Fatalf("name not updated: %q", second.Name)
	}

	brands, err := s.ListBrands(ctx)
	if err != nil {
		t.Fatalf("list brands: %v", err)
	}
	if len(brands) != 1 {
		t.Fatalf("expected 1 brand, got %d", len(brands))
	}
}

func TestDeleteBrandCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	profile := seedBrand(t, s)

	if err := s.UpsertAssets(ctx, profile.ID, []brand.Asset{{URL: "https://acme.example/a.png", Label: "anvil"}}); err != nil {
		t.Fatalf("upsert assets: %v", err)
	}
	if err := s.PutCacheEntry(ctx, store.CacheEntry{
		BrandID:   profile.ID,
		Ideas:     []brand.Idea{{ID: "i1", Caption: "x", Status: brand.IdeaPending}},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		ItemCount: 1,
	}); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	if err := s.DeleteBrand(ctx, profile.ID); err != nil {
		t.Fatalf("delete brand: %v", err)
	}
	if assets, _ := s.ListAssets(ctx, profile.ID); len(assets) != 0 {
		t.Fatalf("assets survived cascade: %v", assets)
	}
	if _, err := s.GetCacheEntry(ctx, profile.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cache entry survived cascade: %v", err)
	}
}

func TestLikedPostRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	profile := seedBrand(t, s)

	scheduled := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	idea := brand.Idea{
		ID:           "idea-1",
		BrandID:      profile.ID,
		Platform:     brand.PlatformInstagram,
		Caption:      "Forge ahead",
		Hashtags:     []string{"#anvil"},
		VisualPrompt: "an anvil at dawn",
		VisualURL:    "https://cdn.example/forge.png",
		VisualSource: brand.SourceGenerated,
		VideoStatus:  brand.VideoNone,
		ScheduledAt:  &scheduled,
		Status:       brand.IdeaLiked,
	}
	if err := s.UpsertLikedPost(ctx, idea); err != nil {
		t.Fatalf("upsert liked post: %v", err)
	}

	got, err := s.GetLikedPost(ctx, "idea-1")
	if err != nil {
		t.Fatalf("get liked post: %v", err)
	}
	if got.Caption != idea.Caption || got.Status != brand.IdeaLiked {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(scheduled) {
		t.Fatalf("scheduled timestamp lost: %v", got.ScheduledAt)
	}

	if err := s.UpdateLikedPostVideo(ctx, "idea-1", "https://cdn.example/clip.mp4", brand.VideoReady); err != nil {
		t.Fatalf("update video: %v", err)
	}
	got, err = s.GetLikedPost(ctx, "idea-1")
	if err != nil {
		t.Fatalf("get after video update: %v", err)
	}
	if got.VideoStatus != brand.VideoReady || got.VideoURL == "" {
		t.Fatalf("video update lost: %+v", got)
	}

	if err := s.UpdateLikedPostVideo(ctx, "missing", "", brand.VideoFailed); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCacheEntryExpirySweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	profile := seedBrand(t, s)
	other, err := s.UpsertBrand(ctx, brand.Profile{SourceURL: "https://other.example", Name: "Other"})
	if err != nil {
		t.Fatalf("second brand: %v", err)
	}

	now := time.Now()
	if err := s.PutCacheEntry(ctx, store.CacheEntry{
		BrandID: profile.ID, Ideas: nil, CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("put expired entry: %v", err)
	}
	if err := s.PutCacheEntry(ctx, store.CacheEntry{
		BrandID: other.ID, Ideas: nil, CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("put fresh entry: %v", err)
	}

	removed, err := s.DeleteExpiredCacheEntries(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := s.GetCacheMeta(ctx, other.ID); err != nil {
		t.Fatalf("fresh entry removed: %v", err)
	}
}

func TestUpdateCacheIdeasKeepsTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	profile := seedBrand(t, s)

	expires := time.Now().Add(24 * time.Hour)
	if err := s.PutCacheEntry(ctx, store.CacheEntry{
		BrandID:   profile.ID,
		Ideas:     []brand.Idea{{ID: "i1", Caption: "a", Status: brand.IdeaPending}},
		CreatedAt: time.Now(),
		ExpiresAt: expires,
		ItemCount: 1,
	}); err != nil {
		t.Fatalf("put entry: %v", err)
	}

	updated := []brand.Idea{
		{ID: "i1", Caption: "a", VisualURL: "https://cdn.example/a.png", Status: brand.IdeaPending},
		{ID: "i2", Caption: "b", Status: brand.IdeaPending},
	}
	if err := s.UpdateCacheIdeas(ctx, profile.ID, updated, 1); err != nil {
		t.Fatalf("update ideas: %v", err)
	}

	entry, err := s.GetCacheEntry(ctx, profile.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if len(entry.Ideas) != 2 || entry.ItemCount != 2 || entry.ResolvedCount != 1 {
		t.Fatalf("idea update mismatch: %+v", entry)
	}
	if entry.ExpiresAt.Unix() != expires.Unix() {
		t.Fatalf("ttl changed: %v vs %v", entry.ExpiresAt, expires)
	}
}

func TestJobLifecycleAndStartupReconciliation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := brand.Job{
		ID:        "job-1",
		URL:       "HTTPS://Acme.example/",
		Status:    brand.JobResearching,
		Progress:  0.4,
		StartedAt: time.Now(),
	}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("put job: %v", err)
	}

	// Lookup by any spelling of the same URL.
	got, err := s.GetJobByURL(ctx, "http://www.acme.example")
	if err != nil {
		t.Fatalf("get job by url: %v", err)
	}
	if got.ID != "job-1" {
		t.Fatalf("unexpected job %+v", got)
	}

	failed, err := s.MarkInFlightJobsFailed(ctx, "daemon restarted")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 reconciled job, got %d", failed)
	}
	got, err = s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != brand.JobFailed || got.Error != "daemon restarted" {
		t.Fatalf("job not reconciled: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("reconciled job missing completion timestamp")
	}
}

func TestJobPersistsResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	completed := time.Now()
	job := brand.Job{
		ID:          "job-2",
		URL:         "https://acme.example",
		Name:        "Acme",
		Status:      brand.JobComplete,
		Progress:    1,
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: &completed,
		Profile:     &brand.Profile{SourceURL: "https://acme.example", Name: "Acme", Confidence: 85},
		Ideas:       []brand.Idea{{ID: "i1", Caption: "x", Status: brand.IdeaPending}},
	}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("put job: %v", err)
	}

	got, err := s.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Profile == nil || got.Profile.Name != "Acme" {
		t.Fatalf("profile not persisted: %+v", got.Profile)
	}
	if len(got.Ideas) != 1 {
		t.Fatalf("ideas not persisted: %+v", got.Ideas)
	}

	got.Consumed = true
	if err := s.PutJob(ctx, *got); err != nil {
		t.Fatalf("mark consumed: %v", err)
	}
	again, err := s.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("get consumed job: %v", err)
	}
	if !again.Consumed {
		t.Fatal("consumed flag lost")
	}
}

func TestNotificationsLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := brand.Notification{
		ID:        "n-1",
		Kind:      brand.NotifyAnalysisComplete,
		Title:     "Analysis complete",
		Message:   "Acme is ready",
		SourceURL: "https://acme.example",
	}
	if err := s.InsertNotification(ctx, n); err != nil {
		t.Fatalf("insert notification: %v", err)
	}

	list, err := s.ListNotifications(ctx)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 1 || list[0].Read {
		t.Fatalf("unexpected list %+v", list)
	}

	if err := s.MarkNotificationRead(ctx, "n-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	list, _ = s.ListNotifications(ctx)
	if !list[0].Read {
		t.Fatal("read flag not persisted")
	}

	if err := s.ClearNotifications(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	list, _ = s.ListNotifications(ctx)
	if len(list) != 0 {
		t.Fatalf("notifications survived clear: %+v", list)
	}
}

func TestVideoJobsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutVideoJob(ctx, brand.VideoJob{IdeaID: "idea-1", Operation: "op-1"}); err != nil {
		t.Fatalf("put video job: %v", err)
	}
	jobs, err := s.ListVideoJobs(ctx)
	if err != nil {
		t.Fatalf("list video jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Operation != "op-1" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if err := s.DeleteVideoJob(ctx, "idea-1"); err != nil {
		t.Fatalf("delete video job: %v", err)
	}
	jobs, _ = s.ListVideoJobs(ctx)
	if len(jobs) != 0 {
		t.Fatalf("video job survived delete: %+v", jobs)
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, err := s.GetSessionState(ctx)
	if err != nil {
		t.Fatalf("fresh session state: %v", err)
	}
	if state.CurrentBrandID != 0 {
		t.Fatalf("fresh state not zero: %+v", state)
	}

	if err := s.SaveSessionState(ctx, store.SessionState{CurrentBrandID: 7, ViewName: "swipe"}); err != nil {
		t.Fatalf("save session state: %v", err)
	}
	if err := s.SaveSessionState(ctx, store.SessionState{CurrentBrandID: 9, ViewName: "calendar"}); err != nil {
		t.Fatalf("overwrite session state: %v", err)
	}
	state, err = s.GetSessionState(ctx)
	if err != nil {
		t.Fatalf("get session state: %v", err)
	}
	if state.CurrentBrandID != 9 || state.ViewName != "calendar" {
		t.Fatalf("unexpected state %+v", state)
	}
}
