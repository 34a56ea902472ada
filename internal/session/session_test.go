package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"postforge/internal/assets"
	"postforge/internal/brand"
	"postforge/internal/cache"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/jobs"
	"postforge/internal/logging"
	"postforge/internal/notifications"
	"postforge/internal/services/imagegen"
	"postforge/internal/services/videogen"
	"postforge/internal/store"
	"postforge/internal/videopoll"
)

type seedOnlyResearcher struct {
	mu        sync.Mutex
	seedCalls int
	seedErr   error
}

func (r *seedOnlyResearcher) Research(ctx context.Context, siteURL string) (string, error) {
	return "", nil
}

func (r *seedOnlyResearcher) ExtractProfile(ctx context.Context, siteURL, findings string) (brand.Profile, error) {
	return brand.Profile{}, errors.New("not used")
}

func (r *seedOnlyResearcher) SeedIdeas(ctx context.Context, profile brand.Profile, count int) ([]brand.Idea, error) {
	r.mu.Lock()
	r.seedCalls++
	r.mu.Unlock()
	if r.seedErr != nil {
		return nil, r.seedErr
	}
	ideas := make([]brand.Idea, count)
	for i := range ideas {
		ideas[i] = brand.Idea{
			Platform:     brand.PlatformInstagram,
			Caption:      "caption",
			VisualPrompt: "an anvil",
			Status:       brand.IdeaPending,
			VideoStatus:  brand.VideoNone,
		}
	}
	return ideas, nil
}

func (r *seedOnlyResearcher) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seedCalls
}

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, req imagegen.Request) (string, error) {
	return "https://cdn.example/generated.png", nil
}

type idleRenderer struct{}

func (idleRenderer) Submit(ctx context.Context, req videogen.Request) (videogen.Result, error) {
	return videogen.Result{State: videogen.StateSucceeded, Reference: "https://cdn.example/clip.mp4"}, nil
}

func (idleRenderer) Poll(ctx context.Context, operationID string) (videogen.Result, error) {
	return videogen.Result{State: videogen.StatePending, Operation: operationID}, nil
}

func newTestSession(t *testing.T) (*Session, *store.Store, *seedOnlyResearcher) {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "postforge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	gov := governor.New(config.Governor{
		Text:             config.ClassLimits{PerMinute: 100, Concurrency: 10},
		Image:            config.ClassLimits{PerMinute: 100, Concurrency: 10},
		Video:            config.ClassLimits{PerMinute: 100, Concurrency: 10},
		MaxRetries:       1,
		RetryBaseDelayMS: 1,
	}, logging.NewNop())
	t.Cleanup(gov.Stop)

	logger := logging.NewNop()
	notifier := notifications.NewService(config.Notifications{}, st, logger)
	researcher := &seedOnlyResearcher{}

	resolverCfg := config.Resolver{ImageRetries: 1, MaxConcurrent: 2, PlaceholderBaseURL: "https://picsum.photos/seed"}
	resolver := assets.NewResolver(resolverCfg, gov, staticGenerator{}, logger)
	contentCache := cache.New(config.Cache{TTLHours: 24, SweepIntervalMinutes: 60}, st, logger)
	poller := videopoll.NewPoller(config.VideoPoll{IntervalSeconds: 10}, gov, idleRenderer{}, st, notifier, logger)
	registry := jobs.NewRegistry(context.Background(), st, notifier, nil, logger)

	sess := New(Deps{
		Store:      st,
		Cache:      contentCache,
		Resolver:   resolver,
		Governor:   gov,
		Registry:   registry,
		Poller:     poller,
		Researcher: researcher,
		Analysis:   config.Analysis{SeedCount: 4},
		Resolution: resolverCfg,
		Logger:     logger,
	})
	return sess, st, researcher
}

func seedBrand(t *testing.T, st *store.Store) *brand.Profile {
	t.Helper()
	profile, err := st.UpsertBrand(context.Background(), brand.Profile{
		SourceURL: "https://acme.example",
		Name:      "Acme",
		Vibe:      "industrial",
		Colors:    []string{"#111111"},
	})
	if err != nil {
		t.Fatalf("upsert brand: %v", err)
	}
	return profile
}

func TestFetchIdeasRegeneratesThenServesCache(t *testing.T) {
	sess, st, researcher := newTestSession(t)
	profile := seedBrand(t, st)

	ideas, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(ideas) != 4 {
		t.Fatalf("expected 4 ideas, got %d", len(ideas))
	}
	for _, idea := range ideas {
		if idea.ID == "" || idea.BrandID != profile.ID {
			t.Fatalf("idea not stamped: %+v", idea)
		}
		if idea.VisualURL != "https://cdn.example/generated.png" {
			t.Fatalf("visual not resolved: %+v", idea)
		}
		if idea.VisualSource != brand.SourceGenerated {
			t.Fatalf("visual source %q", idea.VisualSource)
		}
	}

	again, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if researcher.calls() != 1 {
		t.Fatalf("cache hit should not regenerate, seed called %d times", researcher.calls())
	}
	if len(again) != 4 || again[0].ID != ideas[0].ID {
		t.Fatalf("cache served different feed: %+v", again)
	}
}

func TestFetchIdeasForceBypassesCache(t *testing.T) {
	sess, st, researcher := newTestSession(t)
	profile := seedBrand(t, st)

	if _, err := sess.FetchIdeas(context.Background(), profile.ID, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := sess.FetchIdeas(context.Background(), profile.ID, true); err != nil {
		t.Fatalf("forced fetch: %v", err)
	}
	if researcher.calls() != 2 {
		t.Fatalf("force should regenerate, seed called %d times", researcher.calls())
	}
}

func TestLikeIdeaMovesToDurableStore(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	ideas, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	target := ideas[0]

	liked, err := sess.LikeIdea(context.Background(), profile.ID, target.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if liked.Status != brand.IdeaLiked {
		t.Fatalf("status %q", liked.Status)
	}

	stored, err := st.GetLikedPost(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("liked post missing: %v", err)
	}
	if stored.Caption != target.Caption || stored.VisualURL != target.VisualURL {
		t.Fatalf("liked post lost content: %+v", stored)
	}

	// The liked idea must be out of the cache.
	remaining, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	for _, idea := range remaining {
		if idea.ID == target.ID {
			t.Fatal("liked idea still cached")
		}
	}
	if len(remaining) != len(ideas)-1 {
		t.Fatalf("expected %d remaining, got %d", len(ideas)-1, len(remaining))
	}
}

func TestLikeUnknownIdea(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	if _, err := sess.FetchIdeas(context.Background(), profile.ID, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := sess.LikeIdea(context.Background(), profile.ID, "no-such-idea"); !errors.Is(err, ErrIdeaNotFound) {
		t.Fatalf("expected ErrIdeaNotFound, got %v", err)
	}
}

func TestRejectIdeaDropsFromFeed(t *testing.T) {
	sess, st, researcher := newTestSession(t)
	profile := seedBrand(t, st)

	ideas, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := sess.RejectIdea(context.Background(), profile.ID, ideas[0].ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	remaining, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(remaining) != len(ideas)-1 {
		t.Fatalf("expected %d remaining, got %d", len(ideas)-1, len(remaining))
	}
	if researcher.calls() != 1 {
		t.Fatal("rejecting one idea must not invalidate the feed")
	}
}

func TestScheduleIdea(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	ideas, _ := sess.FetchIdeas(context.Background(), profile.ID, false)
	liked, err := sess.LikeIdea(context.Background(), profile.ID, ideas[0].ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}

	at := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	if err := sess.ScheduleIdea(context.Background(), liked.ID, &at); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	stored, _ := st.GetLikedPost(context.Background(), liked.ID)
	if stored.ScheduledAt == nil || !stored.ScheduledAt.Equal(at) {
		t.Fatalf("schedule not stored: %+v", stored.ScheduledAt)
	}

	if err := sess.ScheduleIdea(context.Background(), "no-such-idea", &at); !errors.Is(err, ErrIdeaNotFound) {
		t.Fatalf("expected ErrIdeaNotFound, got %v", err)
	}
}

func TestRequestMotionResolvesImmediately(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	ideas, _ := sess.FetchIdeas(context.Background(), profile.ID, false)
	liked, err := sess.LikeIdea(context.Background(), profile.ID, ideas[0].ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}

	status, err := sess.RequestMotion(context.Background(), liked.ID, "slow pan")
	if err != nil {
		t.Fatalf("motion: %v", err)
	}
	if status != brand.VideoReady {
		t.Fatalf("status %q", status)
	}
	stored, _ := st.GetLikedPost(context.Background(), liked.ID)
	if stored.VideoURL != "https://cdn.example/clip.mp4" {
		t.Fatalf("video not recorded: %+v", stored)
	}
}

func TestRefreshBrandHardInvalidates(t *testing.T) {
	sess, st, researcher := newTestSession(t)
	profile := seedBrand(t, st)

	first, err := sess.FetchIdeas(context.Background(), profile.ID, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	refreshed, err := sess.RefreshBrand(context.Background(), profile.ID, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if researcher.calls() != 2 {
		t.Fatalf("hard refresh should regenerate, seed called %d times", researcher.calls())
	}
	if refreshed[0].ID == first[0].ID {
		t.Fatal("hard refresh served the old feed")
	}
}

func TestMergeJobFoldsProfileIntoBrand(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	completed := time.Now().UTC()
	job := brand.Job{
		ID:          "job-merge",
		URL:         "https://instagram.com/acme",
		Name:        "Acme on Instagram",
		Status:      brand.JobComplete,
		Progress:    1,
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: &completed,
		Profile: &brand.Profile{
			SourceURL:  "https://instagram.com/acme",
			Name:       "Acme Industrial Co",
			Industry:   "manufacturing",
			Handles:    []string{"@acme"},
			Colors:     []string{"#222222"},
			Confidence: 80,
		},
	}
	if err := st.PutJob(context.Background(), job); err != nil {
		t.Fatalf("put job: %v", err)
	}

	merged, err := sess.MergeJob(context.Background(), profile.ID, job.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.ID != profile.ID || merged.SourceURL != profile.SourceURL {
		t.Fatalf("merge created a different brand: %+v", merged)
	}
	if merged.Name != "Acme" {
		t.Fatalf("merge overwrote a populated scalar: %q", merged.Name)
	}
	if merged.Industry != "manufacturing" {
		t.Fatalf("merge did not fill empty industry: %q", merged.Industry)
	}
	if len(merged.Handles) != 1 || merged.Handles[0] != "@acme" {
		t.Fatalf("handles not unioned: %v", merged.Handles)
	}
	if merged.Confidence != 80 {
		t.Fatalf("confidence %d", merged.Confidence)
	}
	if len(merged.Colors) != 1 || merged.Colors[0] != "#111111" {
		t.Fatalf("existing palette should win: %v", merged.Colors)
	}

	consumed, err := st.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !consumed.Consumed {
		t.Fatal("merged job should be marked consumed")
	}
}

func TestMergeJobRejectsUnfinishedOrMissing(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	running := brand.Job{
		ID:        "job-running",
		URL:       "https://acme.example/about",
		Status:    brand.JobResearching,
		StartedAt: time.Now().UTC(),
	}
	if err := st.PutJob(context.Background(), running); err != nil {
		t.Fatalf("put job: %v", err)
	}
	if _, err := sess.MergeJob(context.Background(), profile.ID, running.ID); !errors.Is(err, jobs.ErrNotFinished) {
		t.Fatalf("expected not-finished conflict, got %v", err)
	}
	if _, err := sess.MergeJob(context.Background(), profile.ID, "no-such-job"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestSwitchBrandAndCurrent(t *testing.T) {
	sess, st, _ := newTestSession(t)
	profile := seedBrand(t, st)

	switched, err := sess.SwitchBrand(context.Background(), profile.ID)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if switched.Name != "Acme" {
		t.Fatalf("switched to %+v", switched)
	}

	state, current, err := sess.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if state.CurrentBrandID != profile.ID || current == nil || current.ID != profile.ID {
		t.Fatalf("session state %+v brand %+v", state, current)
	}

	if _, err := sess.SwitchBrand(context.Background(), 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown brand, got %v", err)
	}
}
