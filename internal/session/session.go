// Package session is the facade the API surface drives: one active brand,
// its content feed, and the user actions on it. It composes the cache,
// resolver, job registry, and video poller without owning any of their
// policies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"postforge/internal/analysis"
	"postforge/internal/assets"
	"postforge/internal/brand"
	"postforge/internal/cache"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/jobs"
	"postforge/internal/logging"
	"postforge/internal/store"
	"postforge/internal/videopoll"
)

// ErrIdeaNotFound reports an idea id that is in neither the cache nor the
// liked store.
var ErrIdeaNotFound = errors.New("idea not found")

// Deps are the composed subsystems the session drives.
type Deps struct {
	Store      *store.Store
	Cache      *cache.Cache
	Resolver   *assets.Resolver
	Governor   *governor.Governor
	Registry   *jobs.Registry
	Poller     *videopoll.Poller
	Researcher analysis.Researcher
	Analysis   config.Analysis
	Resolution config.Resolver
	Logger     *slog.Logger
}

// Session exposes the user-facing operations.
type Session struct {
	store      *store.Store
	cache      *cache.Cache
	resolver   *assets.Resolver
	gov        *governor.Governor
	registry   *jobs.Registry
	poller     *videopoll.Poller
	researcher analysis.Researcher

	seedCount     int
	maxConcurrent int
	logger        *slog.Logger
}

// New builds the session facade.
func New(deps Deps) *Session {
	seedCount := deps.Analysis.SeedCount
	if seedCount <= 0 {
		seedCount = 10
	}
	maxConcurrent := deps.Resolution.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Session{
		store:         deps.Store,
		cache:         deps.Cache,
		resolver:      deps.Resolver,
		gov:           deps.Governor,
		registry:      deps.Registry,
		poller:        deps.Poller,
		researcher:    deps.Researcher,
		seedCount:     seedCount,
		maxConcurrent: maxConcurrent,
		logger:        logging.NewComponentLogger(deps.Logger, "session"),
	}
}

// StartAnalysis begins (or joins) a background analysis for the URL.
func (s *Session) StartAnalysis(ctx context.Context, sourceURL string, attached analysis.ProgressSink) (string, error) {
	return s.registry.Start(ctx, sourceURL, attached)
}

// DetachAnalysis promotes an attached analysis to background-only.
func (s *Session) DetachAnalysis(sourceURL string) bool {
	return s.registry.Detach(sourceURL)
}

// PromoteJob folds a completed background job into the active session: the
// profile is persisted, its seeded ideas become the brand's cached feed, and
// the brand becomes current. Promoting the same job again changes nothing.
func (s *Session) PromoteJob(ctx context.Context, jobID string) (*brand.Profile, error) {
	job, err := s.registry.Consume(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if job.Profile == nil {
		return nil, fmt.Errorf("promote job %s: no result to promote", jobID)
	}

	stored, err := s.store.UpsertBrand(ctx, *job.Profile)
	if err != nil {
		return nil, fmt.Errorf("promote job %s: %w", jobID, err)
	}
	ideas := make([]brand.Idea, len(job.Ideas))
	copy(ideas, job.Ideas)
	for i := range ideas {
		ideas[i].BrandID = stored.ID
	}
	if err := s.cache.Write(ctx, stored.ID, ideas); err != nil {
		s.logger.Warn("promoted feed not cached",
			logging.Int64(logging.FieldBrandID, stored.ID),
			logging.Error(err))
	}
	if err := s.store.SaveSessionState(ctx, store.SessionState{CurrentBrandID: stored.ID}); err != nil {
		s.logger.Warn("session state save failed", logging.Error(err))
	}
	return stored, nil
}

// MergeJob folds a completed job's profile into an existing brand instead of
// creating a new one: scalars fill only when empty, services and handles
// union, and the higher confidence wins. The brand keeps its source URL.
func (s *Session) MergeJob(ctx context.Context, brandID int64, jobID string) (*brand.Profile, error) {
	existing, err := s.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("merge job %s: %w", jobID, err)
	}
	job, err := s.registry.Consume(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("merge job %s: %w", jobID, store.ErrNotFound)
	}
	if job.Profile == nil {
		return nil, fmt.Errorf("merge job %s: no result to merge", jobID)
	}

	merged := *existing
	merged.Merge(*job.Profile)
	stored, err := s.store.UpsertBrand(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("merge job %s: %w", jobID, err)
	}
	s.logger.Info("analysis merged into brand",
		logging.Int64(logging.FieldBrandID, stored.ID),
		logging.String(logging.FieldJobID, jobID))
	return stored, nil
}

// FetchIdeas returns the brand's content feed: cached when live, regenerated
// otherwise. Regeneration seeds fresh ideas, caches the unresolved snapshot,
// then resolves visuals with bounded concurrency and updates the entry in
// place so the TTL clock keeps running from the seed.
func (s *Session) FetchIdeas(ctx context.Context, brandID int64, force bool) ([]brand.Idea, error) {
	if !force {
		ideas, ok, err := s.cache.Read(ctx, brandID)
		if err != nil {
			return nil, err
		}
		if ok {
			return ideas, nil
		}
	}

	profile, err := s.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("fetch ideas: %w", err)
	}

	ideas, err := governor.Do[[]brand.Idea](ctx, s.gov, governor.ClassText, governor.Request{
		Do: func(ctx context.Context) (any, error) {
			return s.researcher.SeedIdeas(ctx, *profile, s.seedCount)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ideas: %w", err)
	}
	now := time.Now()
	for i := range ideas {
		ideas[i].ID = uuid.NewString()
		ideas[i].BrandID = brandID
		ideas[i].CreatedAt = now
	}

	// Unresolved snapshot first, so a crash mid-resolution still leaves a
	// usable feed.
	if err := s.cache.Write(ctx, brandID, ideas); err != nil {
		s.logger.Warn("feed snapshot not cached",
			logging.Int64(logging.FieldBrandID, brandID),
			logging.Error(err))
	}

	resolved := s.resolveVisuals(ctx, ideas, *profile)
	if err := s.cache.UpdateSubset(ctx, brandID, resolved); err != nil {
		s.logger.Warn("resolved feed not cached",
			logging.Int64(logging.FieldBrandID, brandID),
			logging.Error(err))
	}
	return resolved, nil
}

// resolveVisuals runs the resolution chain over the feed, at most
// maxConcurrent ideas at a time. Resolution failures leave the idea without a
// visual rather than failing the feed.
func (s *Session) resolveVisuals(ctx context.Context, ideas []brand.Idea, profile brand.Profile) []brand.Idea {
	owned, err := s.store.ListAssets(ctx, profile.ID)
	if err != nil {
		s.logger.Warn("owned asset listing failed",
			logging.Int64(logging.FieldBrandID, profile.ID),
			logging.Error(err))
	}

	out := make([]brand.Idea, len(ideas))
	copy(out, ideas)

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for i := range out {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			visual, err := s.resolver.Resolve(ctx, out[i], profile, owned)
			if err != nil {
				s.logger.Warn("visual resolution aborted",
					logging.String(logging.FieldIdeaID, out[i].ID),
					logging.Error(err))
				return
			}
			out[i].VisualURL = visual.URL
			out[i].VisualSource = visual.Source
		}(i)
	}
	wg.Wait()
	return out
}

// LikeIdea moves a cached idea into the durable liked store and removes it
// from the cache: liked content is never subject to TTL expiry.
func (s *Session) LikeIdea(ctx context.Context, brandID int64, ideaID string) (*brand.Idea, error) {
	ideas, ok, err := s.cache.Read(ctx, brandID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("like idea %s: %w", ideaID, ErrIdeaNotFound)
	}
	var liked *brand.Idea
	for i := range ideas {
		if ideas[i].ID == ideaID {
			liked = &ideas[i]
			break
		}
	}
	if liked == nil {
		return nil, fmt.Errorf("like idea %s: %w", ideaID, ErrIdeaNotFound)
	}

	liked.Status = brand.IdeaLiked
	liked.BrandID = brandID
	if liked.VideoStatus == "" {
		liked.VideoStatus = brand.VideoNone
	}
	if err := s.store.UpsertLikedPost(ctx, *liked); err != nil {
		return nil, fmt.Errorf("like idea %s: %w", ideaID, err)
	}
	if err := s.cache.DeleteIdea(ctx, brandID, ideaID); err != nil {
		// The durable like already landed; a stale cache costs a regeneration.
		s.logger.Warn("cache removal after like failed",
			logging.String(logging.FieldIdeaID, ideaID),
			logging.Error(err))
	}
	return liked, nil
}

// UnlikeIdea removes a post from the liked store by explicit user action.
func (s *Session) UnlikeIdea(ctx context.Context, ideaID string) error {
	err := s.store.DeleteLikedPost(ctx, ideaID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("unlike idea %s: %w", ideaID, ErrIdeaNotFound)
	}
	return err
}

// RejectIdea drops an idea from the brand's feed.
func (s *Session) RejectIdea(ctx context.Context, brandID int64, ideaID string) error {
	return s.cache.DeleteIdea(ctx, brandID, ideaID)
}

// ScheduleIdea sets or clears the publish timestamp on a liked post.
func (s *Session) ScheduleIdea(ctx context.Context, ideaID string, at *time.Time) error {
	err := s.store.UpdateLikedPostSchedule(ctx, ideaID, at)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("schedule idea %s: %w", ideaID, ErrIdeaNotFound)
	}
	return err
}

// ListLiked returns the brand's liked posts.
func (s *Session) ListLiked(ctx context.Context, brandID int64) ([]brand.Idea, error) {
	return s.store.ListLikedPosts(ctx, brandID)
}

// RequestMotion starts a motion render for a liked post.
func (s *Session) RequestMotion(ctx context.Context, ideaID, instruction string) (brand.VideoStatus, error) {
	post, err := s.store.GetLikedPost(ctx, ideaID)
	if errors.Is(err, store.ErrNotFound) {
		return brand.VideoNone, fmt.Errorf("motion for %s: %w", ideaID, ErrIdeaNotFound)
	}
	if err != nil {
		return brand.VideoNone, err
	}
	return s.poller.Submit(ctx, *post, instruction)
}

// SwitchBrand makes another brand current. Queued foreground work for the
// outgoing brand is drained; in-flight calls finish and background jobs and
// video polls re-enter the queue on their own schedule.
func (s *Session) SwitchBrand(ctx context.Context, brandID int64) (*brand.Profile, error) {
	profile, err := s.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("switch brand: %w", err)
	}
	s.gov.Drain("brand switch")
	if err := s.store.SaveSessionState(ctx, store.SessionState{CurrentBrandID: brandID}); err != nil {
		return nil, fmt.Errorf("switch brand: %w", err)
	}
	s.logger.Info("brand switched",
		logging.Int64(logging.FieldBrandID, brandID),
		logging.String("name", profile.Name))
	return profile, nil
}

// RefreshBrand regenerates the feed. A hard refresh invalidates the cache
// first so stale content cannot survive a partial regeneration.
func (s *Session) RefreshBrand(ctx context.Context, brandID int64, hard bool) ([]brand.Idea, error) {
	if hard {
		if err := s.cache.Invalidate(ctx, brandID); err != nil {
			return nil, err
		}
	}
	return s.FetchIdeas(ctx, brandID, hard)
}

// Current returns the persisted session state and its brand, when set.
func (s *Session) Current(ctx context.Context) (store.SessionState, *brand.Profile, error) {
	state, err := s.store.GetSessionState(ctx)
	if err != nil {
		return store.SessionState{}, nil, err
	}
	if state.CurrentBrandID == 0 {
		return state, nil, nil
	}
	profile, err := s.store.GetBrand(ctx, state.CurrentBrandID)
	if errors.Is(err, store.ErrNotFound) {
		return state, nil, nil
	}
	if err != nil {
		return state, nil, err
	}
	return state, profile, nil
}
