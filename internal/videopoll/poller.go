// Package videopoll turns liked posts into motion renders and tracks the
// asynchronous operations the rendering service hands back. Pending
// operations survive restarts through the store and are polled on a fixed
// interval for the daemon's lifetime.
package videopoll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/logging"
	"postforge/internal/notifications"
	"postforge/internal/services"
	"postforge/internal/services/videogen"
	"postforge/internal/store"
)

const defaultInterval = 10 * time.Second

// Renderer is the slice of the video service the poller needs.
type Renderer interface {
	Submit(ctx context.Context, req videogen.Request) (videogen.Result, error)
	Poll(ctx context.Context, operationID string) (videogen.Result, error)
}

// Poller owns the motion-rendering lifecycle for liked posts.
type Poller struct {
	gov      *governor.Governor
	renderer Renderer
	store    *store.Store
	notifier *notifications.Service
	logger   *slog.Logger
	interval time.Duration
}

// Option customizes the poller.
type Option func(*Poller)

// WithInterval overrides the poll interval. Tests use this to avoid
// multi-second waits.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// NewPoller builds the poller.
func NewPoller(cfg config.VideoPoll, gov *governor.Governor, renderer Renderer, st *store.Store, notifier *notifications.Service, logger *slog.Logger, opts ...Option) *Poller {
	interval := defaultInterval
	if cfg.IntervalSeconds > 0 {
		interval = time.Duration(cfg.IntervalSeconds) * time.Second
	}
	p := &Poller{
		gov:      gov,
		renderer: renderer,
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "videopoll"),
		interval: interval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit starts a motion render for a liked post. A synchronous result
// resolves immediately; an operation handle is persisted for polling and the
// post stays in the generating state.
func (p *Poller) Submit(ctx context.Context, idea brand.Idea, instruction string) (brand.VideoStatus, error) {
	if !idea.HasVisual() {
		return brand.VideoNone, fmt.Errorf("motion for %s: no resolved visual", idea.ID)
	}

	if err := p.store.UpdateLikedPostVideo(ctx, idea.ID, "", brand.VideoGenerating); err != nil {
		return brand.VideoNone, fmt.Errorf("motion for %s: %w", idea.ID, err)
	}

	result, err := governor.Do[videogen.Result](ctx, p.gov, governor.ClassVideo, governor.Request{
		Do: func(ctx context.Context) (any, error) {
			return p.renderer.Submit(ctx, videogen.Request{
				Instruction: instruction,
				SourceImage: idea.VisualURL,
			})
		},
	})
	if err != nil {
		if storeErr := p.store.UpdateLikedPostVideo(ctx, idea.ID, "", brand.VideoFailed); storeErr != nil {
			p.logger.Warn("video status update failed",
				logging.String(logging.FieldIdeaID, idea.ID),
				logging.Error(storeErr))
		}
		return brand.VideoFailed, fmt.Errorf("motion for %s: %w", idea.ID, err)
	}

	switch result.State {
	case videogen.StateSucceeded:
		return p.resolve(ctx, idea.ID, result)
	case videogen.StateFailed:
		return p.resolve(ctx, idea.ID, result)
	default:
		job := brand.VideoJob{IdeaID: idea.ID, Operation: result.Operation, CreatedAt: time.Now()}
		if err := p.store.PutVideoJob(ctx, job); err != nil {
			return brand.VideoFailed, fmt.Errorf("motion for %s: track operation: %w", idea.ID, err)
		}
		p.logger.Info("render operation tracked",
			logging.String(logging.FieldIdeaID, idea.ID),
			logging.String("operation", result.Operation))
		return brand.VideoGenerating, nil
	}
}

// Run polls pending operations until the context ends. Poll errors are
// transient: the operation stays tracked and the next tick retries.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("video poller started", logging.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("video poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce checks every tracked operation exactly once.
func (p *Poller) PollOnce(ctx context.Context) {
	jobs, err := p.store.ListVideoJobs(ctx)
	if err != nil {
		p.logger.Warn("video job listing failed", logging.Error(err))
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		p.pollJob(ctx, job)
	}
}

func (p *Poller) pollJob(ctx context.Context, job brand.VideoJob) {
	result, err := governor.Do[videogen.Result](ctx, p.gov, governor.ClassVideo, governor.Request{
		Do: func(ctx context.Context) (any, error) {
			return p.renderer.Poll(ctx, job.Operation)
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotFound):
		// The operation expired server-side; it will never resolve.
		result = videogen.Result{State: videogen.StateFailed, Reason: "operation expired"}
	default:
		p.logger.Debug("poll attempt failed, will retry",
			logging.String(logging.FieldIdeaID, job.IdeaID),
			logging.Error(err))
		return
	}

	if !result.Terminal() {
		return
	}
	if _, err := p.resolve(ctx, job.IdeaID, result); err != nil {
		p.logger.Warn("render resolution failed",
			logging.String(logging.FieldIdeaID, job.IdeaID),
			logging.Error(err))
		return
	}
	if err := p.store.DeleteVideoJob(ctx, job.IdeaID); err != nil {
		p.logger.Warn("video job cleanup failed",
			logging.String(logging.FieldIdeaID, job.IdeaID),
			logging.Error(err))
	}
}

// resolve records a terminal render outcome on the liked post and notifies
// on success.
func (p *Poller) resolve(ctx context.Context, ideaID string, result videogen.Result) (brand.VideoStatus, error) {
	if result.State == videogen.StateFailed {
		if err := p.store.UpdateLikedPostVideo(ctx, ideaID, "", brand.VideoFailed); err != nil {
			return brand.VideoFailed, fmt.Errorf("record failure for %s: %w", ideaID, err)
		}
		p.logger.Warn("render failed",
			logging.String(logging.FieldIdeaID, ideaID),
			logging.String("reason", result.Reason))
		return brand.VideoFailed, nil
	}

	if err := p.store.UpdateLikedPostVideo(ctx, ideaID, result.Reference, brand.VideoReady); err != nil {
		return brand.VideoFailed, fmt.Errorf("record video for %s: %w", ideaID, err)
	}

	message := "Your motion render is ready"
	if post, err := p.store.GetLikedPost(ctx, ideaID); err == nil && post.Caption != "" {
		message = fmt.Sprintf("Motion render ready for %q", truncate(post.Caption, 60))
	}
	if _, err := p.notifier.Publish(ctx, brand.NotifyVideoReady, notifications.Payload{
		Title:   "Video ready",
		Message: message,
	}); err != nil {
		p.logger.Warn("video notification failed",
			logging.String(logging.FieldIdeaID, ideaID),
			logging.Error(err))
	}
	p.logger.Info("render complete", logging.String(logging.FieldIdeaID, ideaID))
	return brand.VideoReady, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
