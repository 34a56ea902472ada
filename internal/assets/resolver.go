// Package assets resolves a displayable visual for a content idea through a
// tiered chain: brand-owned asset match, primary generation, degraded
// generation, then a deterministic placeholder. Tiers run strictly in order;
// the later sources are a deliberate last resort, never an optimization.
package assets

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/logging"
	"postforge/internal/services/imagegen"
	"postforge/internal/textutil"
)

// Visual is a resolved visual reference and the tier that produced it.
type Visual struct {
	URL    string
	Source brand.VisualSource
}

// ImageGenerator is the slice of the image client the resolver needs.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request) (string, error)
}

// Resolver runs the resolution chain. It is stateless per call and safe for
// concurrent use; the caller bounds how many ideas resolve simultaneously.
type Resolver struct {
	cfg       config.Resolver
	gov       *governor.Governor
	generator ImageGenerator
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewResolver constructs the chain.
func NewResolver(cfg config.Resolver, gov *governor.Governor, generator ImageGenerator, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:       cfg,
		gov:       gov,
		generator: generator,
		logger:    logging.NewComponentLogger(logger, "assets"),
		sleep:     sleepCtx,
	}
}

// Resolve produces a visual for the idea, short-circuiting on the first tier
// that succeeds. It returns an error only when the caller's context is gone
// or its queue was drained; every upstream failure degrades to the next tier.
func (r *Resolver) Resolve(ctx context.Context, idea brand.Idea, profile brand.Profile, owned []brand.Asset) (Visual, error) {
	if err := ctx.Err(); err != nil {
		return Visual{}, err
	}

	if match, ok := r.matchOwned(idea, owned); ok {
		r.logger.Debug("owned asset matched",
			logging.String(logging.FieldIdeaID, idea.ID),
			logging.String(logging.FieldURL, match))
		return Visual{URL: match, Source: brand.SourceOwned}, nil
	}

	reference, err := r.generate(ctx, idea, profile, false)
	if err == nil {
		return Visual{URL: reference, Source: brand.SourceGenerated}, nil
	}
	if abort(ctx, err) {
		return Visual{}, err
	}
	r.logger.Warn("primary generation exhausted",
		logging.String(logging.FieldIdeaID, idea.ID),
		logging.Error(err))

	reference, err = r.generate(ctx, idea, profile, true)
	if err == nil {
		return Visual{URL: reference, Source: brand.SourceDegraded}, nil
	}
	if abort(ctx, err) {
		return Visual{}, err
	}
	r.logger.Warn("degraded generation exhausted",
		logging.String(logging.FieldIdeaID, idea.ID),
		logging.Error(err))

	return Visual{URL: r.placeholder(idea.VisualPrompt), Source: brand.SourcePlaceholder}, nil
}

// matchOwned searches catalogued assets by label against the idea's caption
// and visual prompt. Exact substring matches outrank token overlap, and
// every candidate must pass the URL sanity check.
func (r *Resolver) matchOwned(idea brand.Idea, owned []brand.Asset) (string, bool) {
	text := idea.Caption + " " + idea.VisualPrompt
	var (
		bestURL   string
		bestScore float64
	)
	for _, asset := range owned {
		label := strings.TrimSpace(asset.Label)
		if label == "" || !r.saneAssetURL(asset.URL) {
			continue
		}
		var score float64
		if textutil.ContainsFolded(text, label) {
			score = 2 + textutil.OverlapScore(text, label)
		} else {
			score = textutil.OverlapScore(text, label)
		}
		if score > bestScore {
			bestScore = score
			bestURL = asset.URL
		}
	}
	if bestScore <= 0 {
		return "", false
	}
	return bestURL, true
}

// saneAssetURL rejects hallucinated or unsafe references: the URL must be a
// data URI or a well-formed http(s) URL, from an allow-listed origin when
// origins are configured.
func (r *Resolver) saneAssetURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "data:image/") {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	if len(r.cfg.AllowedOrigins) == 0 {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, origin := range r.cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "" {
			continue
		}
		if host == origin || strings.HasSuffix(host, "."+origin) {
			return true
		}
	}
	return false
}

func (r *Resolver) generate(ctx context.Context, idea brand.Idea, profile brand.Profile, degraded bool) (string, error) {
	attempts := r.cfg.ImageRetries
	if attempts <= 0 {
		attempts = 1
	}
	retryDelay := time.Duration(r.cfg.RetryDelayMS) * time.Millisecond

	req := imagegen.Request{
		Prompt:       idea.VisualPrompt,
		Palette:      profile.Colors,
		ArtDirection: profile.Vibe,
		Degraded:     degraded,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reference, err := governor.Do[string](ctx, r.gov, governor.ClassImage, governor.Request{
			Do: func(ctx context.Context) (any, error) {
				return r.generator.Generate(ctx, req)
			},
		})
		if err == nil {
			reference = strings.TrimSpace(reference)
			if reference != "" && !strings.EqualFold(reference, "undefined") {
				return reference, nil
			}
			err = errors.New("image generate: unusable reference")
		}
		lastErr = err
		if abort(ctx, err) {
			return "", err
		}
		if attempt < attempts && retryDelay > 0 {
			// Linear backoff between attempts.
			if err := r.sleep(ctx, retryDelay*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", attempts, lastErr)
}

// placeholder derives a seeded static image URL from the prompt, so the same
// prompt always yields the same placeholder.
func (r *Resolver) placeholder(prompt string) string {
	hasher := fnv.New32a()
	hasher.Write([]byte(strings.TrimSpace(strings.ToLower(prompt))))
	base := strings.TrimRight(r.cfg.PlaceholderBaseURL, "/")
	return fmt.Sprintf("%s/%d/1080/1080", base, hasher.Sum32())
}

func abort(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, governor.ErrDrained) || errors.Is(err, governor.ErrStopped) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
