// Package analysis drives one brand's research, profiling, and
// content-seeding lifecycle. The same machine runs attached to a live caller
// or detached as a background job; only the progress sink differs, and it
// can be swapped mid-flight without restarting the run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/logging"
	"postforge/internal/services"
	"postforge/internal/store"
)

// Stage identifies one step of the lifecycle.
type Stage string

const (
	StageResearching Stage = "researching"
	StageProfiling   Stage = "profiling"
	StageSeeding     Stage = "seeding_content"
	StageReady       Stage = "ready"
	StageFailed      Stage = "failed"
)

// StageStatus is the per-stage presentation state.
type StageStatus string

const (
	StatusWaiting StageStatus = "waiting"
	StatusLoading StageStatus = "loading"
	StatusDone    StageStatus = "done"
	StatusError   StageStatus = "error"
)

// ProgressSink receives stage transitions and numeric progress. Attached
// sinks pace stages for presentation; detached sinks record progress on a
// background job.
type ProgressSink interface {
	StageChanged(stage Stage, status StageStatus)
	Progress(fraction float64)
}

// Researcher is the slice of the text service the machine needs.
type Researcher interface {
	Research(ctx context.Context, siteURL string) (string, error)
	ExtractProfile(ctx context.Context, siteURL, findings string) (brand.Profile, error)
	SeedIdeas(ctx context.Context, profile brand.Profile, count int) ([]brand.Idea, error)
}

// Result is what a completed run hands back.
type Result struct {
	Profile brand.Profile
	Ideas   []brand.Idea
}

// Machine executes one analysis run.
type Machine struct {
	cfg        config.Analysis
	gov        *governor.Governor
	researcher Researcher
	store      *store.Store
	logger     *slog.Logger

	mu   sync.Mutex
	sink ProgressSink
}

// NewMachine builds a machine for a single run.
func NewMachine(cfg config.Analysis, gov *governor.Governor, researcher Researcher, st *store.Store, logger *slog.Logger) *Machine {
	return &Machine{
		cfg:        cfg,
		gov:        gov,
		researcher: researcher,
		store:      st,
		logger:     logging.NewComponentLogger(logger, "analysis"),
		sink:       nopSink{},
	}
}

// Promote swaps the progress sink mid-flight. The in-flight run continues;
// only the presentation subscription changes.
func (m *Machine) Promote(sink ProgressSink) {
	if sink == nil {
		sink = nopSink{}
	}
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

func (m *Machine) emit(stage Stage, status StageStatus, fraction float64) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	sink.StageChanged(stage, status)
	sink.Progress(fraction)
}

// Run executes Researching, Profiling, and SeedingContent in order. A
// research failure is non-fatal; extraction below the confidence floor fails
// the run. Persistence after the ready transition is best-effort and never
// blocks the result.
func (m *Machine) Run(ctx context.Context, siteURL string) (Result, error) {
	var empty Result
	siteURL = strings.TrimSpace(siteURL)
	if siteURL == "" {
		return empty, errors.New("analysis: url required")
	}

	m.emit(StageResearching, StatusLoading, 0.1)
	findings, err := governor.Do[string](ctx, m.gov, governor.ClassText, governor.Request{
		Do: func(ctx context.Context) (any, error) {
			return m.researcher.Research(ctx, siteURL)
		},
	})
	if err != nil {
		if fatal(ctx, err) {
			return m.fail(StageResearching, fmt.Errorf("research %s: %w", siteURL, err))
		}
		// Proceed on direct knowledge; the extraction call answers from the
		// URL alone.
		m.logger.Warn("research failed, proceeding without findings",
			logging.String(logging.FieldURL, siteURL),
			logging.Error(err))
		findings = ""
	}
	m.emit(StageResearching, StatusDone, 0.35)

	m.emit(StageProfiling, StatusLoading, 0.4)
	profile, err := governor.Do[brand.Profile](ctx, m.gov, governor.ClassText, governor.Request{
		Do: func(ctx context.Context) (any, error) {
			return m.researcher.ExtractProfile(ctx, siteURL, findings)
		},
	})
	if err != nil {
		return m.fail(StageProfiling, fmt.Errorf("profile %s: %w", siteURL, err))
	}
	if profile.Confidence < m.cfg.MinConfidence {
		// Insufficient data is an error, not a low-quality success.
		return m.fail(StageProfiling, services.Wrap(services.ErrInsufficientData,
			fmt.Sprintf("profile %s: confidence %d below minimum %d", siteURL, profile.Confidence, m.cfg.MinConfidence), nil))
	}
	m.emit(StageProfiling, StatusDone, 0.65)

	m.emit(StageSeeding, StatusLoading, 0.7)
	count := m.cfg.SeedCount
	if count <= 0 {
		count = 10
	}
	ideas, err := governor.Do[[]brand.Idea](ctx, m.gov, governor.ClassText, governor.Request{
		Do: func(ctx context.Context) (any, error) {
			return m.researcher.SeedIdeas(ctx, profile, count)
		},
	})
	if err != nil {
		return m.fail(StageSeeding, fmt.Errorf("seed content for %s: %w", siteURL, err))
	}
	now := time.Now()
	for i := range ideas {
		ideas[i].ID = uuid.NewString()
		ideas[i].CreatedAt = now
	}
	m.emit(StageSeeding, StatusDone, 0.95)

	m.emit(StageReady, StatusDone, 1)
	go m.persist(profile, ideas)

	return Result{Profile: profile, Ideas: ideas}, nil
}

func (m *Machine) fail(stage Stage, cause error) (Result, error) {
	m.emit(stage, StatusError, 0)
	m.logger.Error("analysis failed",
		logging.String("stage", string(stage)),
		logging.Error(cause))
	return Result{}, cause
}

// persist writes the profile and discovered assets to the durable store.
// Best-effort: failures are logged, never rolled back, and the result the
// caller already holds is unaffected.
func (m *Machine) persist(profile brand.Profile, ideas []brand.Idea) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stored, err := m.store.UpsertBrand(ctx, profile)
	if err != nil {
		m.logger.Warn("brand persist failed",
			logging.String(logging.FieldURL, profile.SourceURL),
			logging.Error(err))
		return
	}
	if logo := strings.TrimSpace(profile.LogoURL); logo != "" {
		assets := []brand.Asset{{BrandID: stored.ID, URL: logo, Label: profile.Name + " logo"}}
		if err := m.store.UpsertAssets(ctx, stored.ID, assets); err != nil {
			m.logger.Warn("asset ingestion failed",
				logging.Int64(logging.FieldBrandID, stored.ID),
				logging.Error(err))
		}
	}
	m.logger.Info("analysis persisted",
		logging.Int64(logging.FieldBrandID, stored.ID),
		logging.Int("ideas", len(ideas)))
}

// fatal reports failures that must not be downgraded to "proceed without
// findings": dead contexts and drained queues.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, governor.ErrDrained) || errors.Is(err, governor.ErrStopped)
}

type nopSink struct{}

func (nopSink) StageChanged(Stage, StageStatus) {}
func (nopSink) Progress(float64)                {}
