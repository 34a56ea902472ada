// Package jobs tracks detached analysis runs keyed by normalized URL,
// persists their state, and raises exactly one notification per terminal
// transition. Jobs outlive any single view; only consuming or dismissing a
// job removes it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"postforge/internal/analysis"
	"postforge/internal/brand"
	"postforge/internal/logging"
	"postforge/internal/notifications"
	"postforge/internal/store"
	"postforge/internal/textutil"
)

// ErrNotFinished rejects consuming a job that has not reached a terminal
// state.
var ErrNotFinished = errors.New("job not finished")

// MachineFactory builds one analysis machine per run.
type MachineFactory func() *analysis.Machine

// Registry is the single source of truth for "is an analysis for this URL
// already running".
type Registry struct {
	store    *store.Store
	notifier *notifications.Service
	factory  MachineFactory
	logger   *slog.Logger
	baseCtx  context.Context

	mu       sync.Mutex
	machines map[string]*analysis.Machine
}

// NewRegistry builds the registry. baseCtx bounds detached runs to the
// daemon lifetime rather than any caller's request.
func NewRegistry(baseCtx context.Context, st *store.Store, notifier *notifications.Service, factory MachineFactory, logger *slog.Logger) *Registry {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Registry{
		store:    st,
		notifier: notifier,
		factory:  factory,
		logger:   logging.NewComponentLogger(logger, "jobs"),
		baseCtx:  baseCtx,
		machines: make(map[string]*analysis.Machine),
	}
}

// Reconcile fails every job left in flight by a previous process. The
// network operation is not resumable; the user restarts it explicitly.
func (r *Registry) Reconcile(ctx context.Context) error {
	failed, err := r.store.MarkInFlightJobsFailed(ctx, "interrupted by restart")
	if err != nil {
		return fmt.Errorf("reconcile jobs: %w", err)
	}
	if failed > 0 {
		r.logger.Warn("in-flight jobs failed on startup", logging.Int64("count", failed))
	}
	return nil
}

// Start begins a detached analysis for the URL, deduplicating by normalized
// form: re-submitting the same effective site returns the existing job.
// A non-nil attached sink additionally receives live progress until Detach.
func (r *Registry) Start(ctx context.Context, sourceURL string, attached analysis.ProgressSink) (string, error) {
	normalized := textutil.NormalizeURL(sourceURL)
	if normalized == "" {
		return "", errors.New("start job: url required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.store.GetJobByURL(ctx, normalized); err == nil && !existing.Status.Terminal() {
		return existing.ID, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("start job: %w", err)
	}

	job := brand.Job{
		ID:        uuid.NewString(),
		URL:       normalized,
		Status:    brand.JobQueued,
		StartedAt: time.Now(),
	}
	if err := r.store.PutJob(ctx, job); err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}

	machine := r.factory()
	machine.Promote(r.sinkFor(job.ID, normalized, attached))
	r.machines[normalized] = machine

	go r.run(job, machine, normalized)

	r.logger.Info("analysis started",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldURL, normalized))
	return job.ID, nil
}

// Detach promotes an attached run to background-only: the in-flight machine
// continues, only the presentation subscription changes.
func (r *Registry) Detach(sourceURL string) bool {
	normalized := textutil.NormalizeURL(sourceURL)
	r.mu.Lock()
	machine, ok := r.machines[normalized]
	r.mu.Unlock()
	if !ok {
		return false
	}
	job, err := r.store.GetJobByURL(context.Background(), normalized)
	if err != nil {
		return false
	}
	machine.Promote(r.sinkFor(job.ID, normalized, nil))
	return true
}

func (r *Registry) sinkFor(jobID, normalized string, attached analysis.ProgressSink) analysis.ProgressSink {
	detached := analysis.FuncSink{
		OnProgress: func(fraction float64) {
			r.recordProgress(jobID, fraction)
		},
	}
	if attached == nil {
		return detached
	}
	return analysis.FuncSink{
		OnStage: func(stage analysis.Stage, status analysis.StageStatus) {
			attached.StageChanged(stage, status)
		},
		OnProgress: func(fraction float64) {
			attached.Progress(fraction)
			r.recordProgress(jobID, fraction)
		},
	}
}

func (r *Registry) recordProgress(jobID string, fraction float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil || job.Status.Terminal() {
		return
	}
	job.Status = brand.JobResearching
	job.Progress = fraction
	if err := r.store.PutJob(ctx, *job); err != nil {
		r.logger.Warn("progress persist failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
}

func (r *Registry) run(job brand.Job, machine *analysis.Machine, normalized string) {
	result, runErr := machine.Run(r.baseCtx, normalized)

	r.mu.Lock()
	delete(r.machines, normalized)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	completed := time.Now()
	job.CompletedAt = &completed
	if runErr != nil {
		job.Status = brand.JobFailed
		job.Error = runErr.Error()
	} else {
		job.Status = brand.JobComplete
		job.Progress = 1
		job.Name = result.Profile.Name
		job.Profile = &result.Profile
		job.Ideas = result.Ideas
	}
	if err := r.store.PutJob(ctx, job); err != nil {
		r.logger.Error("terminal state persist failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}

	// Exactly one notification per terminal transition.
	r.notifyTerminal(ctx, job)
}

func (r *Registry) notifyTerminal(ctx context.Context, job brand.Job) {
	var (
		kind    brand.NotificationKind
		payload notifications.Payload
	)
	if job.Status == brand.JobComplete {
		name := job.Name
		if name == "" {
			name = job.URL
		}
		kind = brand.NotifyAnalysisComplete
		payload = notifications.Payload{
			Title:     "Analysis complete",
			Message:   fmt.Sprintf("%s is ready to review", name),
			SourceURL: job.URL,
		}
	} else {
		kind = brand.NotifyAnalysisFailed
		payload = notifications.Payload{
			Title:     "Analysis failed",
			Message:   job.Error,
			SourceURL: job.URL,
		}
	}
	if _, err := r.notifier.Publish(ctx, kind, payload); err != nil {
		r.logger.Warn("terminal notification failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}

// Status returns the job tracked for the URL, or nil when absent.
func (r *Registry) Status(ctx context.Context, sourceURL string) (*brand.Job, error) {
	job, err := r.store.GetJobByURL(ctx, textutil.NormalizeURL(sourceURL))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return job, nil
}

// List returns all tracked jobs, newest first.
func (r *Registry) List(ctx context.Context) ([]*brand.Job, error) {
	return r.store.ListJobs(ctx)
}

// Consume hands back a completed job's result and marks it consumed.
// Consuming an already-consumed job is a no-op returning the same payload;
// consuming an unfinished job is an error.
func (r *Registry) Consume(ctx context.Context, jobID string) (*brand.Job, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume job: %w", err)
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrNotFinished, job.Status)
	}
	if job.Consumed {
		return job, nil
	}
	job.Consumed = true
	if err := r.store.PutJob(ctx, *job); err != nil {
		return nil, fmt.Errorf("consume job: %w", err)
	}
	return job, nil
}

// Dismiss removes a job outright.
func (r *Registry) Dismiss(ctx context.Context, jobID string) error {
	err := r.store.DeleteJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
