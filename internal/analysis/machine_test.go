package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"postforge/internal/brand"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/logging"
	"postforge/internal/services"
)

type fakeResearcher struct {
	researchErr   error
	findings      string
	profile       brand.Profile
	extractErr    error
	ideas         []brand.Idea
	seedErr       error
	gotFindings   string
	researchCalls int
}

func (f *fakeResearcher) Research(ctx context.Context, siteURL string) (string, error) {
	f.researchCalls++
	return f.findings, f.researchErr
}

func (f *fakeResearcher) ExtractProfile(ctx context.Context, siteURL, findings string) (brand.Profile, error) {
	f.gotFindings = findings
	if f.extractErr != nil {
		return brand.Profile{}, f.extractErr
	}
	profile := f.profile
	profile.SourceURL = siteURL
	return profile, nil
}

func (f *fakeResearcher) SeedIdeas(ctx context.Context, profile brand.Profile, count int) ([]brand.Idea, error) {
	if f.seedErr != nil {
		return nil, f.seedErr
	}
	ideas := make([]brand.Idea, count)
	for i := range ideas {
		ideas[i] = brand.Idea{Caption: "caption", VisualPrompt: "prompt", Status: brand.IdeaPending}
	}
	if f.ideas != nil {
		return f.ideas, nil
	}
	return ideas, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []StageEvent
}

func (r *recordingSink) StageChanged(stage Stage, status StageStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, StageEvent{Stage: stage, Status: status})
}

func (r *recordingSink) Progress(fraction float64) {}

func (r *recordingSink) stages() []StageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StageEvent(nil), r.events...)
}

func newTestMachine(t *testing.T, researcher Researcher) *Machine {
	t.Helper()
	gov := governor.New(config.Governor{
		Text:             config.ClassLimits{PerMinute: 100, Concurrency: 10},
		Image:            config.ClassLimits{PerMinute: 100, Concurrency: 10},
		Video:            config.ClassLimits{PerMinute: 100, Concurrency: 10},
		MaxRetries:       1,
		RetryBaseDelayMS: 1,
	}, logging.NewNop())
	t.Cleanup(gov.Stop)
	return NewMachine(config.Analysis{MinConfidence: 20, SeedCount: 10}, gov, researcher, nil, logging.NewNop())
}

func TestRunHappyPath(t *testing.T) {
	researcher := &fakeResearcher{
		findings: "Acme sells anvils.",
		profile:  brand.Profile{Name: "Acme", Confidence: 85},
	}
	m := newTestMachine(t, researcher)
	sink := &recordingSink{}
	m.Promote(sink)

	result, err := m.Run(context.Background(), "https://acme.example")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Profile.Name != "Acme" {
		t.Fatalf("unexpected profile %+v", result.Profile)
	}
	if len(result.Ideas) != 10 {
		t.Fatalf("expected 10 seeded ideas, got %d", len(result.Ideas))
	}
	for _, idea := range result.Ideas {
		if idea.ID == "" {
			t.Fatal("seeded idea missing id")
		}
		if idea.Status != brand.IdeaPending {
			t.Fatalf("seeded idea not pending: %q", idea.Status)
		}
	}
	if researcher.gotFindings != "Acme sells anvils." {
		t.Fatalf("findings not forwarded to extraction: %q", researcher.gotFindings)
	}

	events := sink.stages()
	var order []Stage
	for _, event := range events {
		if event.Status == StatusDone {
			order = append(order, event.Stage)
		}
	}
	want := []Stage{StageResearching, StageProfiling, StageSeeding, StageReady}
	if len(order) != len(want) {
		t.Fatalf("stage order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("stage order %v, want %v", order, want)
		}
	}
}

func TestResearchFailureIsNonFatal(t *testing.T) {
	researcher := &fakeResearcher{
		researchErr: &services.StatusError{StatusCode: 500, Body: "boom"},
		profile:     brand.Profile{Name: "Acme", Confidence: 60},
	}
	m := newTestMachine(t, researcher)

	result, err := m.Run(context.Background(), "https://acme.example")
	if err != nil {
		t.Fatalf("run should survive research failure: %v", err)
	}
	if researcher.gotFindings != "" {
		t.Fatalf("extraction should proceed without findings, got %q", researcher.gotFindings)
	}
	if result.Profile.Name != "Acme" {
		t.Fatalf("unexpected profile %+v", result.Profile)
	}
}

func TestLowConfidenceFailsTheRun(t *testing.T) {
	researcher := &fakeResearcher{
		findings: "nothing substantial",
		profile:  brand.Profile{Name: "Mystery", Confidence: 10},
	}
	m := newTestMachine(t, researcher)
	sink := &recordingSink{}
	m.Promote(sink)

	_, err := m.Run(context.Background(), "https://unknown.example")
	if !errors.Is(err, services.ErrInsufficientData) {
		t.Fatalf("expected insufficient data failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "confidence 10") {
		t.Fatalf("reason should name the confidence: %v", err)
	}

	events := sink.stages()
	last := events[len(events)-1]
	if last.Stage != StageProfiling || last.Status != StatusError {
		t.Fatalf("expected profiling error event, got %+v", last)
	}
}

func TestSeedingFailureFailsTheRun(t *testing.T) {
	researcher := &fakeResearcher{
		findings: "ok",
		profile:  brand.Profile{Name: "Acme", Confidence: 80},
		seedErr:  errors.New("model refused"),
	}
	m := newTestMachine(t, researcher)

	_, err := m.Run(context.Background(), "https://acme.example")
	if err == nil || !strings.Contains(err.Error(), "seed content") {
		t.Fatalf("expected seeding failure, got %v", err)
	}
}

func TestPromoteSwapsSinkMidFlight(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}

	researcher := &fakeResearcher{profile: brand.Profile{Name: "Acme", Confidence: 50}}
	m := newTestMachine(t, researcher)
	m.Promote(first)

	// Swap sinks when the research stage reports in.
	swap := FuncSink{OnStage: func(stage Stage, status StageStatus) {
		first.StageChanged(stage, status)
		if stage == StageResearching && status == StatusDone {
			m.Promote(second)
		}
	}}
	m.Promote(swap)

	if _, err := m.Run(context.Background(), "https://acme.example"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(first.stages()) == 0 {
		t.Fatal("first sink saw nothing")
	}
	secondStages := second.stages()
	if len(secondStages) == 0 {
		t.Fatal("second sink saw nothing after promotion")
	}
	for _, event := range secondStages {
		if event.Stage == StageResearching {
			t.Fatalf("second sink saw pre-promotion stage: %+v", event)
		}
	}
}
