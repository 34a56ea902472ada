package analysis

import "time"

// StageEvent is one presentation update from an attached run.
type StageEvent struct {
	Stage    Stage       `json:"stage"`
	Status   StageStatus `json:"status"`
	Fraction float64     `json:"fraction"`
}

// PacedSink forwards stage events to a callback, inserting an artificial
// delay after each transition so fast API responses still read as
// deliberate multi-stage work.
type PacedSink struct {
	delay    time.Duration
	callback func(StageEvent)
	fraction float64
}

// NewPacedSink builds the attached-mode sink. A nil callback drops events
// but keeps the pacing.
func NewPacedSink(delay time.Duration, callback func(StageEvent)) *PacedSink {
	return &PacedSink{delay: delay, callback: callback}
}

func (s *PacedSink) StageChanged(stage Stage, status StageStatus) {
	if s.callback != nil {
		s.callback(StageEvent{Stage: stage, Status: status, Fraction: s.fraction})
	}
	if s.delay > 0 && status == StatusDone {
		time.Sleep(s.delay)
	}
}

func (s *PacedSink) Progress(fraction float64) {
	s.fraction = fraction
}

// FuncSink adapts plain functions to the detached-mode sink. Background jobs
// use it to record numeric progress without any pacing.
type FuncSink struct {
	OnStage    func(stage Stage, status StageStatus)
	OnProgress func(fraction float64)
}

func (s FuncSink) StageChanged(stage Stage, status StageStatus) {
	if s.OnStage != nil {
		s.OnStage(stage, status)
	}
}

func (s FuncSink) Progress(fraction float64) {
	if s.OnProgress != nil {
		s.OnProgress(fraction)
	}
}
