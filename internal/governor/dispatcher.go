package governor

import (
	"fmt"
	"sync"
	"time"

	"postforge/internal/config"
	"postforge/internal/logging"
)

// dispatcher serializes admission decisions for one service class.
type dispatcher struct {
	g      *Governor
	class  Class
	limits config.ClassLimits

	mu         sync.Mutex
	queue      taskQueue
	active     int
	admissions []time.Time
	lastAdmit  time.Time
	seq        uint64
	stopped    bool

	wake chan struct{}
	quit chan struct{}
}

func newDispatcher(g *Governor, class Class, limits config.ClassLimits) *dispatcher {
	if limits.PerMinute <= 0 {
		limits.PerMinute = 1
	}
	if limits.Concurrency <= 0 {
		limits.Concurrency = 1
	}
	d := &dispatcher{
		g:      g,
		class:  class,
		limits: limits,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) submit(t *task) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		t.done <- outcome{err: ErrStopped}
		return
	}
	d.seq++
	t.seq = d.seq
	d.queue.push(t)
	d.mu.Unlock()
	d.signalWake()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		d.dropCancelledLocked()
		if d.queue.Len() == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.quit:
				return
			}
		}

		now := time.Now()
		wait, untilCompletion := d.admissionDelayLocked(now)
		if untilCompletion {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.quit:
				return
			}
		}
		if wait > 0 {
			d.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-d.wake:
			case <-d.quit:
				timer.Stop()
				return
			}
			timer.Stop()
			continue
		}

		t := d.queue.pop()
		d.active++
		d.admissions = append(d.admissions, now)
		d.lastAdmit = now
		queued := d.queue.Len()
		d.mu.Unlock()

		d.g.logger.Debug("task admitted",
			logging.String(logging.FieldService, string(d.class)),
			logging.Int("attempt", t.attempt),
			logging.Int("queued", queued))
		go d.execute(t)
	}
}

// admissionDelayLocked reports how long admission of the queue head must
// wait. A true second return means no timer helps: only a completion frees
// capacity, so wait for the wake signal instead.
func (d *dispatcher) admissionDelayLocked(now time.Time) (time.Duration, bool) {
	if d.active >= d.limits.Concurrency {
		return 0, true
	}

	var wait time.Duration
	if spacing := time.Duration(d.limits.MinSpacingMS) * time.Millisecond; spacing > 0 && !d.lastAdmit.IsZero() {
		if next := d.lastAdmit.Add(spacing); next.After(now) {
			wait = next.Sub(now)
		}
	}

	cutoff := now.Add(-d.g.window)
	pruned := d.admissions[:0]
	for _, admitted := range d.admissions {
		if admitted.After(cutoff) {
			pruned = append(pruned, admitted)
		}
	}
	d.admissions = pruned
	if len(d.admissions) >= d.limits.PerMinute {
		// The window clears when the oldest admission ages out.
		clears := d.admissions[len(d.admissions)-d.limits.PerMinute].Add(d.g.window).Sub(now)
		if clears > wait {
			wait = clears
		}
	}
	return wait, false
}

func (d *dispatcher) dropCancelledLocked() {
	for d.queue.Len() > 0 {
		head := d.queue[0]
		if head.cancelled() == nil {
			return
		}
		d.queue.pop()
	}
}

func (d *dispatcher) execute(t *task) {
	value, err := t.do()

	d.mu.Lock()
	d.active--
	d.mu.Unlock()
	d.signalWake()

	if err == nil {
		t.done <- outcome{value: value}
		return
	}
	if !throttled(err) {
		t.done <- outcome{err: err}
		return
	}
	if t.attempt >= t.maxRetries || t.cancelled() != nil {
		t.done <- outcome{err: fmt.Errorf("%w (%d attempts): %w", ErrRetryBudget, t.attempt+1, err)}
		return
	}

	t.attempt++
	t.priority--
	delay := d.g.baseDelay * (1 << t.attempt)
	d.g.logger.Warn("task throttled, backing off",
		logging.String(logging.FieldService, string(d.class)),
		logging.Int("attempt", t.attempt),
		logging.Duration("delay", delay),
		logging.Error(err))
	time.AfterFunc(delay, func() { d.submit(t) })
}

func (d *dispatcher) drain(reason string) int {
	d.mu.Lock()
	pending := d.queue.drain()
	d.mu.Unlock()

	for _, t := range pending {
		t.done <- outcome{err: fmt.Errorf("%w: %s", ErrDrained, reason)}
	}
	return len(pending)
}

func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	pending := d.queue.drain()
	d.mu.Unlock()

	for _, t := range pending {
		t.done <- outcome{err: ErrStopped}
	}
	close(d.quit)
}

func (d *dispatcher) stats() ClassStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-d.g.window)
	admitted := 0
	for _, admission := range d.admissions {
		if admission.After(cutoff) {
			admitted++
		}
	}
	return ClassStats{Queued: d.queue.Len(), Active: d.active, AdmittedInWin: admitted}
}

func (d *dispatcher) signalWake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
