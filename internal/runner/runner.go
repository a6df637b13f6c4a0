// Package runner drives a single job: it owns the job's virtual clock, its
// position in the timestamp list and the goroutine that invokes the callback.
package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tsched/internal/vclock"
	logx "tsched/pkg/logx"
)

const defaultFailureLogEvery = 5 * time.Second

type Runner struct {
	id         string
	timestamps []int64
	fn         Func
	hooks      Hooks
	log        logx.Logger
	failLog    *rate.Limiter

	clock     *vclock.Clock
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	// mu guards everything below. index is only advanced by the run loop.
	mu      sync.Mutex
	state   State
	index   int
	failed  int
	lastErr string
}

// New validates cfg and returns a runner whose clock starts now.
// The run loop is not started; call Run on a dedicated goroutine.
func New(cfg Config, log logx.Logger) (*Runner, error) {
	id := cfg.ID
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidJob)
	}
	if cfg.Fn == nil {
		return nil, fmt.Errorf("%w: job %q: callback required", ErrInvalidJob, id)
	}
	ts := slices.Clone(cfg.Timestamps)
	for _, v := range ts {
		if v < 0 {
			return nil, fmt.Errorf("%w: job %q: negative timestamp %d", ErrInvalidJob, id, v)
		}
	}
	slices.Sort(ts)

	if log.IsZero() {
		log = logx.Nop()
	}
	parent := cfg.Parent
	if parent == nil {
		parent = context.Background()
	}
	every := cfg.FailureLogEvery
	if every <= 0 {
		every = defaultFailureLogEvery
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Runner{
		id:         id,
		timestamps: ts,
		fn:         cfg.Fn,
		hooks:      cfg.Hooks,
		log:        log.With(logx.String("job", id)),
		failLog:    rate.NewLimiter(rate.Every(every), 1),
		clock:      vclock.New(now),
		startedAt:  now(),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		state:      Running,
	}
	if cfg.StartPaused {
		r.state = Paused
		r.clock.Pause()
	}
	return r, nil
}

func (r *Runner) ID() string { return r.id }

// Timestamps returns a copy of the sorted schedule.
func (r *Runner) Timestamps() []int64 { return slices.Clone(r.timestamps) }

// Done is closed when the run loop has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pause freezes the job's clock. Only a Running job can be paused.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running {
		return fmt.Errorf("%w: pause %s job %q", ErrInvalidTransition, r.state, r.id)
	}
	r.state = Paused
	r.clock.Pause()
	r.signal()
	return nil
}

// Resume unfreezes a Paused job. The pending task is rescheduled against the
// frozen elapsed time, so it fires (timestamp - elapsed) after the resume.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Paused {
		return fmt.Errorf("%w: resume %s job %q", ErrInvalidTransition, r.state, r.id)
	}
	r.state = Running
	r.clock.Resume()
	r.signal()
	return nil
}

// Stop moves the job to Removed and cancels its context. A due callback that
// has not passed the run loop's context check is skipped; one already started
// may still be finishing.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Removed {
		return fmt.Errorf("%w: job %q already removed", ErrInvalidTransition, r.id)
	}
	r.state = Removed
	r.clock.Pause()
	r.cancel()
	r.signal()
	return nil
}

// Wait blocks until the run loop exits or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		JobID:          r.id,
		State:          r.state,
		CurrentIndex:   r.index,
		TotalTasks:     len(r.timestamps),
		CompletedTasks: r.index,
		Elapsed:        r.clock.Elapsed(),
		FailedTasks:    r.failed,
		LastError:      r.lastErr,
		StartedAt:      r.startedAt,
	}
	if r.index < len(r.timestamps) {
		next := r.timestamps[r.index]
		s.NextTimestamp = &next
	}
	if r.state == Paused {
		s.PausedAt, _ = r.clock.PausedAt()
	}
	return s
}
