package scheduler

import (
	"context"
	"errors"
	"sync"

	"tsched/internal/eventbus"
	"tsched/internal/registry"
	"tsched/internal/runner"
	"tsched/internal/runtime/supervisor"
	logx "tsched/pkg/logx"
)

var ErrClosed = errors.New("scheduler is shut down")

type Scheduler struct {
	opts Options
	log  logx.Logger
	bus  eventbus.Bus
	reg  *registry.Registry
	sup  *supervisor.Supervisor

	// mu orders AddJob against Shutdown.
	mu     sync.Mutex
	closed bool
}

// Stats summarizes the scheduler for diagnostics.
type Stats struct {
	Jobs          int    `json:"jobs"`
	ActiveRunners int64  `json:"active_runners"`
	StartedTotal  uint64 `json:"started_total"`
	FirstError    string `json:"first_error,omitempty"`
}

func New(opts Options) *Scheduler {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "scheduler"))
	return &Scheduler{
		opts: opts,
		log:  log,
		bus:  opts.Bus,
		reg:  registry.New(),
		sup:  supervisor.New(context.Background(), supervisor.WithLogger(log)),
	}
}

// AddJob registers and starts a job.
//
// It returns (false, nil) if a non-terminal job with the same id exists,
// (false, err) for malformed input or after Shutdown, and (true, nil) once the
// job is running. timestamps are copied and sorted ascending.
func (s *Scheduler) AddJob(id string, timestamps []int64, fn Func) (bool, error) {
	return s.addJob(id, timestamps, fn, false)
}

// AddPausedJob is AddJob for a job that starts Paused with zero elapsed time.
// Nothing fires until ResumeJob.
func (s *Scheduler) AddPausedJob(id string, timestamps []int64, fn Func) (bool, error) {
	return s.addJob(id, timestamps, fn, true)
}

func (s *Scheduler) addJob(id string, timestamps []int64, fn Func, paused bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	r, err := runner.New(runner.Config{
		ID:              id,
		Timestamps:      timestamps,
		Fn:              fn,
		Parent:          s.sup.Context(),
		Now:             s.opts.Now,
		FailureLogEvery: s.opts.FailureLogEvery,
		StartPaused:     paused,
		Hooks: runner.Hooks{
			OnFire:     s.onFire,
			OnComplete: s.onComplete,
		},
	}, s.log)
	if err != nil {
		return false, err
	}

	if err := s.reg.Insert(r.ID(), r); err != nil {
		_ = r.Stop()
		s.log.Debug("add rejected", logx.String("job", r.ID()), logx.Err(err))
		return false, nil
	}
	s.sup.Go("job", func(context.Context) error {
		r.Run()
		return nil
	})

	s.log.Info("job added", logx.String("job", r.ID()), logx.Int("tasks", len(r.Timestamps())), logx.Bool("paused", paused))
	s.publish(eventbus.JobAdded, eventbus.JobEvent{JobID: r.ID()})
	return true, nil
}

// PauseJob reports whether a Running job transitioned to Paused.
func (s *Scheduler) PauseJob(id string) bool {
	r, err := s.reg.Lookup(id)
	if err == nil {
		err = r.Pause()
	}
	if err != nil {
		s.log.Debug("pause rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	snap := r.Snapshot()
	s.log.Info("job paused", logx.String("job", id), logx.Duration("elapsed", snap.Elapsed))
	s.publish(eventbus.JobPaused, eventbus.JobEvent{JobID: id, Index: snap.CurrentIndex, ElapsedMS: ms(snap)})
	return true
}

// ResumeJob reports whether a Paused job transitioned to Running.
func (s *Scheduler) ResumeJob(id string) bool {
	r, err := s.reg.Lookup(id)
	if err == nil {
		err = r.Resume()
	}
	if err != nil {
		s.log.Debug("resume rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	snap := r.Snapshot()
	s.log.Info("job resumed", logx.String("job", id), logx.Duration("elapsed", snap.Elapsed))
	s.publish(eventbus.JobResumed, eventbus.JobEvent{JobID: id, Index: snap.CurrentIndex, ElapsedMS: ms(snap)})
	return true
}

// RemoveJob cancels a tracked job and forgets it. Callbacks of that job not
// yet started are skipped; a running one sees its context cancelled.
func (s *Scheduler) RemoveJob(id string) bool {
	r, err := s.reg.Remove(id)
	if err != nil {
		s.log.Debug("remove rejected", logx.String("job", id), logx.Err(err))
		return false
	}
	snap := r.Snapshot()
	s.log.Info("job removed", logx.String("job", id), logx.Int("fired", snap.CurrentIndex), logx.Int("total", snap.TotalTasks))
	s.publish(eventbus.JobRemoved, eventbus.JobEvent{JobID: id, Index: snap.CurrentIndex, ElapsedMS: ms(snap)})
	return true
}

func (s *Scheduler) JobStatus(id string) (Status, bool) {
	r, err := s.reg.Lookup(id)
	if err != nil {
		return Status{}, false
	}
	return statusFrom(r.Snapshot()), true
}

// ListJobs returns every tracked id, retained completed jobs included.
func (s *Scheduler) ListJobs() []string { return s.reg.IDs() }

func (s *Scheduler) AllStatuses() map[string]Status {
	snaps := s.reg.Snapshots()
	out := make(map[string]Status, len(snaps))
	for id, snap := range snaps {
		out[id] = statusFrom(snap)
	}
	return out
}

// ClearCompleted forgets retained completed jobs and returns how many.
func (s *Scheduler) ClearCompleted() int {
	n := s.reg.EvictCompleted()
	if n > 0 {
		s.log.Debug("completed jobs cleared", logx.Int("count", n))
	}
	return n
}

func (s *Scheduler) Stats() Stats {
	sn := s.sup.Snapshot()
	return Stats{
		Jobs:          s.reg.Len(),
		ActiveRunners: sn.Active,
		StartedTotal:  sn.Started,
		FirstError:    sn.FirstError,
	}
}

// Shutdown removes every job and waits for their goroutines, bounded by ctx.
// The scheduler rejects new jobs afterwards. Calling it again is a no-op.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	runners := s.reg.Drain()
	for _, r := range runners {
		s.publish(eventbus.JobRemoved, eventbus.JobEvent{JobID: r.ID(), Index: r.Snapshot().CurrentIndex})
	}
	err := s.sup.Stop(ctx)
	s.log.Info("scheduler stopped", logx.Int("jobs", len(runners)), logx.Err(err))
	s.publish(eventbus.SchedulerStop, nil)
	return err
}

func (s *Scheduler) onFire(f runner.Firing) {
	ev := eventbus.JobEvent{
		JobID:     f.JobID,
		Index:     f.Index,
		Timestamp: f.Timestamp,
		ElapsedMS: float64(f.Elapsed.Microseconds()) / 1000,
		Took:      f.Took,
	}
	if f.Err != nil {
		ev.Error = f.Err.Error()
		s.publish(eventbus.TaskFailed, ev)
		return
	}
	s.publish(eventbus.TaskFired, ev)
}

func (s *Scheduler) onComplete(r *runner.Runner) {
	snap := r.Snapshot()
	s.log.Info("job completed", logx.String("job", r.ID()), logx.Int("tasks", snap.TotalTasks), logx.Int("failed", snap.FailedTasks))
	s.publish(eventbus.JobCompleted, eventbus.JobEvent{JobID: r.ID(), Index: snap.CurrentIndex, ElapsedMS: ms(snap)})
	if s.opts.DropCompleted {
		s.reg.Evict(r.ID(), r)
	}
}

func (s *Scheduler) publish(typ string, ev any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func ms(s runner.Snapshot) float64 {
	return float64(s.Elapsed.Microseconds()) / 1000
}
