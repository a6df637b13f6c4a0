package scheduler

import (
	"time"

	"tsched/internal/eventbus"
	"tsched/internal/runner"
	logx "tsched/pkg/logx"
)

// Func is a job callback. Bind arguments by closing over them.
// ctx is cancelled when the job is removed or the scheduler shuts down.
type Func = runner.Func

type State = runner.State

const (
	Running   = runner.Running
	Paused    = runner.Paused
	Completed = runner.Completed
	Removed   = runner.Removed
)

var (
	ErrDuplicateJob      = runner.ErrDuplicateJob
	ErrUnknownJob        = runner.ErrUnknownJob
	ErrInvalidTransition = runner.ErrInvalidTransition
	ErrInvalidJob        = runner.ErrInvalidJob
)

type Options struct {
	Log logx.Logger
	// Bus receives job lifecycle events. Optional.
	Bus eventbus.Bus

	// DropCompleted forgets jobs as soon as they complete instead of keeping
	// them queryable until RemoveJob or ClearCompleted.
	DropCompleted bool

	// FailureLogEvery throttles warn logs for failing callbacks, per job.
	FailureLogEvery time.Duration

	// Now overrides the clock source of new jobs.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{FailureLogEvery: 5 * time.Second}
}

// Status is an immutable point-in-time summary of a job.
type Status struct {
	JobID          string    `json:"job_id"`
	Status         string    `json:"status"`
	CurrentIndex   int       `json:"current_index"`
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	ElapsedMS      float64   `json:"elapsed_time_ms"`
	NextTimestamp  *int64    `json:"next_timestamp"`
	FailedTasks    int       `json:"failed_tasks"`
	LastError      string    `json:"last_error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	PausedAt       time.Time `json:"paused_at,omitzero"`

	State State `json:"-"`
}

func statusFrom(s runner.Snapshot) Status {
	return Status{
		JobID:          s.JobID,
		Status:         s.State.String(),
		State:          s.State,
		CurrentIndex:   s.CurrentIndex,
		TotalTasks:     s.TotalTasks,
		CompletedTasks: s.CompletedTasks,
		ElapsedMS:      float64(s.Elapsed) / float64(time.Millisecond),
		NextTimestamp:  s.NextTimestamp,
		FailedTasks:    s.FailedTasks,
		LastError:      s.LastError,
		StartedAt:      s.StartedAt,
		PausedAt:       s.PausedAt,
	}
}
