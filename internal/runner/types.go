package runner

import (
	"context"
	"time"
)

// State is a job's position in its lifecycle.
//
//	Running --pause--> Paused --resume--> Running
//	Running --last task fired--> Completed
//	any non-Removed --stop--> Removed
type State int

const (
	Running State = iota
	Paused
	Completed
	Removed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions except removal can happen.
func (s State) Terminal() bool { return s == Completed || s == Removed }

// Func is the user callback. ctx is cancelled when the job is removed.
type Func func(ctx context.Context) error

// Firing describes one callback invocation.
type Firing struct {
	JobID     string
	Index     int
	Timestamp int64
	Elapsed   time.Duration // virtual elapsed time when the task was released
	Took      time.Duration
	Err       error
}

// Hooks are invoked on the runner goroutine. They must not block for long.
type Hooks struct {
	OnFire     func(f Firing)
	OnComplete func(r *Runner)
}

// Config describes a runner before it is started.
type Config struct {
	ID         string
	Timestamps []int64
	Fn         Func

	// Parent bounds the job context; cancelling it stops the runner.
	Parent context.Context
	// Now overrides the clock source. Defaults to time.Now.
	Now func() time.Time
	// FailureLogEvery throttles warn-level logs for failing callbacks.
	// 0 means 5s.
	FailureLogEvery time.Duration
	// StartPaused creates the runner Paused with its clock frozen at zero.
	StartPaused bool

	Hooks Hooks
}

// Snapshot is a point-in-time view of a runner.
type Snapshot struct {
	JobID          string
	State          State
	CurrentIndex   int
	TotalTasks     int
	CompletedTasks int
	Elapsed        time.Duration
	NextTimestamp  *int64
	FailedTasks    int
	LastError      string
	StartedAt      time.Time
	PausedAt       time.Time
}
