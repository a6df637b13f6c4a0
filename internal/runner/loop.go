package runner

import (
	"fmt"
	"runtime/debug"
	"time"

	logx "tsched/pkg/logx"
)

// Run executes the schedule until every task has fired or the job is stopped.
// It must be called exactly once.
func (r *Runner) Run() {
	defer close(r.done)
	r.log.Debug("job started", logx.Int("tasks", len(r.timestamps)))

	for {
		r.mu.Lock()
		if r.state == Removed {
			r.mu.Unlock()
			r.log.Debug("job loop exited", logx.String("reason", "removed"))
			return
		}
		if r.index >= len(r.timestamps) {
			r.state = Completed
			r.clock.Pause()
			r.mu.Unlock()
			r.complete()
			return
		}
		if r.state == Paused {
			r.mu.Unlock()
			if !r.await(nil) {
				r.abandon()
				return
			}
			continue
		}

		idx := r.index
		ts := r.timestamps[idx]
		elapsed := r.clock.Elapsed()
		remaining := time.Duration(ts)*time.Millisecond - elapsed
		r.mu.Unlock()

		if remaining > 0 {
			t := time.NewTimer(remaining)
			ok := r.await(t.C)
			t.Stop()
			if !ok {
				r.abandon()
				return
			}
			// Woken by the timer or by a state change: re-evaluate either way.
			continue
		}

		// Stop or shutdown may have landed after the decision above.
		if r.ctx.Err() != nil {
			r.abandon()
			return
		}
		r.fire(idx, ts, elapsed)

		r.mu.Lock()
		r.index = idx + 1
		// Completed is entered together with the last advance so no snapshot
		// shows a Running job with every task done.
		finished := r.index >= len(r.timestamps) && r.state != Removed
		if finished {
			r.state = Completed
			r.clock.Pause()
		}
		r.mu.Unlock()
		if finished {
			r.complete()
			return
		}
	}
}

func (r *Runner) complete() {
	r.log.Debug("job completed", logx.Int("failed", r.failedCount()))
	if r.hooks.OnComplete != nil {
		r.hooks.OnComplete(r)
	}
}

// await blocks until the wake signal, the optional timer or cancellation.
// It returns false when the job context is done.
func (r *Runner) await(timer <-chan time.Time) bool {
	select {
	case <-r.ctx.Done():
		return false
	case <-r.wake:
		return true
	case <-timer:
		return true
	}
}

// abandon handles cancellation that did not come through Stop (scheduler
// shutdown cancelling the parent context).
func (r *Runner) abandon() {
	r.mu.Lock()
	if r.state != Removed {
		r.state = Removed
		r.clock.Pause()
	}
	r.mu.Unlock()
	r.log.Debug("job loop exited", logx.String("reason", "cancelled"))
}

func (r *Runner) fire(idx int, ts int64, elapsed time.Duration) {
	start := time.Now()
	err := r.invoke()
	f := Firing{
		JobID:     r.id,
		Index:     idx,
		Timestamp: ts,
		Elapsed:   elapsed,
		Took:      time.Since(start),
		Err:       err,
	}

	if err != nil {
		r.mu.Lock()
		r.failed++
		r.lastErr = err.Error()
		r.mu.Unlock()

		fields := []logx.Field{logx.Int("index", idx), logx.Int64("ts", ts), logx.Err(err), logx.Duration("took", f.Took)}
		if r.failLog.Allow() {
			r.log.Warn("task failed", fields...)
		} else {
			r.log.Debug("task failed", fields...)
		}
	} else {
		r.log.Debug("task fired", logx.Int("index", idx), logx.Int64("ts", ts), logx.Duration("elapsed", elapsed), logx.Duration("took", f.Took))
	}

	if r.hooks.OnFire != nil {
		r.hooks.OnFire(f)
	}
}

// invoke runs the callback, converting a panic into an error so a single bad
// task cannot kill the job goroutine.
func (r *Runner) invoke() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.log.Error("task panicked", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	return r.fn(r.ctx)
}

func (r *Runner) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
