package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tsched/internal/eventbus"
)

type hits struct {
	mu  sync.Mutex
	at  []time.Duration
	ids []string
	t0  time.Time
}

func newHits() *hits { return &hits{t0: time.Now()} }

func (h *hits) fn(id string) Func {
	return func(context.Context) error {
		h.mu.Lock()
		h.at = append(h.at, time.Since(h.t0))
		h.ids = append(h.ids, id)
		h.mu.Unlock()
		return nil
	}
}

func (h *hits) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.at)
}

func (h *hits) times() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.at...)
}

func newScheduler(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	s := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func waitState(t *testing.T, s *Scheduler, id string, want State) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = s.JobStatus(id)
		return ok && st.State == want
	}, 3*time.Second, 2*time.Millisecond, "job %s never reached %s", id, want)
	return st
}

func TestAddJobValidation(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	noop := func(context.Context) error { return nil }

	ok, err := s.AddJob("", []int64{0}, noop)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidJob)

	ok, err = s.AddJob("neg", []int64{5, -1}, noop)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidJob)

	ok, err = s.AddJob("nil", []int64{0}, nil)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidJob)

	ok, err = s.AddJob("j", []int64{60_000}, noop)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AddJob("j", []int64{0}, noop)
	require.NoError(t, err)
	require.False(t, ok, "duplicate active id must be rejected")
}

func TestJobIDIsKeptVerbatim(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	noop := func(context.Context) error { return nil }

	ok, err := s.AddJob(" a ", []int64{60_000}, noop)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{" a "}, s.ListJobs())

	st, found := s.JobStatus(" a ")
	require.True(t, found)
	require.Equal(t, " a ", st.JobID)
	_, found = s.JobStatus("a")
	require.False(t, found)

	require.True(t, s.PauseJob(" a "))
	require.True(t, s.ResumeJob(" a "))
	require.True(t, s.RemoveJob(" a "))
	require.Empty(t, s.ListJobs())
}

func TestScheduleScenarioWithPause(t *testing.T) {
	t.Parallel()
	// The reference scenario [0,200,250,3000] with a pause from 1000 to 3000,
	// scaled down by 10.
	s := newScheduler(t, DefaultOptions())
	h := newHits()
	ok, err := s.AddJob("j", []int64{0, 20, 25, 300}, h.fn("j"))
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 3, h.count())
	require.True(t, s.PauseJob("j"))
	require.False(t, s.PauseJob("j"), "second pause is a no-op")

	paused := waitState(t, s, "j", Paused)
	require.Equal(t, 3, paused.CurrentIndex)
	require.NotNil(t, paused.NextTimestamp)
	require.EqualValues(t, 300, *paused.NextTimestamp)

	time.Sleep(200 * time.Millisecond)
	again, _ := s.JobStatus("j")
	require.Equal(t, paused.ElapsedMS, again.ElapsedMS, "virtual time advanced while paused")
	require.Equal(t, 3, h.count())

	require.True(t, s.ResumeJob("j"))
	require.False(t, s.ResumeJob("j"))

	done := waitState(t, s, "j", Completed)
	at := h.times()
	require.Len(t, at, 4)
	// Paused at 100, resumed at 300, remaining 200: 4th firing at ≈500.
	require.GreaterOrEqual(t, at[3], 480*time.Millisecond)
	require.Less(t, at[3], 700*time.Millisecond)

	require.Equal(t, "completed", done.Status)
	require.Equal(t, 4, done.CurrentIndex)
	require.Equal(t, 4, done.CompletedTasks)
	require.Equal(t, 4, done.TotalTasks)
	require.Nil(t, done.NextTimestamp)
	require.False(t, s.PauseJob("j"))
	require.False(t, s.ResumeJob("j"))
}

func TestCompletedJobsAreRetainedUntilCleared(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	h := newHits()
	ok, _ := s.AddJob("a", []int64{0}, h.fn("a"))
	require.True(t, ok)
	waitState(t, s, "a", Completed)

	require.Equal(t, []string{"a"}, s.ListJobs())
	require.Contains(t, s.AllStatuses(), "a")

	ok, err := s.AddJob("a", []int64{0}, h.fn("a"))
	require.NoError(t, err)
	require.True(t, ok, "a completed id can be reused")
	waitState(t, s, "a", Completed)

	require.Equal(t, 1, s.ClearCompleted())
	require.Empty(t, s.ListJobs())
}

func TestDropCompletedForgetsFinishedJobs(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, Options{DropCompleted: true})
	ok, _ := s.AddJob("a", []int64{0, 5}, newHits().fn("a"))
	require.True(t, ok)
	require.Eventually(t, func() bool {
		_, found := s.JobStatus("a")
		return !found
	}, time.Second, 2*time.Millisecond)
}

func TestRemoveJobStopsCallbacks(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	h := newHits()
	ok, _ := s.AddJob("r", []int64{0, 150, 300}, h.fn("r"))
	require.True(t, ok)

	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, time.Millisecond)
	require.True(t, s.RemoveJob("r"))
	require.False(t, s.RemoveJob("r"))

	time.Sleep(400 * time.Millisecond)
	require.Equal(t, 1, h.count())
	_, found := s.JobStatus("r")
	require.False(t, found)
	require.NotContains(t, s.ListJobs(), "r")
}

func TestUnknownJobOperations(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	require.False(t, s.PauseJob("nope"))
	require.False(t, s.ResumeJob("nope"))
	require.False(t, s.RemoveJob("nope"))
	_, found := s.JobStatus("nope")
	require.False(t, found)
}

func TestPausingOneJobDoesNotDelayAnother(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	a, b := newHits(), newHits()
	ok, _ := s.AddJob("a", []int64{0, 50, 100, 150}, a.fn("a"))
	require.True(t, ok)
	ok, _ = s.AddJob("b", []int64{0, 50, 100, 150}, b.fn("b"))
	require.True(t, ok)

	require.Eventually(t, func() bool { return a.count() == 1 }, time.Second, time.Millisecond)
	require.True(t, s.PauseJob("a"))

	waitState(t, s, "b", Completed)
	bt := b.times()
	require.Len(t, bt, 4)
	require.Less(t, bt[3], 400*time.Millisecond)
	require.Equal(t, 1, a.count())

	st, _ := s.JobStatus("a")
	require.Equal(t, "paused", st.Status)
	require.True(t, s.RemoveJob("a"))
}

func TestSlowCallbackDoesNotBlockControlOperations(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	release := make(chan struct{})
	defer close(release)
	ok, _ := s.AddJob("slow", []int64{0, 10}, func(context.Context) error {
		<-release
		return nil
	})
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.True(t, s.PauseJob("slow"))
	_, found := s.JobStatus("slow")
	require.True(t, found)
	require.True(t, s.ResumeJob("slow"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestStatusJSONShape(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	ok, _ := s.AddJob("j", []int64{60_000}, newHits().fn("j"))
	require.True(t, ok)

	st, found := s.JobStatus("j")
	require.True(t, found)
	b, err := json.Marshal(st)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"job_id", "status", "current_index", "total_tasks", "completed_tasks", "elapsed_time_ms", "next_timestamp"} {
		require.Contains(t, m, k)
	}
	require.Equal(t, "running", m["status"])
	require.EqualValues(t, 60_000, m["next_timestamp"])
}

func TestShutdownRejectsNewJobsAndStopsRunners(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()

	s := New(Options{Bus: bus})
	var calls atomic.Int32
	for _, id := range []string{"a", "b"} {
		ok, err := s.AddJob(id, []int64{0, 200}, func(context.Context) error {
			calls.Add(1)
			return nil
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
	require.Empty(t, s.ListJobs())
	require.Zero(t, s.Stats().ActiveRunners)

	ok, err := s.AddJob("c", []int64{0}, func(context.Context) error { return nil })
	require.False(t, ok)
	require.ErrorIs(t, err, ErrClosed)

	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 2, calls.Load())

	seen := map[string]int{}
	for len(events) > 0 {
		seen[(<-events).Type]++
	}
	require.Equal(t, 2, seen[eventbus.JobAdded])
	require.Equal(t, 2, seen[eventbus.TaskFired])
	require.Equal(t, 2, seen[eventbus.JobRemoved])
	require.Equal(t, 1, seen[eventbus.SchedulerStop])
}

func TestFailedCallbackIsReported(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := newScheduler(t, Options{Bus: bus})
	ok, _ := s.AddJob("f", []int64{0, 5}, func(context.Context) error { panic("nope") })
	require.True(t, ok)

	st := waitState(t, s, "f", Completed)
	require.Equal(t, 2, st.FailedTasks)
	require.Contains(t, st.LastError, "nope")

	failed := 0
	for len(events) > 0 {
		ev := <-events
		if ev.Type == eventbus.TaskFailed {
			failed++
			require.Contains(t, ev.Data.(eventbus.JobEvent).Error, "nope")
		}
	}
	require.Equal(t, 2, failed)
}

func TestAddPausedJobWaitsForResume(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, DefaultOptions())
	h := newHits()
	ok, err := s.AddPausedJob("p", []int64{0, 50}, h.fn("p"))
	require.NoError(t, err)
	require.True(t, ok)

	st, found := s.JobStatus("p")
	require.True(t, found)
	require.Equal(t, "paused", st.Status)
	require.False(t, st.PausedAt.IsZero())

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, h.count())
	st, _ = s.JobStatus("p")
	require.Less(t, st.ElapsedMS, 5.0)

	require.True(t, s.ResumeJob("p"))
	waitState(t, s, "p", Completed)
	require.Equal(t, 2, h.count())
}
