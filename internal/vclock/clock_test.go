package vclock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestElapsedTracksWallClockWhileRunning(t *testing.T) {
	t.Parallel()
	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := New(fn.Now)
	require.Zero(t, c.Elapsed())

	fn.Advance(250 * time.Millisecond)
	require.Equal(t, 250*time.Millisecond, c.Elapsed())
}

func TestPauseFreezesAndResumeDoesNotAddPausedTime(t *testing.T) {
	t.Parallel()
	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := New(fn.Now)

	fn.Advance(time.Second)
	require.True(t, c.Pause())
	at, paused := c.PausedAt()
	require.True(t, paused)
	require.Equal(t, fn.Now(), at)

	fn.Advance(2 * time.Second)
	require.Equal(t, time.Second, c.Elapsed())

	require.True(t, c.Resume())
	require.Equal(t, time.Second, c.Elapsed())

	fn.Advance(500 * time.Millisecond)
	require.Equal(t, 1500*time.Millisecond, c.Elapsed())
}

func TestPauseAndResumeAreIdempotent(t *testing.T) {
	t.Parallel()
	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := New(fn.Now)

	require.False(t, c.Resume())
	fn.Advance(100 * time.Millisecond)
	require.True(t, c.Pause())
	fn.Advance(100 * time.Millisecond)
	require.False(t, c.Pause())
	require.Equal(t, 100*time.Millisecond, c.Elapsed())

	require.True(t, c.Resume())
	require.False(t, c.Resume())
	require.False(t, c.Paused())
	_, paused := c.PausedAt()
	require.False(t, paused)
}

func TestElapsedIsMonotonicAcrossCycles(t *testing.T) {
	t.Parallel()
	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := New(fn.Now)

	var last time.Duration
	for i := 0; i < 5; i++ {
		fn.Advance(10 * time.Millisecond)
		c.Pause()
		fn.Advance(time.Second)
		c.Resume()
		got := c.Elapsed()
		require.GreaterOrEqual(t, got, last)
		last = got
	}
	require.Equal(t, 50*time.Millisecond, last)
}
