package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsched/internal/eventbus"
	logx "tsched/pkg/logx"
)

func openTestFile(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Logger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, filepath.Join(filepath.Dir(path), "journal.events.jsonl")
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Logger{})
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "bogus"}, logx.Logger{})
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Logger{})
	assert.Error(t, err)
}

func TestFileAppendRecent(t *testing.T) {
	st, path := openTestFile(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		job := "a"
		if i%2 == 1 {
			job = "b"
		}
		require.NoError(t, st.Append(ctx, Record{ID: fmt.Sprint(i), Type: eventbus.TaskFired, JobID: job, Index: i}))
	}
	_, err := os.Stat(path)
	require.NoError(t, err)

	all, err := st.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "0", all[0].ID)

	a, err := st.Recent(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, 2, a[0].Index)
	assert.Equal(t, 4, a[1].Index)

	none, err := st.Recent(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileSkipsTornLine(t *testing.T) {
	st, path := openTestFile(t)
	ctx := context.Background()
	require.NoError(t, st.Append(ctx, Record{ID: "1", JobID: "a"}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"2","job_`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := st.Recent(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFileAppendAfterClose(t *testing.T) {
	st, _ := openTestFile(t)
	require.NoError(t, st.Close())
	assert.Error(t, st.Append(context.Background(), Record{ID: "x"}))
	require.NoError(t, st.Close())
}

func TestRecordFromEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := RecordFromEvent(eventbus.Event{
		Type: eventbus.TaskFailed,
		Time: at,
		Data: eventbus.JobEvent{JobID: "j", Index: 3, Timestamp: 250, ElapsedMS: 251.5, Took: 7 * time.Millisecond, Error: "boom"},
	})
	_, err := uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, at, rec.At)
	assert.Equal(t, "j", rec.JobID)
	assert.Equal(t, 3, rec.Index)
	assert.Equal(t, int64(250), rec.TimestampMS)
	assert.Equal(t, int64(7), rec.TookMS)
	assert.Equal(t, "boom", rec.Error)

	stop := RecordFromEvent(eventbus.Event{Type: eventbus.SchedulerStop})
	assert.Empty(t, stop.JobID)
	assert.False(t, stop.At.IsZero())
}

type failingStore struct{ Store }

func (failingStore) Append(context.Context, Record) error { return errors.New("disk full") }

func TestRecorderRun(t *testing.T) {
	st, _ := openTestFile(t)
	bus := eventbus.New()
	rec := NewRecorder(bus, st, logx.Logger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	bus.Publish(eventbus.Event{Type: eventbus.JobAdded, Data: eventbus.JobEvent{JobID: "j"}})
	bus.Publish(eventbus.Event{Type: eventbus.TaskFired, Data: eventbus.JobEvent{JobID: "j", Index: 0}})

	require.Eventually(t, func() bool {
		got, err := st.Recent(context.Background(), "j", 10)
		return err == nil && len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRecorderSurvivesStoreErrors(t *testing.T) {
	bus := eventbus.New()
	rec := NewRecorder(bus, failingStore{}, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(eventbus.Event{Type: eventbus.JobAdded})
	cancel()
	require.NoError(t, rec.Run(ctx))
}
