package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TaskFired, Data: JobEvent{JobID: "j", Index: 1}})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		require.Equal(t, TaskFired, ev.Type)
		require.False(t, ev.Time.IsZero())
		require.Equal(t, "j", ev.Data.(JobEvent).JobID)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: JobAdded})
	b.Publish(Event{Type: JobPaused})

	require.Equal(t, JobAdded, (<-ch).Type)
	require.EqualValues(t, 1, Dropped(b))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: JobRemoved})
}
