package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tsched/internal/eventbus"
	logx "tsched/pkg/logx"
)

// Recorder copies bus events into a Store.
type Recorder struct {
	store Store
	log   logx.Logger
	ch    <-chan Event
	unsub func()
}

// Event is an alias so callers need not import eventbus for Recorder alone.
type Event = eventbus.Event

// NewRecorder subscribes to bus immediately so no event published after it
// returns is missed. Run drains the subscription.
func NewRecorder(bus eventbus.Bus, store Store, log logx.Logger) *Recorder {
	ch, unsub := bus.Subscribe(256)
	return &Recorder{store: store, log: log, ch: ch, unsub: unsub}
}

// Run appends events until ctx is done, then flushes what is already queued.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			r.append(ctx, ev)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			r.append(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) append(ctx context.Context, ev Event) {
	rec := RecordFromEvent(ev)
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Warn("journal append failed", logx.String("type", rec.Type), logx.String("job", rec.JobID), logx.Err(err))
	}
}

// RecordFromEvent converts a bus event into a journal record with a fresh id.
func RecordFromEvent(ev Event) Record {
	rec := Record{ID: uuid.NewString(), At: ev.Time, Type: ev.Type}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	var je eventbus.JobEvent
	switch d := ev.Data.(type) {
	case eventbus.JobEvent:
		je = d
	case *eventbus.JobEvent:
		if d != nil {
			je = *d
		}
	}
	rec.JobID = je.JobID
	rec.Index = je.Index
	rec.TimestampMS = je.Timestamp
	rec.ElapsedMS = je.ElapsedMS
	rec.TookMS = je.Took.Milliseconds()
	rec.Error = je.Error
	return rec
}
