package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// maxExpanded caps generated offsets so a typo like "every: 1ms" with a long
// window cannot allocate unbounded memory.
const maxExpanded = 100_000

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronAnchor is a fixed origin for cron expansion so offsets are stable across
// reloads. Midnight UTC on a Monday.
var cronAnchor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Expand merges all timestamp sources of the job into one sorted list of
// millisecond offsets.
func (j JobConfig) Expand() ([]int64, error) {
	out := slices.Clone(j.Timestamps)
	for _, ts := range out {
		if ts < 0 {
			return nil, fmt.Errorf("timestamps: negative offset %d", ts)
		}
	}

	if strings.TrimSpace(j.Every) != "" || j.Count != 0 {
		every, err := parseDurationField("every", j.Every)
		if err != nil {
			return nil, err
		}
		if every <= 0 {
			return nil, errors.New("every: must be > 0 when count is set")
		}
		if j.Count <= 0 {
			return nil, errors.New("count: must be > 0 when every is set")
		}
		if j.Count > maxExpanded {
			return nil, fmt.Errorf("count: at most %d offsets", maxExpanded)
		}
		for i := 0; i < j.Count; i++ {
			out = append(out, (time.Duration(i) * every).Milliseconds())
		}
	}

	if strings.TrimSpace(j.Cron) != "" {
		offs, err := expandCron(j.Cron, j.Window)
		if err != nil {
			return nil, err
		}
		out = append(out, offs...)
	}

	if len(out) == 0 {
		return nil, errors.New("no timestamps: set timestamps, every+count or cron+window")
	}
	if len(out) > maxExpanded {
		return nil, fmt.Errorf("too many timestamps (%d > %d)", len(out), maxExpanded)
	}
	slices.Sort(out)
	return out, nil
}

// expandCron lists the offsets of expr's firings within window, measured from
// cronAnchor. Firing exactly at the anchor counts as offset 0.
func expandCron(expr, window string) ([]int64, error) {
	sched, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}
	w, err := parseDurationField("window", window)
	if err != nil {
		return nil, err
	}
	if w <= 0 {
		return nil, errors.New("window: required with cron")
	}

	end := cronAnchor.Add(w)
	var out []int64
	// Next is strictly after its argument, so start just before the anchor.
	t := sched.Next(cronAnchor.Add(-time.Nanosecond))
	for !t.IsZero() && !t.After(end) {
		out = append(out, t.Sub(cronAnchor).Milliseconds())
		if len(out) > maxExpanded {
			return nil, fmt.Errorf("cron: more than %d firings in window", maxExpanded)
		}
		t = sched.Next(t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("cron: %q never fires within %s", expr, w)
	}
	return out, nil
}

// Fingerprint identifies the job's definition apart from its paused flag.
// Reloads replace a job only when its fingerprint changes.
func (j JobConfig) Fingerprint() uint64 {
	ts, _ := j.Expand()
	return hashJSON(struct {
		Timestamps []int64      `json:"timestamps"`
		Action     ActionConfig `json:"action"`
	}{ts, j.Action})
}
