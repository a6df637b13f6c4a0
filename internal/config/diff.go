package config

import (
	"slices"
	"strings"

	logx "tsched/pkg/logx"
)

// JobDiff is the set of changes needed to move the running job set from one
// config to another. Ids are sorted.
type JobDiff struct {
	Added   []string
	Removed []string
	Changed []string // definition changed; remove and re-add
	Paused  []string
	Resumed []string
}

func (d JobDiff) Empty() bool {
	return len(d.Added)+len(d.Removed)+len(d.Changed)+len(d.Paused)+len(d.Resumed) == 0
}

func jobsByID(cfg *Config) map[string]JobConfig {
	out := map[string]JobConfig{}
	if cfg == nil {
		return out
	}
	for _, j := range cfg.Jobs {
		out[strings.TrimSpace(j.ID)] = j
	}
	return out
}

// DiffJobs compares the job sections of two configs.
func DiffJobs(oldCfg, newCfg *Config) JobDiff {
	oldJobs, newJobs := jobsByID(oldCfg), jobsByID(newCfg)
	var d JobDiff
	for id, nj := range newJobs {
		oj, ok := oldJobs[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case oj.Fingerprint() != nj.Fingerprint():
			d.Changed = append(d.Changed, id)
		case !oj.Paused && nj.Paused:
			d.Paused = append(d.Paused, id)
		case oj.Paused && !nj.Paused:
			d.Resumed = append(d.Resumed, id)
		}
	}
	for id := range oldJobs {
		if _, ok := newJobs[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	slices.Sort(d.Paused)
	slices.Sort(d.Resumed)
	return d
}

// SummarizeConfigChange returns the changed top-level sections and compact
// log fields describing them.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.drop_completed", newCfg.Scheduler.DropCompleted),
			logx.Duration("scheduler.stop_timeout", newCfg.Scheduler.StopTimeoutOrDefault()),
		)
	}
	if storageKey(oldCfg.Storage) != storageKey(newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", storageKey(newCfg.Storage)))
	}
	if d := DiffJobs(oldCfg, newCfg); !d.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.added", len(d.Added)),
			logx.Int("jobs.removed", len(d.Removed)),
			logx.Int("jobs.changed", len(d.Changed)),
			logx.Int("jobs.paused", len(d.Paused)),
			logx.Int("jobs.resumed", len(d.Resumed)),
		)
	}
	return changed, attrs
}

func storageKey(s *StorageConfig) string {
	if s == nil {
		return "none"
	}
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	if d == "" {
		d = "none"
	}
	return d + ":" + strings.TrimSpace(s.Path)
}
