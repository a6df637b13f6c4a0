package config

import (
	"time"

	logx "tsched/pkg/logx"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx maps the logging section onto the logx service config.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// SchedulerConfig controls the scheduler facade.
//
// Durations are Go duration strings. Defaults:
//   - stop_timeout: "5s"
//   - failure_log_every: "5s"
type SchedulerConfig struct {
	DropCompleted   bool   `json:"drop_completed,omitempty"`
	StopTimeout     string `json:"stop_timeout,omitempty"`
	FailureLogEvery string `json:"failure_log_every,omitempty"`
}

func (c SchedulerConfig) StopTimeoutOrDefault() time.Duration {
	d, err := parseDurationOrDefault("scheduler.stop_timeout", c.StopTimeout, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

func (c SchedulerConfig) FailureLogEveryOrDefault() time.Duration {
	d, err := parseDurationOrDefault("scheduler.failure_log_every", c.FailureLogEvery, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// StorageConfig selects the firing journal backend.
//
// Example:
//
//	storage: { driver: file, path: ./data/tsched }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// JobConfig declares one job. Timestamp sources are merged and sorted:
//   - timestamps: explicit millisecond offsets
//   - every + count: count offsets starting at 0, spaced by every
//   - cron + window: offsets of cron firings within window from the job start
type JobConfig struct {
	ID         string       `json:"id"`
	Timestamps []int64      `json:"timestamps,omitempty"`
	Every      string       `json:"every,omitempty"`
	Count      int          `json:"count,omitempty"`
	Cron       string       `json:"cron,omitempty"`
	Window     string       `json:"window,omitempty"`
	Paused     bool         `json:"paused,omitempty"`
	Action     ActionConfig `json:"action"`
}

const (
	ActionLog  = "log"
	ActionExec = "exec"
)

// ActionConfig is the callback a configured job runs at each timestamp.
type ActionConfig struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message,omitempty"`
	Command []string `json:"command,omitempty"`
	Timeout string   `json:"timeout,omitempty"` // exec only
}
