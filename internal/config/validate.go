package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the whole config, including that every job expands to a
// usable schedule. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := parseDurationField("scheduler.stop_timeout", cfg.Scheduler.StopTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDurationField("scheduler.failure_log_every", cfg.Scheduler.FailureLogEvery); err != nil {
		errs = append(errs, err)
	}
	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path required for driver %q", st.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := parseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		id := strings.TrimSpace(j.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("%s.id required", path))
		} else if seen[id] {
			errs = append(errs, fmt.Errorf("%s.id: duplicate id %q", path, id))
		}
		seen[id] = true
		if _, err := j.Expand(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		if err := j.Action.validate(path + ".action"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a ActionConfig) validate(path string) error {
	switch strings.ToLower(strings.TrimSpace(a.Kind)) {
	case "", ActionLog:
		return nil
	case ActionExec:
		if len(a.Command) == 0 || strings.TrimSpace(a.Command[0]) == "" {
			return fmt.Errorf("%s.command required for exec", path)
		}
		_, err := parseDurationField(path+".timeout", a.Timeout)
		return err
	default:
		return fmt.Errorf("%s.kind: unknown action %q", path, a.Kind)
	}
}

func parseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
