package app

import (
	"errors"
	"strings"

	"tsched/internal/config"
	logx "tsched/pkg/logx"
)

// reconcile moves the scheduler's job set from oldCfg to newCfg.
// Errors for individual jobs are collected; other jobs are still applied.
func (a *App) reconcile(oldCfg, newCfg *config.Config) error {
	d := config.DiffJobs(oldCfg, newCfg)
	if d.Empty() {
		return nil
	}
	jobs := map[string]config.JobConfig{}
	for _, j := range newCfg.Jobs {
		jobs[strings.TrimSpace(j.ID)] = j
	}

	var errs []error
	for _, id := range d.Removed {
		if !a.sched.RemoveJob(id) {
			a.log.Debug("job already gone", logx.String("job", id))
		}
	}
	for _, id := range d.Changed {
		a.sched.RemoveJob(id)
		if err := a.addJob(jobs[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range d.Added {
		if err := a.addJob(jobs[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range d.Paused {
		if !a.sched.PauseJob(id) {
			a.log.Debug("pause skipped", logx.String("job", id))
		}
	}
	for _, id := range d.Resumed {
		if !a.sched.ResumeJob(id) {
			a.log.Debug("resume skipped", logx.String("job", id))
		}
	}

	a.log.Info("jobs reconciled",
		logx.Int("added", len(d.Added)),
		logx.Int("removed", len(d.Removed)),
		logx.Int("replaced", len(d.Changed)),
		logx.Int("paused", len(d.Paused)),
		logx.Int("resumed", len(d.Resumed)),
	)
	return errors.Join(errs...)
}

func (a *App) addJob(j config.JobConfig) error {
	ts, err := j.Expand()
	if err != nil {
		return err
	}
	fn, err := buildAction(j, a.log.With(logx.String("comp", "action")))
	if err != nil {
		return err
	}
	add := a.sched.AddJob
	if j.Paused {
		add = a.sched.AddPausedJob
	}
	// Config ids are matched trimmed, so the scheduler sees the trimmed form.
	id := strings.TrimSpace(j.ID)
	ok, err := add(id, ts, fn)
	if err != nil {
		return err
	}
	if !ok {
		a.log.Warn("job id still active; skipped", logx.String("job", id))
	}
	return nil
}
