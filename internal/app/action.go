package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"tsched/internal/config"
	logx "tsched/pkg/logx"
	"tsched/pkg/scheduler"
)

// maxOutput bounds how much exec output is kept for logs and errors.
const maxOutput = 4 << 10

// buildAction turns a job's action config into its scheduler callback.
func buildAction(job config.JobConfig, log logx.Logger) (scheduler.Func, error) {
	a := job.Action
	id := strings.TrimSpace(job.ID)
	log = log.With(logx.String("job", id))

	switch strings.ToLower(strings.TrimSpace(a.Kind)) {
	case "", config.ActionLog:
		msg := a.Message
		if msg == "" {
			msg = "job fired"
		}
		return func(ctx context.Context) error {
			log.Info(msg)
			return nil
		}, nil

	case config.ActionExec:
		if len(a.Command) == 0 {
			return nil, fmt.Errorf("job %q: exec action needs a command", id)
		}
		if _, err := exec.LookPath(a.Command[0]); err != nil {
			return nil, fmt.Errorf("job %q: %w", id, err)
		}
		var timeout time.Duration
		if s := strings.TrimSpace(a.Timeout); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("job %q: action.timeout: %w", id, err)
			}
			timeout = d
		}
		argv := append([]string(nil), a.Command...)
		return func(ctx context.Context) error {
			return runCommand(ctx, argv, timeout, log)
		}, nil

	default:
		return nil, fmt.Errorf("job %q: unknown action %q", id, a.Kind)
	}
}

func runCommand(ctx context.Context, argv []string, timeout time.Duration, log logx.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output := strings.TrimSpace(truncate(out.String(), maxOutput))
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", err, ctx.Err())
		}
		if output != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, output)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	log.Debug("command finished",
		logx.String("cmd", argv[0]),
		logx.Duration("took", time.Since(start)),
		logx.String("output", output),
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
