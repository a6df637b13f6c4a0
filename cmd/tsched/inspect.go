package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tsched/internal/config"
	"tsched/internal/storage"
	logx "tsched/pkg/logx"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(cfgPath).Load()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d job(s)\n", len(cfg.Jobs))
		return nil
	},
}

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the expanded millisecond offsets of every job",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(cfgPath).Load()
		if err != nil {
			return err
		}
		type plan struct {
			ID         string  `json:"id"`
			Paused     bool    `json:"paused,omitempty"`
			Timestamps []int64 `json:"timestamps"`
		}
		plans := make([]plan, 0, len(cfg.Jobs))
		for _, j := range cfg.Jobs {
			ts, err := j.Expand()
			if err != nil {
				return fmt.Errorf("job %q: %w", j.ID, err)
			}
			plans = append(plans, plan{ID: strings.TrimSpace(j.ID), Paused: j.Paused, Timestamps: ts})
		}

		out := cmd.OutOrStdout()
		if planJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(plans)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "JOB\tTASKS\tLAST\tOFFSETS (ms)")
		for _, p := range plans {
			last := time.Duration(p.Timestamps[len(p.Timestamps)-1]) * time.Millisecond
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.ID, len(p.Timestamps), last, previewOffsets(p.Timestamps, 8))
		}
		return tw.Flush()
	},
}

var (
	journalJob   string
	journalLimit int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the most recent journal records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(cfgPath).Load()
		if err != nil {
			return err
		}
		if cfg.Storage == nil {
			return fmt.Errorf("journal: storage is not configured")
		}
		var busy time.Duration
		if s := strings.TrimSpace(cfg.Storage.BusyTimeout); s != "" {
			busy, _ = time.ParseDuration(s)
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, logx.Nop())
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("journal: %w", storage.ErrDisabled)
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		recs, err := st.Recent(ctx, journalJob, journalLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tTYPE\tJOB\tINDEX\tOFFSET\tELAPSED\tERROR")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.1f\t%s\n",
				r.At.Format(time.RFC3339), r.Type, r.JobID, r.Index, r.TimestampMS, r.ElapsedMS, r.Error)
		}
		return tw.Flush()
	},
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print JSON instead of a table")
	journalCmd.Flags().StringVar(&journalJob, "job", "", "only records of this job")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "maximum records")
}

func previewOffsets(ts []int64, n int) string {
	parts := make([]string, 0, n+1)
	for i, v := range ts {
		if i == n {
			parts = append(parts, fmt.Sprintf("... +%d", len(ts)-n))
			break
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}
