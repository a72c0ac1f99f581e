package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srodi/taskstats/pkg/config"
	"github.com/srodi/taskstats/pkg/exporter"
	"github.com/srodi/taskstats/pkg/format"
	"github.com/srodi/taskstats/pkg/procinfo"
	"github.com/srodi/taskstats/pkg/report"
	"github.com/srodi/taskstats/pkg/taskstats"
	"github.com/srodi/taskstats/pkg/ui"
)

type watchOptions struct {
	interval   time.Duration
	topK       int
	hideKernel bool
	commFilter string
}

func newWatchCmd(stdout io.Writer, g *globalOptions) *cobra.Command {
	w := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch [TID...]",
		Short: "Re-query tasks every interval and rank them by CPU and delay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			applyWatchFlags(cmd, w, &cfg)

			ids, err := watchTargets(args, cfg, g)
			if err != nil {
				return err
			}
			client, err := openClient(cfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cleanupTerminal := enableSingleView(log)
			defer cleanupTerminal()

			return watchLoop(ctx, stdout, client, ids, cfg, g.tgid, log)
		},
	}
	f := cmd.Flags()
	addTargetFlags(f, g)
	f.DurationVar(&w.interval, "interval", config.DefaultInterval, "sampling interval (e.g. 3s, 1m)")
	f.IntVar(&w.topK, "topk", config.DefaultTopK, "number of tasks to display per section")
	f.BoolVar(&w.hideKernel, "hide-kernel", true, "hide kernel threads such as kworker, ksoftirqd, etc")
	f.StringVar(&w.commFilter, "comm-filter", "", "only show tasks whose command contains this substring (case-insensitive)")
	return cmd
}

func applyWatchFlags(cmd *cobra.Command, w *watchOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Interval = w.interval
	}
	if flags.Changed("topk") {
		cfg.TopK = w.topK
	}
	if flags.Changed("hide-kernel") {
		hide := w.hideKernel
		cfg.HideKernel = &hide
	}
	if flags.Changed("comm-filter") {
		cfg.CommFilter = w.commFilter
	}
	cfg.Normalize()
}

// watchTargets prefers ids on the command line over the config file.
func watchTargets(args []string, cfg config.Config, g *globalOptions) ([]uint32, error) {
	var ids []uint32
	if len(args) > 0 {
		parsed, err := parseIDs(args)
		if err != nil {
			return nil, err
		}
		ids = parsed
	} else if g.tgid {
		ids = cfg.TGIDs
	} else {
		ids = cfg.PIDs
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no task ids given on the command line or in the config file")
	}
	if g.threads {
		return expandThreads(ids)
	}
	return ids, nil
}

func watchLoop(ctx context.Context, out io.Writer, src exporter.Source, ids []uint32, cfg config.Config, group bool, log *zap.Logger) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	comms := &procinfo.CommCache{}
	var prev []taskstats.TaskStats
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur := sample(src, ids, group, comms, log)
			var buf bytes.Buffer
			renderWatch(&buf, prev, cur, cfg, time.Now())
			clearScreen(out)
			if _, err := out.Write(buf.Bytes()); err != nil {
				return err
			}
			prev = cur
		}
	}
}

// sample queries every id, logging and skipping tasks that exited.
func sample(src exporter.Source, ids []uint32, group bool, comms *procinfo.CommCache, log *zap.Logger) []taskstats.TaskStats {
	stats := make([]taskstats.TaskStats, 0, len(ids))
	for _, id := range ids {
		var (
			ts  taskstats.TaskStats
			err error
		)
		if group {
			ts, err = src.TGIDStats(id)
		} else {
			ts, err = src.PIDStats(id)
		}
		if err != nil {
			log.Warn("snapshot failed", zap.Uint32("id", id), zap.Error(err))
			comms.Forget(id)
			continue
		}
		// Thread group replies carry no ac_pid or ac_comm.
		if ts.TID == 0 {
			ts.TID = id
		}
		if ts.Comm == "" {
			ts.Comm = comms.Comm(id)
		}
		stats = append(stats, ts)
	}
	return stats
}

func renderWatch(buf *bytes.Buffer, prev, cur []taskstats.TaskStats, cfg config.Config, now time.Time) {
	rows, _ := report.BuildTaskMetrics(prev, cur, cfg.Interval)
	filtered := report.FilterMetrics(rows, report.FilterConfig{HideKernel: cfg.HideKernel, CommFilter: cfg.CommFilter})
	focus := report.SelectFocusCandidate(filtered)

	buf.WriteString(ui.Banner())
	buf.WriteString("\n")
	fmt.Fprintf(buf, "taskstats watch (press Ctrl+C to exit)\n")
	fmt.Fprintf(buf, "Updated: %s | Interval: %v\n\n", now.Format(time.RFC3339), cfg.Interval)

	if focus != nil {
		fmt.Fprintf(buf, "[!] Focus: %s (tid %d)\n", focus.Comm, focus.TID)
		fmt.Fprintf(buf, "   Reason: %s - %s\n\n", focus.Diagnosis, report.FocusSummary(*focus))
	} else if len(filtered) == 0 {
		fmt.Fprintf(buf, "[!] No tasks matched current filters (topk=%d, hide-kernel=%t)\n\n", cfg.TopK, *cfg.HideKernel)
	}

	fmt.Fprintf(buf, "[Top %d CPU, window %v]\n", cfg.TopK, cfg.Interval)
	cpuRows := report.CPUUsageRows(filtered, cfg.TopK)
	if len(cpuRows) == 0 {
		fmt.Fprintln(buf, "No CPU time recorded in this window")
	} else {
		tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TID\tCOMM\tCPU(%)\tUSR(ms/s)\tSYS(ms/s)\tREAD/s\tWRITE/s\tDiag")
		for _, row := range cpuRows {
			fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\t%s\t%s\t%s\n",
				row.TID, row.Comm, row.CPUPercent, row.UserMsPerSec, row.SysMsPerSec,
				format.Bytes(row.ReadBytesPerSec), format.Bytes(row.WriteBytesPerSec), row.Diagnosis)
		}
		tw.Flush()
	}

	fmt.Fprintf(buf, "\n[Top %d Delays - share of window spent waiting]\n", cfg.TopK)
	delayRows := report.DelayRows(filtered, cfg.TopK)
	if len(delayRows) == 0 {
		fmt.Fprintln(buf, "No delays recorded in this window")
	} else {
		tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TID\tCOMM\tCPU(%)\tBLKIO(%)\tSWAP(%)\tMEM(%)\tAVG CPU\tAVG BLKIO\tDiagnosis")
		for _, row := range delayRows {
			fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t%s\t%s\n",
				row.TID, row.Comm, row.CPUDelayPercent, row.BlkIODelayPercent, row.SwapInDelayPercent, row.MemDelayPercent,
				format.Duration(row.AvgCPUDelay), format.Duration(row.AvgBlkIODelay), row.Diagnosis)
		}
		tw.Flush()
	}
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}
