package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/srodi/taskstats/pkg/config"
	"github.com/srodi/taskstats/pkg/exporter"
	"github.com/srodi/taskstats/pkg/format"
	"github.com/srodi/taskstats/pkg/netlink"
	"github.com/srodi/taskstats/pkg/procinfo"
	"github.com/srodi/taskstats/pkg/taskstats"
)

type globalOptions struct {
	configPath string
	logLevel   string
	tgid       bool
	comm       bool
	threads    bool
}

type queryOptions struct {
	verbose bool
	delay   bool
	output  string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	g := &globalOptions{}
	q := &queryOptions{}

	root := &cobra.Command{
		Use:   "taskstats [flags] TID...",
		Short: "Query Linux per-task accounting over generic netlink",
		Long: `taskstats prints the kernel's per-task accounting record (CPU, memory,
I/O, context switches and scheduling delays) for the given task ids.

Querying tasks owned by other users requires CAP_NET_ADMIN.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			client, err := openClient(cfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			if g.threads {
				if ids, err = expandThreads(ids); err != nil {
					return err
				}
			}
			stats, err := queryAll(client, ids, g.tgid)
			if err != nil {
				return err
			}
			return render(stdout, newPrinter(g), stats, q)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.StringVar(&g.logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	f := root.Flags()
	addTargetFlags(f, g)
	f.BoolVar(&g.comm, "comm", false, "label tasks with their command name from /proc")
	f.BoolVarP(&q.verbose, "verbose", "v", false, "print every field")
	f.BoolVarP(&q.delay, "delay", "d", false, "print delay averages and totals")
	f.StringVarP(&q.output, "output", "o", "", "output format: table or yaml")

	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newWatchCmd(stdout, g),
		newListenCmd(stdout, g),
		newExportCmd(g),
		newLayoutCmd(stdout),
	)
	return root
}

func addTargetFlags(f *pflag.FlagSet, g *globalOptions) {
	f.BoolVar(&g.tgid, "tgid", false, "treat ids as thread group ids and report the group")
	f.BoolVar(&g.threads, "threads", false, "expand each id to every thread of its thread group")
}

// setup loads the config file and lays explicitly set flags over it.
func setup(cmd *cobra.Command, g *globalOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = g.logLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
	}
	log, err := newLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if cfg.LogLevel == "debug" {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = zap.NewAtomicLevelAt(cfg.Level())
	logConfig.Encoding = "console"
	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

func openClient(cfg config.Config, log *zap.Logger) (*taskstats.Client, error) {
	client, err := taskstats.Open(
		taskstats.WithLogger(log),
		taskstats.WithConnOptions(netlink.WithMaxMessageSize(cfg.MaxMessageSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("open taskstats: %w", err)
	}
	if cfg.RcvBuf > 0 {
		if err := client.SetReceiveBufferSize(cfg.RcvBuf); err != nil {
			return nil, errors.Join(err, client.Close())
		}
	}
	return client, nil
}

func parseIDs(args []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid PID: %s", arg)
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

func expandThreads(ids []uint32) ([]uint32, error) {
	var out []uint32
	for _, id := range ids {
		tids, err := procinfo.Threads(id)
		if err != nil {
			return nil, err
		}
		out = append(out, tids...)
	}
	return out, nil
}

func queryAll(src exporter.Source, ids []uint32, group bool) ([]taskstats.TaskStats, error) {
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
			return nil, fmt.Errorf("get stats: %w", err)
		}
		// Thread group replies leave ac_pid zero.
		if ts.TID == 0 {
			ts.TID = id
		}
		stats = append(stats, ts)
	}
	return stats, nil
}

func newPrinter(g *globalOptions) *format.Printer {
	if g.comm {
		return format.NewPrinter(format.CommHeaderFormat{Cache: &procinfo.CommCache{}})
	}
	return format.NewPrinter(format.DefaultHeaderFormat{})
}

// render picks the output modes. -v and -d may be combined; the summary
// table is printed only when neither is given.
func render(w io.Writer, p *format.Printer, stats []taskstats.TaskStats, q *queryOptions) error {
	switch q.output {
	case "yaml":
		return p.PrintYAML(w, stats)
	case "", "table":
	default:
		return fmt.Errorf("unknown output format %q", q.output)
	}

	showSummary := true
	if q.verbose {
		if err := p.PrintFull(w, stats); err != nil {
			return err
		}
		showSummary = false
	}
	if q.delay {
		if err := p.PrintDelays(w, stats); err != nil {
			return err
		}
		showSummary = false
	}
	if showSummary {
		return p.PrintSummary(w, stats)
	}
	return nil
}
