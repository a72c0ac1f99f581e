package main

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srodi/taskstats/pkg/format"
	"github.com/srodi/taskstats/pkg/taskstats"
)

type listenOptions struct {
	cpumask string
	rcvbuf  int
	verbose bool
}

func newListenCmd(stdout io.Writer, g *globalOptions) *cobra.Command {
	l := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print the accounting record of every task exiting on the given cpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if cmd.Flags().Changed("cpumask") {
				cfg.CPUMask = l.cpumask
			}
			if cmd.Flags().Changed("rcvbuf") {
				cfg.RcvBuf = l.rcvbuf
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}
			mask, err := cfg.CPUSet()
			if err != nil {
				return err
			}
			if mask.IsEmpty() {
				return taskstats.ErrEmptyCPUMask
			}

			client, err := openClient(cfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.RegisterCPUMask(mask); err != nil {
				return err
			}
			log.Info("listening for exiting tasks", zap.Stringer("cpus", mask))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			records := make(chan []taskstats.TaskStats)
			errc := make(chan error, 1)
			go func() {
				for {
					batch, err := client.ListenRegistered()
					if err != nil {
						errc <- err
						return
					}
					select {
					case records <- batch:
					case <-ctx.Done():
						return
					}
				}
			}()

			printer := format.NewPrinter(format.DefaultHeaderFormat{})
			var runErr error
		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case runErr = <-errc:
					break loop
				case batch := <-records:
					if err := printRecords(stdout, printer, batch, l.verbose); err != nil {
						runErr = err
						break loop
					}
				}
			}

			// Deregistration only sends, so it may run while the receive
			// goroutine is still blocked.
			if err := client.DeregisterCPUMask(mask); err != nil {
				runErr = errors.Join(runErr, err)
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&l.cpumask, "cpumask", "", "cpus to listen on, in cpulist form (e.g. 0-3,8)")
	f.IntVar(&l.rcvbuf, "rcvbuf", 0, "SO_RCVBUF in bytes; 0 keeps the kernel default")
	f.BoolVarP(&l.verbose, "verbose", "v", false, "print every field of each record")
	return cmd
}

func printRecords(w io.Writer, p *format.Printer, batch []taskstats.TaskStats, verbose bool) error {
	if verbose {
		return p.PrintFull(w, batch)
	}
	return p.PrintSummary(w, batch)
}
