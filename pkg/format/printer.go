// Package format renders taskstats records for terminals and files.
package format

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srodi/taskstats/pkg/procinfo"
	"github.com/srodi/taskstats/pkg/taskstats"
)

// HeaderFormat labels the record of one task.
type HeaderFormat interface {
	Format(tid uint32) string
}

// DefaultHeaderFormat prints "TID: <tid>".
type DefaultHeaderFormat struct{}

func (DefaultHeaderFormat) Format(tid uint32) string {
	return fmt.Sprintf("TID: %d", tid)
}

// CommHeaderFormat prints "<tid> (<comm>)", resolving names from /proc.
type CommHeaderFormat struct {
	Cache *procinfo.CommCache
}

func (h CommHeaderFormat) Format(tid uint32) string {
	cache := h.Cache
	if cache == nil {
		cache = &procinfo.CommCache{}
	}
	return fmt.Sprintf("%d (%s)", tid, cache.Comm(tid))
}

// Printer writes TaskStats in the CLI's output modes.
type Printer struct {
	header HeaderFormat
}

// NewPrinter returns a printer using header to label tasks. A nil header
// falls back to DefaultHeaderFormat.
func NewPrinter(header HeaderFormat) *Printer {
	if header == nil {
		header = DefaultHeaderFormat{}
	}
	return &Printer{header: header}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// PrintSummary writes one line per task: CPU times in microseconds,
// memory integrals, syscall I/O bytes and delay totals in nanoseconds.
func (p *Printer) PrintSummary(w io.Writer, stats []taskstats.TaskStats) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Task\tutime\tstime\trss\tvmem\tread\twrite\td:cpu\td:bio\td:swap\td:reclaim\t")
	for i := range stats {
		ts := &stats[i]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			p.header.Format(ts.TID),
			ts.CPU.UTimeTotal.Microseconds(),
			ts.CPU.STimeTotal.Microseconds(),
			ts.Memory.RSSTotal,
			ts.Memory.VirtTotal,
			ts.IO.ReadBytes,
			ts.IO.WriteBytes,
			ts.Delays.CPU.DelayTotal.Nanoseconds(),
			ts.Delays.BlkIO.DelayTotal.Nanoseconds(),
			ts.Delays.SwapIn.DelayTotal.Nanoseconds(),
			ts.Delays.FreePages.DelayTotal.Nanoseconds())
	}
	return tw.Flush()
}

// PrintDelays writes per-task average and total delays in nanoseconds.
func (p *Printer) PrintDelays(w io.Writer, stats []taskstats.TaskStats) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Task\tcpu avg\tblkio avg\tswapin avg\treclaim avg\tcpu total\tblkio total\tswapin total\treclaim total\t")
	for i := range stats {
		d := stats[i].Delays
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			p.header.Format(stats[i].TID),
			avgNanos(d.CPU),
			avgNanos(d.BlkIO),
			avgNanos(d.SwapIn),
			avgNanos(d.FreePages),
			d.CPU.DelayTotal.Nanoseconds(),
			d.BlkIO.DelayTotal.Nanoseconds(),
			d.SwapIn.DelayTotal.Nanoseconds(),
			d.FreePages.DelayTotal.Nanoseconds())
	}
	return tw.Flush()
}

// PrintFull writes every projected field of every task.
func (p *Printer) PrintFull(w io.Writer, stats []taskstats.TaskStats) error {
	ew := &errWriter{w: w}
	for i := range stats {
		ts := &stats[i]
		ew.printf("=== %s ===\n", p.header.Format(ts.TID))

		ew.printf("--- CPU ---\n")
		ew.printf("User Time (us): %d\n", ts.CPU.UTimeTotal.Microseconds())
		ew.printf("System Time (us): %d\n", ts.CPU.STimeTotal.Microseconds())
		ew.printf("Real Time (us): %d\n", ts.CPU.RealTimeTotal.Microseconds())
		ew.printf("Virtual Time (us): %d\n", ts.CPU.VirtualTimeTotal.Microseconds())

		ew.printf("--- Memory ---\n")
		ew.printf("RSS (MB-usec): %d\n", ts.Memory.RSSTotal)
		ew.printf("Virtual (MB-usec): %d\n", ts.Memory.VirtTotal)
		ew.printf("Page Faults (minor:major): %d:%d\n", ts.Memory.MinorFaults, ts.Memory.MajorFaults)

		ew.printf("--- IO ---\n")
		ew.printf("Read (bytes): %d\n", ts.IO.ReadBytes)
		ew.printf("Write (bytes): %d\n", ts.IO.WriteBytes)
		ew.printf("Syscalls (read:write): %d:%d\n", ts.IO.ReadSyscalls, ts.IO.WriteSyscalls)

		ew.printf("--- Block Device IO ---\n")
		ew.printf("Read (bytes): %d\n", ts.BlkIO.ReadBytes)
		ew.printf("Write (bytes): %d\n", ts.BlkIO.WriteBytes)
		ew.printf("Write Cancelled (bytes): %d\n", ts.BlkIO.CancelledWriteBytes)

		ew.printf("--- Context Switches ---\n")
		ew.printf("Voluntary:Non-voluntary: %d:%d\n", ts.ContextSwitches.Voluntary, ts.ContextSwitches.NonVoluntary)

		ew.printf("--- Delays ---\n")
		ew.delay("CPU", ts.Delays.CPU)
		ew.delay("BlkIO", ts.Delays.BlkIO)
		ew.delay("SwapIn", ts.Delays.SwapIn)
		ew.delay("Mem Reclaim", ts.Delays.FreePages)
		// Newer delay classes only show up when the kernel reported them.
		if ts.Version >= 9 {
			ew.delay("Thrashing", ts.Delays.Thrashing)
		}
		if ts.Version >= 11 {
			ew.delay("Compact", ts.Delays.Compact)
		}
		if ts.Version >= 13 {
			ew.delay("Write-protect Copy", ts.Delays.WPCopy)
		}
		if ts.Version >= 14 {
			ew.delay("IRQ", ts.Delays.IRQ)
		}
	}
	return ew.err
}

// yamlRecord pairs a task label with its stats.
type yamlRecord struct {
	Task                string `yaml:"task"`
	taskstats.TaskStats `yaml:",inline"`
}

// PrintYAML writes a YAML sequence with one mapping per task.
func (p *Printer) PrintYAML(w io.Writer, stats []taskstats.TaskStats) error {
	records := make([]yamlRecord, 0, len(stats))
	for _, ts := range stats {
		records = append(records, yamlRecord{Task: p.header.Format(ts.TID), TaskStats: ts})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}

// avgNanos divides by at least one so a total without events still shows.
func avgNanos(d taskstats.DelayStat) uint64 {
	return uint64(d.DelayTotal.Nanoseconds()) / max(d.Count, 1)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) delay(label string, d taskstats.DelayStat) {
	e.printf("%s Total(nsec)/Count: %d/%d\n", label, d.DelayTotal.Nanoseconds(), d.Count)
}

// Bytes renders a byte count with a binary unit suffix.
func Bytes(n float64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%.0fB", n)
	}
	suffixes := "KMGTPE"
	i := -1
	for n >= unit && i < len(suffixes)-1 {
		n /= unit
		i++
	}
	return fmt.Sprintf("%.1f%ciB", n, suffixes[i])
}

// Duration renders d rounded to a readable precision.
func Duration(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Microsecond:
		return d.String()
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.Round(10 * time.Microsecond).String()
	}
}
