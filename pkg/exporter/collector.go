// Package exporter publishes taskstats counters as Prometheus metrics.
package exporter

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/srodi/taskstats/pkg/taskstats"
)

const namespace = "taskstats"

// Source answers taskstats queries. *taskstats.Client satisfies it.
type Source interface {
	PIDStats(tid uint32) (taskstats.TaskStats, error)
	TGIDStats(tgid uint32) (taskstats.TaskStats, error)
}

// Target is one task or thread group to scrape.
type Target struct {
	ID    uint32
	Group bool
}

func (t Target) kind() string {
	if t.Group {
		return "tgid"
	}
	return "pid"
}

var (
	upDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "up"),
		"Whether the last taskstats query for the target succeeded.",
		[]string{"kind", "id"}, nil)
	cpuDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cpu", "seconds_total"),
		"CPU time consumed, by mode.",
		[]string{"kind", "id", "mode"}, nil)
	delayDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "delay", "seconds_total"),
		"Time spent waiting, by delay class.",
		[]string{"kind", "id", "class"}, nil)
	delayCountDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "delay", "events_total"),
		"Number of delay events, by delay class.",
		[]string{"kind", "id", "class"}, nil)
	ioDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "io", "bytes_total"),
		"Bytes moved through read and write syscalls.",
		[]string{"kind", "id", "direction"}, nil)
	blkioDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "blkio", "bytes_total"),
		"Bytes moved to and from block devices.",
		[]string{"kind", "id", "direction"}, nil)
	faultsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "page_faults", "total"),
		"Page faults, by type.",
		[]string{"kind", "id", "type"}, nil)
	switchesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "context_switches", "total"),
		"Context switches, by type.",
		[]string{"kind", "id", "type"}, nil)
)

// Collector queries every target on each scrape. The underlying client is
// single-owner, so scrapes are serialized.
type Collector struct {
	mu      sync.Mutex
	source  Source
	targets []Target
	log     *zap.Logger
}

// NewCollector returns a collector for targets. Repeated targets are
// collected once. A nil logger discards logs.
func NewCollector(source Source, targets []Target, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	seen := make(map[Target]struct{}, len(targets))
	unique := make([]Target, 0, len(targets))
	for _, t := range targets {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	return &Collector{source: source, targets: unique, log: log}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{upDesc, cpuDesc, delayDesc, delayCountDesc, ioDesc, blkioDesc, faultsDesc, switchesDesc} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, target := range c.targets {
		id := strconv.FormatUint(uint64(target.ID), 10)
		var (
			ts  taskstats.TaskStats
			err error
		)
		if target.Group {
			ts, err = c.source.TGIDStats(target.ID)
		} else {
			ts, err = c.source.PIDStats(target.ID)
		}
		if err != nil {
			c.log.Warn("taskstats query failed", zap.String("kind", target.kind()), zap.Uint32("id", target.ID), zap.Error(err))
			ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 0, target.kind(), id)
			continue
		}
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1, target.kind(), id)
		collectStats(ch, &ts, target.kind(), id)
	}
}

func collectStats(ch chan<- prometheus.Metric, ts *taskstats.TaskStats, kind, id string) {
	counter := func(desc *prometheus.Desc, v float64, extra string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, v, kind, id, extra)
	}

	counter(cpuDesc, ts.CPU.UTimeTotal.Seconds(), "user")
	counter(cpuDesc, ts.CPU.STimeTotal.Seconds(), "system")

	delays := []struct {
		class string
		stat  taskstats.DelayStat
	}{
		{"cpu", ts.Delays.CPU},
		{"blkio", ts.Delays.BlkIO},
		{"swapin", ts.Delays.SwapIn},
		{"freepages", ts.Delays.FreePages},
		{"thrashing", ts.Delays.Thrashing},
		{"compact", ts.Delays.Compact},
		{"wpcopy", ts.Delays.WPCopy},
		{"irq", ts.Delays.IRQ},
	}
	for _, d := range delays {
		counter(delayDesc, d.stat.DelayTotal.Seconds(), d.class)
		counter(delayCountDesc, float64(d.stat.Count), d.class)
	}

	counter(ioDesc, float64(ts.IO.ReadBytes), "read")
	counter(ioDesc, float64(ts.IO.WriteBytes), "write")
	counter(blkioDesc, float64(ts.BlkIO.ReadBytes), "read")
	counter(blkioDesc, float64(ts.BlkIO.WriteBytes), "write")
	counter(faultsDesc, float64(ts.Memory.MinorFaults), "minor")
	counter(faultsDesc, float64(ts.Memory.MajorFaults), "major")
	counter(switchesDesc, float64(ts.ContextSwitches.Voluntary), "voluntary")
	counter(switchesDesc, float64(ts.ContextSwitches.NonVoluntary), "involuntary")
}
