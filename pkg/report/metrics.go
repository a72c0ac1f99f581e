package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/procfs"

	"github.com/srodi/taskstats/pkg/taskstats"
)

// totalMemoryBytes allows tests to stub the /proc/meminfo lookup.
var totalMemoryBytes = memTotalBytes

// memTotalBytes returns MemTotal from /proc/meminfo.
// TODO: consider the cgroup memory limit when running inside a container.
func memTotalBytes() (uint64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if mi.MemTotal == nil {
		return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
	}
	return *mi.MemTotal * 1024, nil
}

// Diagnosis labels, most severe first.
const (
	DiagOOMRisk      = "OOM risk – memory growth"
	DiagMemThrashing = "Mem-thrashing"
	DiagCPUStarved   = "CPU-starved"
	DiagIOBound      = "IO-bound"
	DiagCPUBound     = "CPU-bound"
	DiagOK           = "OK"
)

// TaskMetrics condenses two taskstats samples of one task into rates over the
// window between them.
type TaskMetrics struct {
	TID    uint32
	Comm   string
	Window time.Duration

	CPUPercent   float64
	UserMsPerSec float64
	SysMsPerSec  float64

	MinorFaultsPerSec float64
	MajorFaultsPerSec float64
	HiwaterRSSMB      float64
	RSSRatio          float64

	ReadBytesPerSec     float64
	WriteBytesPerSec    float64
	BlkReadBytesPerSec  float64
	BlkWriteBytesPerSec float64

	VoluntaryCSPerSec   float64
	InvoluntaryCSPerSec float64

	// Delay percentages are the share of the window spent waiting.
	CPUDelayPercent    float64
	BlkIODelayPercent  float64
	SwapInDelayPercent float64
	MemDelayPercent    float64
	AvgCPUDelay        time.Duration
	AvgBlkIODelay      time.Duration

	Diagnosis string
}

// TotalDelayPercent sums every delay share.
func (m TaskMetrics) TotalDelayPercent() float64 {
	return m.CPUDelayPercent + m.BlkIODelayPercent + m.SwapInDelayPercent + m.MemDelayPercent
}

// FilterConfig controls which tasks appear in CLI tables.
type FilterConfig struct {
	HideKernel *bool // nil defaults to true so kernel threads stay hidden unless explicitly shown
	CommFilter string
}

func (cfg FilterConfig) hideKernelEnabled() bool {
	if cfg.HideKernel == nil {
		return true
	}
	return *cfg.HideKernel
}

// BuildTaskMetrics pairs each current sample with the previous sample of the
// same task and derives per-second rates. A task without a previous sample is
// measured over its whole lifetime (ac_etime) instead of the interval.
func BuildTaskMetrics(prev, cur []taskstats.TaskStats, interval time.Duration) ([]TaskMetrics, map[uint32]TaskMetrics) {
	totalMem, err := totalMemoryBytes()
	if err != nil || totalMem == 0 {
		totalMem = 1
	}

	before := make(map[uint32]taskstats.TaskStats, len(prev))
	for _, ts := range prev {
		before[ts.TID] = ts
	}

	result := make([]TaskMetrics, 0, len(cur))
	index := make(map[uint32]TaskMetrics, len(cur))
	for i := range cur {
		now := cur[i]
		window := interval
		base, ok := before[now.TID]
		if !ok {
			if etime, found := now.Raw().Value("ac_etime"); found && etime > 0 {
				window = time.Duration(etime) * time.Microsecond
			}
		}
		if window <= 0 {
			window = time.Second
		}

		row := buildRow(&base, &now, window)
		if hiwater, found := now.Raw().Value("hiwater_rss"); found {
			row.HiwaterRSSMB = float64(hiwater) / 1024
			row.RSSRatio = float64(hiwater*1024) / float64(totalMem)
		}
		row.Diagnosis = classifyTask(&row)
		result = append(result, row)
		index[row.TID] = row
	}
	return result, index
}

func buildRow(base, now *taskstats.TaskStats, window time.Duration) TaskMetrics {
	secs := window.Seconds()
	rate := func(a, b uint64) float64 { return float64(delta(a, b)) / secs }
	share := func(a, b time.Duration) float64 {
		return 100 * float64(delta(uint64(a), uint64(b))) / float64(window)
	}

	user := delta(uint64(base.CPU.UTimeTotal), uint64(now.CPU.UTimeTotal))
	sys := delta(uint64(base.CPU.STimeTotal), uint64(now.CPU.STimeTotal))

	memDelay := share(base.Delays.FreePages.DelayTotal, now.Delays.FreePages.DelayTotal) +
		share(base.Delays.Thrashing.DelayTotal, now.Delays.Thrashing.DelayTotal) +
		share(base.Delays.Compact.DelayTotal, now.Delays.Compact.DelayTotal)

	return TaskMetrics{
		TID:    now.TID,
		Comm:   now.Comm,
		Window: window,

		CPUPercent:   100 * float64(user+sys) / float64(window),
		UserMsPerSec: float64(user) / 1e6 / secs,
		SysMsPerSec:  float64(sys) / 1e6 / secs,

		MinorFaultsPerSec: rate(base.Memory.MinorFaults, now.Memory.MinorFaults),
		MajorFaultsPerSec: rate(base.Memory.MajorFaults, now.Memory.MajorFaults),

		ReadBytesPerSec:     rate(base.IO.ReadBytes, now.IO.ReadBytes),
		WriteBytesPerSec:    rate(base.IO.WriteBytes, now.IO.WriteBytes),
		BlkReadBytesPerSec:  rate(base.BlkIO.ReadBytes, now.BlkIO.ReadBytes),
		BlkWriteBytesPerSec: rate(base.BlkIO.WriteBytes, now.BlkIO.WriteBytes),

		VoluntaryCSPerSec:   rate(base.ContextSwitches.Voluntary, now.ContextSwitches.Voluntary),
		InvoluntaryCSPerSec: rate(base.ContextSwitches.NonVoluntary, now.ContextSwitches.NonVoluntary),

		CPUDelayPercent:    share(base.Delays.CPU.DelayTotal, now.Delays.CPU.DelayTotal),
		BlkIODelayPercent:  share(base.Delays.BlkIO.DelayTotal, now.Delays.BlkIO.DelayTotal),
		SwapInDelayPercent: share(base.Delays.SwapIn.DelayTotal, now.Delays.SwapIn.DelayTotal),
		MemDelayPercent:    memDelay,
		AvgCPUDelay:        windowAverage(base.Delays.CPU, now.Delays.CPU),
		AvgBlkIODelay:      windowAverage(base.Delays.BlkIO, now.Delays.BlkIO),
	}
}

// delta treats a counter that went backwards as a reused id and restarts
// from zero.
func delta(before, after uint64) uint64 {
	if after < before {
		return after
	}
	return after - before
}

func windowAverage(before, after taskstats.DelayStat) time.Duration {
	return taskstats.DelayStat{
		Count:      delta(before.Count, after.Count),
		DelayTotal: time.Duration(delta(uint64(before.DelayTotal), uint64(after.DelayTotal))),
	}.Average()
}

// FilterMetrics applies HideKernel/comm filters before ranking tables.
func FilterMetrics(rows []TaskMetrics, cfg FilterConfig) []TaskMetrics {
	filtered := make([]TaskMetrics, 0, len(rows))
	for _, row := range rows {
		if passesFilters(row, cfg) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// CPUUsageRows returns the busiest rows up to topK.
func CPUUsageRows(rows []TaskMetrics, topK int) []TaskMetrics {
	candidates := make([]TaskMetrics, 0, len(rows))
	for _, row := range rows {
		if row.CPUPercent == 0 {
			continue
		}
		candidates = append(candidates, row)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CPUPercent > candidates[j].CPUPercent })
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// DelayRows orders tasks by the share of the window they spent waiting.
func DelayRows(rows []TaskMetrics, topK int) []TaskMetrics {
	candidates := make([]TaskMetrics, 0, len(rows))
	for _, row := range rows {
		if row.TotalDelayPercent() == 0 {
			continue
		}
		candidates = append(candidates, row)
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := candidates[i].TotalDelayPercent(), candidates[j].TotalDelayPercent()
		if di == dj {
			return candidates[i].CPUDelayPercent > candidates[j].CPUDelayPercent
		}
		return di > dj
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// SelectFocusCandidate picks the most interesting task to summarize for the operator.
func SelectFocusCandidate(rows []TaskMetrics) *TaskMetrics {
	if len(rows) == 0 {
		return nil
	}
	var best *TaskMetrics
	bestScore := -1.0
	for _, row := range rows {
		severity := diagnosisSeverity(row.Diagnosis)
		if severity == 0 && row.CPUPercent < 1 && row.TotalDelayPercent() < 1 {
			continue
		}
		score := float64(severity)*1000 + row.CPUPercent + row.TotalDelayPercent()
		if best == nil || score > bestScore {
			copy := row
			best = &copy
			bestScore = score
		}
	}
	if best != nil {
		return best
	}
	maxIdx := 0
	for i := 1; i < len(rows); i++ {
		if rows[i].CPUPercent > rows[maxIdx].CPUPercent {
			maxIdx = i
		}
	}
	copy := rows[maxIdx]
	return &copy
}

// FocusSummary returns a short explanation string for the status line.
func FocusSummary(row TaskMetrics) string {
	switch row.Diagnosis {
	case DiagMemThrashing:
		return fmt.Sprintf("%.1f%% waiting on memory, %.0f major faults/sec",
			row.MemDelayPercent+row.SwapInDelayPercent, row.MajorFaultsPerSec)
	case DiagCPUStarved:
		return fmt.Sprintf("runnable but waiting %.1f%% of the time, avg delay %s",
			row.CPUDelayPercent, row.AvgCPUDelay)
	case DiagIOBound:
		return fmt.Sprintf("%.1f%% blocked on block I/O, avg delay %s",
			row.BlkIODelayPercent, row.AvgBlkIODelay)
	case DiagCPUBound:
		return fmt.Sprintf("%.1f%% CPU, %.1f%% CPU delay",
			row.CPUPercent, row.CPUDelayPercent)
	case DiagOOMRisk:
		return fmt.Sprintf("OOM risk – %.1f GB peak RSS, %.0f faults/sec",
			row.HiwaterRSSMB/1024.0, row.MinorFaultsPerSec+row.MajorFaultsPerSec)
	default:
		return fmt.Sprintf("%.1f%% CPU, %.1f%% delayed",
			row.CPUPercent, row.TotalDelayPercent())
	}
}

func classifyTask(row *TaskMetrics) string {
	bigProcess := row.HiwaterRSSMB > 1000 // > 1GB
	highRatio := row.RSSRatio > 0.3       // > 30% of RAM
	faulting := row.MinorFaultsPerSec+row.MajorFaultsPerSec > 200
	memWait := row.MemDelayPercent + row.SwapInDelayPercent

	if (bigProcess || highRatio) && (faulting || memWait > 5) {
		return DiagOOMRisk
	}
	if memWait > 10 || row.MajorFaultsPerSec > 100 {
		return DiagMemThrashing
	}
	if row.CPUDelayPercent > 20 && row.CPUDelayPercent > row.CPUPercent/2 {
		return DiagCPUStarved
	}
	if row.BlkIODelayPercent > 20 {
		return DiagIOBound
	}
	if row.CPUPercent > 50 && row.CPUDelayPercent < 5 {
		return DiagCPUBound
	}
	return DiagOK
}

func passesFilters(row TaskMetrics, cfg FilterConfig) bool {
	if cfg.hideKernelEnabled() && isKernelThread(row) {
		return false
	}
	if cfg.CommFilter != "" {
		if !strings.Contains(strings.ToLower(row.Comm), strings.ToLower(cfg.CommFilter)) {
			return false
		}
	}
	return true
}

func isKernelThread(row TaskMetrics) bool {
	if row.TID == 0 {
		return true
	}
	name := strings.ToLower(row.Comm)
	switch {
	case strings.HasPrefix(name, "kworker"), strings.HasPrefix(name, "ksoftirqd"), strings.HasPrefix(name, "kthreadd"),
		strings.HasPrefix(name, "migration"), strings.HasPrefix(name, "watchdog"), strings.HasPrefix(name, "rcu"),
		strings.HasPrefix(name, "irq/"):
		return true
	}
	return false
}

func diagnosisSeverity(label string) int {
	switch label {
	case DiagOOMRisk:
		return 5
	case DiagMemThrashing:
		return 4
	case DiagCPUStarved:
		return 3
	case DiagIOBound:
		return 2
	case DiagCPUBound:
		return 1
	default:
		return 0
	}
}
