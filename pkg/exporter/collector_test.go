package exporter

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/srodi/taskstats/pkg/taskstats"
)

type fakeSource struct {
	stats map[uint32]taskstats.TaskStats
	calls []string
}

func (f *fakeSource) lookup(id uint32) (taskstats.TaskStats, error) {
	ts, ok := f.stats[id]
	if !ok {
		return taskstats.TaskStats{}, taskstats.ErrNoStats
	}
	return ts, nil
}

func (f *fakeSource) PIDStats(tid uint32) (taskstats.TaskStats, error) {
	f.calls = append(f.calls, "pid")
	return f.lookup(tid)
}

func (f *fakeSource) TGIDStats(tgid uint32) (taskstats.TaskStats, error) {
	f.calls = append(f.calls, "tgid")
	return f.lookup(tgid)
}

func newSource() *fakeSource {
	return &fakeSource{stats: map[uint32]taskstats.TaskStats{
		42: {
			TID: 42,
			CPU: taskstats.CPU{UTimeTotal: 1500 * time.Millisecond, STimeTotal: 250 * time.Millisecond},
			IO:  taskstats.IO{ReadBytes: 4096, WriteBytes: 512},
			ContextSwitches: taskstats.ContextSwitches{
				Voluntary:    10,
				NonVoluntary: 3,
			},
			Delays: taskstats.Delays{
				CPU: taskstats.DelayStat{Count: 4, DelayTotal: 2 * time.Second},
			},
		},
	}}
}

func TestCollectorMetrics(t *testing.T) {
	src := newSource()
	c := NewCollector(src, []Target{{ID: 42}, {ID: 7, Group: true}}, nil)

	// 27 series for the answered pid plus one up gauge for the failed tgid.
	assert.Equal(t, 28, testutil.CollectAndCount(c))
	assert.Equal(t, []string{"pid", "tgid"}, src.calls)

	expected := `
# HELP taskstats_up Whether the last taskstats query for the target succeeded.
# TYPE taskstats_up gauge
taskstats_up{id="42",kind="pid"} 1
taskstats_up{id="7",kind="tgid"} 0
# HELP taskstats_cpu_seconds_total CPU time consumed, by mode.
# TYPE taskstats_cpu_seconds_total counter
taskstats_cpu_seconds_total{id="42",kind="pid",mode="system"} 0.25
taskstats_cpu_seconds_total{id="42",kind="pid",mode="user"} 1.5
# HELP taskstats_context_switches_total Context switches, by type.
# TYPE taskstats_context_switches_total counter
taskstats_context_switches_total{id="42",kind="pid",type="involuntary"} 3
taskstats_context_switches_total{id="42",kind="pid",type="voluntary"} 10
# HELP taskstats_io_bytes_total Bytes moved through read and write syscalls.
# TYPE taskstats_io_bytes_total counter
taskstats_io_bytes_total{direction="read",id="42",kind="pid"} 4096
taskstats_io_bytes_total{direction="write",id="42",kind="pid"} 512
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"taskstats_up", "taskstats_cpu_seconds_total", "taskstats_context_switches_total", "taskstats_io_bytes_total")
	require.NoError(t, err)
}

func TestCollectorDelayClasses(t *testing.T) {
	c := NewCollector(newSource(), []Target{{ID: 42}}, nil)
	assert.Equal(t, 8, testutil.CollectAndCount(c, "taskstats_delay_seconds_total"))
	assert.Equal(t, 8, testutil.CollectAndCount(c, "taskstats_delay_events_total"))

	expected := `
# HELP taskstats_delay_events_total Number of delay events, by delay class.
# TYPE taskstats_delay_events_total counter
taskstats_delay_events_total{class="blkio",id="42",kind="pid"} 0
taskstats_delay_events_total{class="compact",id="42",kind="pid"} 0
taskstats_delay_events_total{class="cpu",id="42",kind="pid"} 4
taskstats_delay_events_total{class="freepages",id="42",kind="pid"} 0
taskstats_delay_events_total{class="irq",id="42",kind="pid"} 0
taskstats_delay_events_total{class="swapin",id="42",kind="pid"} 0
taskstats_delay_events_total{class="thrashing",id="42",kind="pid"} 0
taskstats_delay_events_total{class="wpcopy",id="42",kind="pid"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "taskstats_delay_events_total"))
}

func TestCollectorLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := NewCollector(newSource(), []Target{{ID: 9}}, zap.New(core))
	testutil.CollectAndCount(c)

	entries := logs.FilterMessage("taskstats query failed").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "pid", ctx["kind"])
	assert.Equal(t, uint32(9), ctx["id"])
	assert.Contains(t, ctx["error"], taskstats.ErrNoStats.Error())
}

func TestCollectorSkipsRepeatedTargets(t *testing.T) {
	src := newSource()
	c := NewCollector(src, []Target{{ID: 42}, {ID: 42}, {ID: 42, Group: true}}, nil)

	h, err := NewHandler(c)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), `taskstats_up{id="42",kind="pid"} 1`))
	assert.Contains(t, rec.Body.String(), `taskstats_up{id="42",kind="tgid"} 1`)
	assert.Equal(t, []string{"pid", "tgid"}, src.calls)
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(newSource(), []Target{{ID: 42}}, nil))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestHandler(t *testing.T) {
	h, err := NewHandler(NewCollector(newSource(), []Target{{ID: 42}}, nil))
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `taskstats_up{id="42",kind="pid"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
