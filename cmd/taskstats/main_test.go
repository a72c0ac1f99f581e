package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/srodi/taskstats/pkg/config"
	"github.com/srodi/taskstats/pkg/exporter"
	"github.com/srodi/taskstats/pkg/format"
	"github.com/srodi/taskstats/pkg/procinfo"
	"github.com/srodi/taskstats/pkg/taskstats"
)

type fakeSource map[uint32]taskstats.TaskStats

func (f fakeSource) PIDStats(tid uint32) (taskstats.TaskStats, error) {
	ts, ok := f[tid]
	if !ok {
		return taskstats.TaskStats{}, taskstats.ErrNoStats
	}
	return ts, nil
}

func (f fakeSource) TGIDStats(tgid uint32) (taskstats.TaskStats, error) {
	return f.PIDStats(tgid)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "42", "4294967295"})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 42, 4294967295}, ids)

	_, err = parseIDs([]string{"1", "x"})
	assert.EqualError(t, err, "invalid PID: x")

	_, err = parseIDs([]string{"4294967296"})
	assert.Error(t, err)
}

func TestQueryAll(t *testing.T) {
	src := fakeSource{1: {TID: 1}, 2: {TID: 2}}
	stats, err := queryAll(src, []uint32{2, 1}, false)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, uint32(2), stats[0].TID)

	_, err = queryAll(src, []uint32{1, 3}, true)
	assert.ErrorIs(t, err, taskstats.ErrNoStats)
}

func TestQueryAllLabelsThreadGroups(t *testing.T) {
	src := fakeSource{300: {Version: 8}}
	stats, err := queryAll(src, []uint32{300}, true)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, uint32(300), stats[0].TID)

	var buf bytes.Buffer
	require.NoError(t, render(&buf, format.NewPrinter(nil), stats, &queryOptions{verbose: true}))
	assert.Contains(t, buf.String(), "TID: 300")
	assert.NotContains(t, buf.String(), "TID: 0")
}

func TestRenderModes(t *testing.T) {
	stats := []taskstats.TaskStats{{TID: 1234}}
	p := format.NewPrinter(nil)

	cases := []struct {
		name    string
		opts    queryOptions
		want    []string
		notWant []string
	}{
		{"summary", queryOptions{}, []string{"d:reclaim"}, []string{"=== TID: 1234 ===", "cpu avg"}},
		{"verbose", queryOptions{verbose: true}, []string{"=== TID: 1234 ==="}, []string{"d:reclaim"}},
		{"delay", queryOptions{delay: true}, []string{"cpu avg"}, []string{"d:reclaim"}},
		{"both", queryOptions{verbose: true, delay: true}, []string{"=== TID: 1234 ===", "cpu avg"}, []string{"d:reclaim"}},
		{"yaml", queryOptions{output: "yaml", verbose: true}, []string{"TID: 1234", "tid: 1234"}, []string{"==="}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render(&buf, p, stats, &tc.opts))
			for _, s := range tc.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tc.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}

	var buf bytes.Buffer
	assert.Error(t, render(&buf, p, stats, &queryOptions{output: "json"}))
}

func TestRootRejectsBadIDs(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"12", "abc"})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.EqualError(t, err, "invalid PID: abc")
}

func TestLayoutFields(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"layout", "--fields"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, len(taskstats.AllFields())+1, len(lines))
	assert.Contains(t, out.String(), "ac_uid")
	for _, line := range lines {
		if strings.HasPrefix(line, "hiwater_rss ") || strings.HasPrefix(line, "hiwater_vm ") {
			assert.Contains(t, strings.Fields(line), "KB", line)
		}
	}
}

func TestPrintLayoutReport(t *testing.T) {
	var out bytes.Buffer
	ok := taskstats.LayoutReport{
		KernelSize: 344,
		Mismatches: []taskstats.LayoutMismatch{{Field: "ac_btime64", TableOffset: 344, Missing: true}},
		Unknown:    []string{"cpu_delay_max"},
	}
	require.NoError(t, printLayoutReport(&out, ok))
	assert.Contains(t, out.String(), "ac_btime64: not present in kernel")
	assert.Contains(t, out.String(), "cpu_delay_max: kernel member not in table")
	assert.Contains(t, out.String(), "layout OK")

	out.Reset()
	bad := taskstats.LayoutReport{Mismatches: []taskstats.LayoutMismatch{{Field: "ac_uid", TableOffset: 120, TableSize: 4, KernelOffset: 116, KernelSize: 4}}}
	assert.Error(t, printLayoutReport(&out, bad))
	assert.NotContains(t, out.String(), "layout OK")
}

func TestWatchTargets(t *testing.T) {
	cfg := config.Default()
	cfg.PIDs = []uint32{5}
	cfg.TGIDs = []uint32{6}

	ids, err := watchTargets([]string{"9"}, cfg, &globalOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ids)

	ids, err = watchTargets(nil, cfg, &globalOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{5}, ids)

	ids, err = watchTargets(nil, cfg, &globalOptions{tgid: true})
	require.NoError(t, err)
	assert.Equal(t, []uint32{6}, ids)

	_, err = watchTargets(nil, config.Default(), &globalOptions{})
	assert.Error(t, err)
}

func TestSampleSkipsExitedTasks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := fakeSource{
		42: {TID: 42, Comm: "worker"},
		7:  {},
	}
	stats := sample(src, []uint32{42, 99, 7}, true, &procinfo.CommCache{}, zap.New(core))
	require.Len(t, stats, 2)
	assert.Equal(t, "worker", stats[0].Comm)
	assert.Equal(t, uint32(7), stats[1].TID)
	assert.NotEmpty(t, stats[1].Comm)
	assert.Equal(t, 1, logs.FilterMessage("snapshot failed").Len())
}

func TestRenderWatch(t *testing.T) {
	cfg := config.Default()
	cur := []taskstats.TaskStats{{
		TID:  42,
		Comm: "worker",
		CPU:  taskstats.CPU{UTimeTotal: time.Second},
	}}

	var buf bytes.Buffer
	renderWatch(&buf, nil, cur, cfg, time.Unix(0, 0))
	out := buf.String()
	assert.Contains(t, out, "[!] Focus: worker (tid 42)")
	assert.Contains(t, out, "20.00")
	assert.Contains(t, out, "No delays recorded in this window")

	cur[0].Comm = "kworker/0:1"
	buf.Reset()
	renderWatch(&buf, nil, cur, cfg, time.Unix(0, 0))
	assert.Contains(t, buf.String(), "No tasks matched current filters (topk=5, hide-kernel=true)")
}

func TestExportTargets(t *testing.T) {
	cfg := config.Default()
	cfg.PIDs = []uint32{1}
	cfg.TGIDs = []uint32{2}
	assert.Equal(t, []exporter.Target{{ID: 1}, {ID: 2, Group: true}}, exportTargets(cfg))
	assert.Empty(t, exportTargets(config.Default()))
}

func TestApplyExportFlags(t *testing.T) {
	cmd := newExportCmd(&globalOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--pid", "3", "--pid", "4", "--tgid", "5", "--listen", "127.0.0.1:0"}))

	cfg := config.Default()
	cfg.PIDs = []uint32{99}
	e := &exportOptions{}
	// Re-read the parsed values through the command's own flag set.
	e.pids, _ = cmd.Flags().GetUintSlice("pid")
	e.tgids, _ = cmd.Flags().GetUintSlice("tgid")
	e.listen, _ = cmd.Flags().GetString("listen")
	require.NoError(t, applyExportFlags(cmd, e, &cfg))
	assert.Equal(t, []uint32{3, 4}, cfg.PIDs)
	assert.Equal(t, []uint32{5}, cfg.TGIDs)
	assert.Equal(t, "127.0.0.1:0", cfg.Listen)
}
