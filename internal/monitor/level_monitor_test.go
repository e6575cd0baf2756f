package monitor

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves meter values set by the test.
type fakeSource struct {
	in, out audiocore.MeterBank
	chain   *audiocore.ProcessingChain
}

func newFakeSource() *fakeSource {
	return &fakeSource{chain: audiocore.NewProcessingChain(nil)}
}

func (f *fakeSource) InputLevel(ch int) float32 { return f.in.Level(ch) }

func (f *fakeSource) OutputLevel(ch int) float32 { return f.out.Level(ch) }

func (f *fakeSource) IsRunning() bool { return true }

func (f *fakeSource) ProcessingChain() *audiocore.ProcessingChain { return f.chain }

// lockedBuffer is a bytes.Buffer safe for the monitor goroutine and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPollReadsMeters(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.in[0].Store(0.5)
	src.in[1].Store(0.25)
	src.out[0].Store(0.75)
	src.chain.SetBypassed(true)

	m := NewLevelMonitor(src, Config{})
	snap := m.Poll()

	assert.True(t, snap.Running)
	assert.InDelta(t, 0.5, snap.Input[0], 1e-6)
	assert.InDelta(t, 0.25, snap.Input[1], 1e-6)
	assert.InDelta(t, 0.75, snap.Output[0], 1e-6)
	assert.Zero(t, snap.Output[1])
	assert.Zero(t, snap.Stages)
	assert.True(t, snap.Bypassed)
	assert.False(t, snap.Clipped)
	assert.Zero(t, snap.CPUPercent, "cpu sampling is off by default")
	assert.Equal(t, snap, m.Latest())
}

func TestClipCountsRisingEdges(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	m := NewLevelMonitor(src, Config{})

	src.out[1].Store(1.0)
	assert.True(t, m.Poll().Clipped)
	assert.True(t, m.Poll().Clipped, "held meter still reads full scale")
	assert.Equal(t, uint64(1), m.Clips(), "held meter is counted once")

	src.out[1].Store(0.5)
	assert.False(t, m.Poll().Clipped)

	src.out[1].Store(1.5)
	src.in[0].Store(1.0)
	assert.True(t, m.Poll().Clipped)
	assert.Equal(t, uint64(3), m.Clips())
}

func TestPollUpdatesMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	em, err := metrics.NewEngineMetrics(registry)
	require.NoError(t, err)

	src := newFakeSource()
	src.in[0].Store(1.0)

	m := NewLevelMonitor(src, Config{Metrics: em})
	m.Poll()
	m.Poll()

	expected := `
# HELP eqroute_level_clips_total Total number of level samples at full scale
# TYPE eqroute_level_clips_total counter
eqroute_level_clips_total{channel="0",direction="input"} 1
# HELP eqroute_chain_stages Number of stages in the processing chain
# TYPE eqroute_chain_stages gauge
eqroute_chain_stages 0
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"eqroute_level_clips_total", "eqroute_chain_stages"))
}

func TestMonitorPublishesSnapshots(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.in[0].Store(0.5)

	console := &lockedBuffer{}
	m := NewLevelMonitor(src, Config{Interval: 5 * time.Millisecond, Console: console})
	m.Start()
	m.Start()

	select {
	case snap := <-m.Snapshots():
		assert.InDelta(t, 0.5, snap.Input[0], 1e-6)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no snapshot published")
	}

	m.Stop()
	for range m.Snapshots() {
	}
	assert.Contains(t, console.String(), "[running] IN |")
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()

	m := NewLevelMonitor(newFakeSource(), Config{})
	assert.NotPanics(t, m.Stop)
	assert.NotPanics(t, m.Stop)
}

func TestMonitorIsSingleUse(t *testing.T) {
	t.Parallel()

	m := NewLevelMonitor(newFakeSource(), Config{Interval: time.Millisecond})
	m.Start()
	m.Stop()

	for range m.Snapshots() {
		// drain until closed
	}

	m.Start()
	assert.NotPanics(t, m.Stop)
	assert.NotPanics(t, m.Stop)
}

func TestPollSamplesCPU(t *testing.T) {
	t.Parallel()

	m := NewLevelMonitor(newFakeSource(), Config{SampleCPU: true})
	snap := m.Poll()
	assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)
	assert.LessOrEqual(t, snap.CPUPercent, 100.0)
}

func TestFormatMeterLine(t *testing.T) {
	t.Parallel()

	full := "|" + strings.Repeat("#", meterWidth) + "|"
	empty := "|" + strings.Repeat("-", meterWidth) + "|"

	tests := []struct {
		name     string
		snap     Snapshot
		contains []string
		excludes []string
	}{
		{
			name:     "stopped silence",
			snap:     Snapshot{},
			contains: []string{"[stopped]", empty, "-60.0 dB"},
			excludes: []string{"CLIP", "bypass", "cpu"},
		},
		{
			name: "clipping bypassed",
			snap: Snapshot{
				Running:    true,
				Output:     [audiocore.MeteredChannels]float32{1, 0},
				Bypassed:   true,
				Clipped:    true,
				CPUPercent: 12,
			},
			contains: []string{"[running]", full, "0.0 dB", "bypass", "CLIP", "cpu 12%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			line := FormatMeterLine(tt.snap)
			for _, s := range tt.contains {
				assert.Contains(t, line, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, line, s)
			}
		})
	}
}

func TestLevelToDB(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, LevelToDB(1), 1e-9)
	assert.InDelta(t, -6.02, LevelToDB(0.5), 0.01)
	assert.InDelta(t, silenceFloorDB, LevelToDB(0), 0)
	assert.InDelta(t, silenceFloorDB, LevelToDB(1e-9), 0)
}
