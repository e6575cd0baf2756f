// Package monitor polls the routing engine's level meters for the control surface
package monitor

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/logger"
	"github.com/tphakala/eqroute/internal/observability/metrics"
)

// GetLogger returns the module logger for the level monitor
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// Default configuration values
const (
	DefaultInterval = 100 * time.Millisecond
	clipLevel       = 1.0
	meterWidth      = 24
	silenceFloorDB  = -60.0
)

// LevelSource is the read side of the routing engine used by the monitor.
type LevelSource interface {
	InputLevel(ch int) float32
	OutputLevel(ch int) float32
	IsRunning() bool
	ProcessingChain() *audiocore.ProcessingChain
}

// Snapshot is one poll of the engine's meters.
type Snapshot struct {
	Time       time.Time
	Running    bool
	Input      [audiocore.MeteredChannels]float32
	Output     [audiocore.MeteredChannels]float32
	Stages     int
	Bypassed   bool
	CPUPercent float64 // host CPU usage, 0 when sampling is disabled
	Clipped    bool    // a channel reached full scale in this poll
}

// Config controls a LevelMonitor.
type Config struct {
	Interval  time.Duration          // polling interval, DefaultInterval when zero
	Console   io.Writer              // receives a meter line per poll, nil to disable
	Metrics   *metrics.EngineMetrics // level gauges and clip counters, optional
	SampleCPU bool                   // sample host CPU usage with each poll
}

// LevelMonitor reads the engine meters at a fixed rate and publishes snapshots.
// Consumers that fall behind miss snapshots; the poller never blocks on them.
type LevelMonitor struct {
	source    LevelSource
	interval  time.Duration
	console   io.Writer
	metrics   *metrics.EngineMetrics
	sampleCPU bool

	snapshots chan Snapshot

	mu      sync.RWMutex
	latest  Snapshot
	clipped [2][audiocore.MeteredChannels]bool
	clips   uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
	log     logger.Logger
}

// NewLevelMonitor creates a monitor for source. It does not poll until Start.
func NewLevelMonitor(source LevelSource, cfg Config) *LevelMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &LevelMonitor{
		source:    source,
		interval:  interval,
		console:   cfg.Console,
		metrics:   cfg.Metrics,
		sampleCPU: cfg.SampleCPU,
		snapshots: make(chan Snapshot, 1),
		ctx:       ctx,
		cancel:    cancel,
		log:       GetLogger(),
	}
}

// Start begins polling. A monitor polls at most once: Start has no effect
// while running or after Stop.
func (m *LevelMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true

	m.wg.Add(1)
	go m.monitorLoop()
}

// Stop stops polling and waits for the loop to exit. The snapshot channel is
// closed afterwards if polling had started. Stop is idempotent.
func (m *LevelMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	if started {
		close(m.snapshots)
	}
}

// Snapshots returns the channel snapshots are published on.
func (m *LevelMonitor) Snapshots() <-chan Snapshot {
	return m.snapshots
}

// Latest returns the most recent snapshot.
func (m *LevelMonitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Clips returns the number of full-scale events seen so far.
func (m *LevelMonitor) Clips() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clips
}

func (m *LevelMonitor) monitorLoop() {
	defer m.wg.Done()

	m.log.Debug("Level monitor loop started", logger.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.publish(m.Poll())
		case <-m.ctx.Done():
			m.log.Debug("Level monitor loop stopping")
			return
		}
	}
}

// Poll reads the meters once, updates clip state and metrics, and returns the
// snapshot without publishing it.
func (m *LevelMonitor) Poll() Snapshot {
	snap := Snapshot{
		Time:    time.Now(),
		Running: m.source.IsRunning(),
	}
	for ch := range audiocore.MeteredChannels {
		snap.Input[ch] = m.source.InputLevel(ch)
		snap.Output[ch] = m.source.OutputLevel(ch)
	}
	if chain := m.source.ProcessingChain(); chain != nil {
		snap.Stages = chain.Len()
		snap.Bypassed = chain.IsBypassed()
	}
	if m.sampleCPU {
		snap.CPUPercent = m.sampleSystemCPU()
	}

	m.mu.Lock()
	snap.Clipped = m.trackClipsLocked(&snap)
	m.latest = snap
	m.mu.Unlock()

	m.record(&snap)
	return snap
}

// trackClipsLocked counts rising edges into full scale so a held meter is
// counted once.
func (m *LevelMonitor) trackClipsLocked(snap *Snapshot) bool {
	clipped := false
	levels := [2]*[audiocore.MeteredChannels]float32{&snap.Input, &snap.Output}
	for dir, lv := range levels {
		for ch, v := range lv {
			full := v >= clipLevel
			if full {
				clipped = true
				if !m.clipped[dir][ch] {
					m.clips++
					if m.metrics != nil {
						m.metrics.RecordClip(directionName(dir), ch)
					}
				}
			}
			m.clipped[dir][ch] = full
		}
	}
	return clipped
}

func (m *LevelMonitor) record(snap *Snapshot) {
	if m.metrics == nil {
		return
	}
	for ch := range audiocore.MeteredChannels {
		m.metrics.UpdateLevel(metrics.DirectionInput, ch, float64(snap.Input[ch]))
		m.metrics.UpdateLevel(metrics.DirectionOutput, ch, float64(snap.Output[ch]))
	}
	m.metrics.UpdateChain(snap.Stages, snap.Bypassed)
	if m.sampleCPU {
		m.metrics.SetSystemCPU(snap.CPUPercent)
	}
}

func (m *LevelMonitor) publish(snap Snapshot) {
	select {
	case m.snapshots <- snap:
	default:
	}

	if m.console != nil {
		if _, err := fmt.Fprintf(m.console, "\r%s", FormatMeterLine(snap)); err != nil {
			m.log.Debug("Meter line write failed", logger.Error(err))
		}
	}
}

// sampleSystemCPU returns the host CPU usage since the previous call.
func (m *LevelMonitor) sampleSystemCPU() float64 {
	// Zero interval reads the delta since the last call without blocking.
	percent, err := cpu.Percent(0, false)
	if err != nil {
		m.log.Debug("Failed to get CPU usage", logger.Error(err))
		return 0
	}
	if len(percent) == 0 {
		return 0
	}
	return percent[0]
}

func directionName(dir int) string {
	if dir == 0 {
		return metrics.DirectionInput
	}
	return metrics.DirectionOutput
}

// FormatMeterLine renders a snapshot as a one-line console meter.
func FormatMeterLine(snap Snapshot) string {
	var b strings.Builder
	state := "stopped"
	if snap.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "[%s] IN %s %s  OUT %s %s",
		state,
		meterBar(snap.Input[0]), meterBar(snap.Input[1]),
		meterBar(snap.Output[0]), meterBar(snap.Output[1]))
	if snap.Bypassed {
		b.WriteString("  bypass")
	}
	if snap.Clipped {
		b.WriteString("  CLIP")
	}
	if snap.CPUPercent > 0 {
		fmt.Fprintf(&b, "  cpu %.0f%%", snap.CPUPercent)
	}
	return b.String()
}

// meterBar draws a level on a dB scale from silenceFloorDB to 0 dBFS.
func meterBar(level float32) string {
	db := LevelToDB(level)
	filled := int(math.Round((db - silenceFloorDB) / -silenceFloorDB * meterWidth))
	filled = max(0, min(filled, meterWidth))
	return fmt.Sprintf("|%s%s| %6.1f dB",
		strings.Repeat("#", filled), strings.Repeat("-", meterWidth-filled), db)
}

// LevelToDB converts a linear peak level to dBFS, floored at -60 dB.
func LevelToDB(level float32) float64 {
	if level <= 0 {
		return silenceFloorDB
	}
	return max(silenceFloorDB, 20*math.Log10(float64(level)))
}
