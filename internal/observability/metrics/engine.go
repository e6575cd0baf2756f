package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for the audio engine
type EngineMetrics struct {
	// control plane
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	// stream state
	running      prometheus.Gauge
	sampleRate   prometheus.Gauge
	bufferSize   prometheus.Gauge
	channels     *prometheus.GaugeVec
	streamStarts prometheus.Counter

	// levels, updated by the level monitor
	levels      *prometheus.GaugeVec
	clipsTotal  *prometheus.CounterVec
	chainLength prometheus.Gauge
	chainBypass prometheus.Gauge
	systemCPU   prometheus.Gauge

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

var _ Recorder = (*EngineMetrics)(nil)

// NewEngineMetrics creates and registers new engine metrics
func NewEngineMetrics(registry prometheus.Registerer) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *EngineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "engine_operations_total",
			Help:      "Total number of engine control operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "engine_operation_duration_seconds",
			Help:      "Time taken by engine control operations",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "engine_errors_total",
			Help:      "Total number of engine errors by category",
		},
		[]string{"operation", "category"},
	)

	m.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "engine_running",
		Help:      "Whether audio processing is running (1) or stopped (0)",
	})

	m.sampleRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "stream_sample_rate_hertz",
		Help:      "Sample rate of the current or last stream",
	})

	m.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "stream_buffer_size_frames",
		Help:      "Block size of the current or last stream",
	})

	m.channels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stream_channels",
			Help:      "Active channels of the current or last stream",
		},
		[]string{"direction"},
	)

	m.streamStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "stream_starts_total",
		Help:      "Total number of device streams started",
	})

	m.levels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "level_peak",
			Help:      "Peak level of the most recent block, 0 to 1",
		},
		[]string{"direction", "channel"},
	)

	m.clipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "level_clips_total",
			Help:      "Total number of level samples at full scale",
		},
		[]string{"direction", "channel"},
	)

	m.chainLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "chain_stages",
		Help:      "Number of stages in the processing chain",
	})

	m.chainBypass = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "chain_bypassed",
		Help:      "Whether the processing chain is bypassed (1) or active (0)",
	})

	m.systemCPU = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "system_cpu_percent",
		Help:      "Host CPU usage sampled alongside the level meters",
	})

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.running,
		m.sampleRate,
		m.bufferSize,
		m.channels,
		m.streamStarts,
		m.levels,
		m.clipsTotal,
		m.chainLength,
		m.chainBypass,
		m.systemCPU,
	}
}

// Describe implements the Collector interface
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder
func (m *EngineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder
func (m *EngineMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder
func (m *EngineMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetRunning records whether processing is running
func (m *EngineMetrics) SetRunning(running bool) {
	m.running.Set(boolToFloat(running))
}

// RecordStreamStart records the parameters of a starting stream
func (m *EngineMetrics) RecordStreamStart(sampleRate float64, bufferSize, inputChannels, outputChannels int) {
	m.streamStarts.Inc()
	m.sampleRate.Set(sampleRate)
	m.bufferSize.Set(float64(bufferSize))
	m.channels.WithLabelValues(DirectionInput).Set(float64(inputChannels))
	m.channels.WithLabelValues(DirectionOutput).Set(float64(outputChannels))
}

// UpdateLevel records the peak level of one channel
func (m *EngineMetrics) UpdateLevel(direction string, channel int, level float64) {
	m.levels.WithLabelValues(direction, strconv.Itoa(channel)).Set(level)
}

// RecordClip records a full-scale level sample on one channel
func (m *EngineMetrics) RecordClip(direction string, channel int) {
	m.clipsTotal.WithLabelValues(direction, strconv.Itoa(channel)).Inc()
}

// UpdateChain records the processing chain shape
func (m *EngineMetrics) UpdateChain(stages int, bypassed bool) {
	m.chainLength.Set(float64(stages))
	m.chainBypass.Set(boolToFloat(bypassed))
}

// SetSystemCPU records the host CPU usage in percent
func (m *EngineMetrics) SetSystemCPU(percent float64) {
	m.systemCPU.Set(percent)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
