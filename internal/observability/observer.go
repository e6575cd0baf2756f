package observability

import (
	"time"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/observability/metrics"
)

// EngineObserver records engine events into EngineMetrics.
type EngineObserver struct {
	metrics *metrics.EngineMetrics
}

var _ audiocore.Observer = (*EngineObserver)(nil)

// NewEngineObserver returns an observer feeding m.
func NewEngineObserver(m *metrics.EngineMetrics) *EngineObserver {
	return &EngineObserver{metrics: m}
}

// OperationCompleted implements audiocore.Observer
func (o *EngineObserver) OperationCompleted(op string, took time.Duration, err error) {
	o.metrics.RecordDuration(op, took.Seconds())
	if err == nil {
		o.metrics.RecordOperation(op, metrics.StatusSuccess)
		return
	}
	o.metrics.RecordOperation(op, metrics.StatusError)
	o.metrics.RecordError(op, errorCategory(err))
}

// StreamStarted implements audiocore.Observer
func (o *EngineObserver) StreamStarted(params audiocore.DeviceParams) {
	o.metrics.RecordStreamStart(params.SampleRate, params.BufferSize, params.InputChannels, params.OutputChannels)
}

// RunningChanged implements audiocore.Observer
func (o *EngineObserver) RunningChanged(running bool) {
	o.metrics.SetRunning(running)
}

func errorCategory(err error) string {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return string(enhanced.Category)
	}
	return string(errors.CategoryGeneric)
}
