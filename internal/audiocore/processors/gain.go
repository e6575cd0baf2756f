// Package processors provides ProcessingChain stages
package processors

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// Gain limits in decibels
const (
	MinGainDB = -60.0
	MaxGainDB = 24.0
)

// DefaultRampTime is how long a gain change takes to settle, in seconds.
const DefaultRampTime = 0.02

// GainStage applies a smoothed gain and clips the result to [-1, 1].
type GainStage struct {
	id       string
	target   atomic.Uint64 // float64 bits, linear gain
	current  float64       // audio thread only
	rampStep float64       // max change per sample, set in Prepare
	logger   logger.Logger
}

// NewGainStage creates a gain stage with an initial gain in decibels.
func NewGainStage(id string, gainDB float64) (*GainStage, error) {
	if err := validateGainDB(gainDB); err != nil {
		return nil, err
	}

	g := &GainStage{
		id:     id,
		logger: logger.Global().Module("audio").Module("gain").With(logger.String("stage_id", id)),
	}
	linear := DBToLinear(gainDB)
	g.target.Store(math.Float64bits(linear))
	g.current = linear
	g.setRamp(audiocore.DefaultSampleRate)
	return g, nil
}

func validateGainDB(gainDB float64) error {
	if math.IsNaN(gainDB) || gainDB < MinGainDB || gainDB > MaxGainDB {
		return errors.Newf("gain %.1f dB outside [%.0f, %.0f]", gainDB, MinGainDB, MaxGainDB).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("gain_db", gainDB).
			Build()
	}
	return nil
}

// DBToLinear converts decibels to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude factor to decibels.
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(linear)
}

// ID implements audiocore.Stage
func (g *GainStage) ID() string {
	return g.id
}

// Prepare implements audiocore.Stage
func (g *GainStage) Prepare(spec audiocore.ProcessSpec) {
	g.setRamp(spec.SampleRate)
	g.current = g.targetGain()
}

func (g *GainStage) setRamp(sampleRate float64) {
	if sampleRate <= 0 {
		sampleRate = audiocore.DefaultSampleRate
	}
	g.rampStep = 1 / (DefaultRampTime * sampleRate)
}

// Reset implements audiocore.Stage
func (g *GainStage) Reset() {
	g.current = g.targetGain()
}

// Process implements audiocore.Stage
func (g *GainStage) Process(buf *audiocore.AudioBuffer) {
	target := g.targetGain()
	start := g.current
	if start == 1 && target == 1 {
		return
	}

	frames := buf.NumFrames()
	for _, ch := range buf.Channels() {
		gain := start
		for i := range frames {
			gain = approach(gain, target, g.rampStep)
			ch[i] = clip(ch[i] * float32(gain))
		}
		g.current = gain
	}
}

func approach(v, target, step float64) float64 {
	switch {
	case v < target:
		return min(v+step, target)
	case v > target:
		return max(v-step, target)
	default:
		return v
	}
}

func clip(v float32) float32 {
	return max(-1, min(1, v))
}

func (g *GainStage) targetGain() float64 {
	return math.Float64frombits(g.target.Load())
}

// SetGainDB sets the target gain in decibels. The change is ramped in over
// DefaultRampTime.
func (g *GainStage) SetGainDB(gainDB float64) error {
	if err := validateGainDB(gainDB); err != nil {
		return err
	}
	g.target.Store(math.Float64bits(DBToLinear(gainDB)))
	g.logger.Info("gain updated", logger.Float64("gain_db", gainDB))
	return nil
}

// GainDB returns the target gain in decibels.
func (g *GainStage) GainDB() float64 {
	return LinearToDB(g.targetGain())
}
