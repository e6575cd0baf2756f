package audiocore

import (
	"math"
	"sync/atomic"
)

// MeteredChannels is the number of channels metered per direction.
const MeteredChannels = 2

// LevelMeter holds the peak magnitude of the most recent block for one channel.
// It is written by the audio callback and read by any goroutine; the value is
// stored as float32 bits in a single word so reads are never torn.
type LevelMeter struct {
	bits atomic.Uint32
}

// Store publishes a new level.
func (m *LevelMeter) Store(v float32) {
	m.bits.Store(math.Float32bits(v))
}

// Load returns the last published level.
func (m *LevelMeter) Load() float32 {
	return math.Float32frombits(m.bits.Load())
}

// MeterBank is the set of meters for one direction.
type MeterBank [MeteredChannels]LevelMeter

// Level returns the level of channel ch clamped to [0, 1], or 0 for channels
// that are not metered.
func (b *MeterBank) Level(ch int) float32 {
	if ch < 0 || ch >= MeteredChannels {
		return 0
	}
	v := b[ch].Load()
	if v > 1 {
		return 1
	}
	if v < 0 || math.IsNaN(float64(v)) {
		return 0
	}
	return v
}

// Reset zeroes every meter in the bank.
func (b *MeterBank) Reset() {
	for i := range b {
		b[i].Store(0)
	}
}

// PeakLevel returns the largest absolute sample value in samples.
func PeakLevel(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// MeterPolicy decides what happens to the meters when processing stops.
// While running, meters are only written for channels present in a block, so
// a channel that drops out holds its last level under either policy.
type MeterPolicy int

const (
	// MeterPolicyHold keeps the last block's levels after stop.
	MeterPolicyHold MeterPolicy = iota
	// MeterPolicyReset zeroes the levels on stop.
	MeterPolicyReset
)

// ParseMeterPolicy maps a config value to a MeterPolicy; unknown values hold.
func ParseMeterPolicy(s string) MeterPolicy {
	if s == "reset" {
		return MeterPolicyReset
	}
	return MeterPolicyHold
}

// String implements fmt.Stringer
func (p MeterPolicy) String() string {
	if p == MeterPolicyReset {
		return "reset"
	}
	return "hold"
}
