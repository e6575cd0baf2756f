package processors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/eqroute/internal/audiocore"
)

func filled(v float32, frames int) *audiocore.AudioBuffer {
	b := audiocore.NewAudioBuffer(2, frames)
	for _, ch := range b.Channels() {
		for i := range ch {
			ch[i] = v
		}
	}
	return b
}

func TestGainStageCreation(t *testing.T) {
	t.Parallel()

	g, err := NewGainStage("trim", -6)
	require.NoError(t, err)
	assert.Equal(t, "trim", g.ID())
	assert.InDelta(t, -6, g.GainDB(), 1e-9)

	_, err = NewGainStage("bad", 30)
	require.Error(t, err)
	_, err = NewGainStage("bad", math.NaN())
	require.Error(t, err)
}

func TestGainStageUnityIsIdentity(t *testing.T) {
	t.Parallel()

	g, err := NewGainStage("unity", 0)
	require.NoError(t, err)
	b := filled(0.3, 64)
	g.Process(b)
	for c := range b.NumChannels() {
		for _, v := range b.Channel(c) {
			require.Equal(t, float32(0.3), v)
		}
	}
}

func TestGainStageAppliesAndClips(t *testing.T) {
	t.Parallel()

	g, err := NewGainStage("boost", LinearToDB(2))
	require.NoError(t, err)
	g.Prepare(audiocore.ProcessSpec{SampleRate: 48000, BlockSize: 64, Channels: 2})

	b := filled(0.25, 64)
	g.Process(b)
	assert.InDelta(t, 0.5, b.Channel(0)[0], 1e-6)

	b = filled(0.75, 64)
	g.Process(b)
	assert.InDelta(t, 1.0, b.Channel(1)[10], 0, "clipped to full scale")
}

func TestGainStageRampsChanges(t *testing.T) {
	t.Parallel()

	g, err := NewGainStage("fade", 0)
	require.NoError(t, err)
	g.Prepare(audiocore.ProcessSpec{SampleRate: 1000, BlockSize: 100, Channels: 2})
	require.NoError(t, g.SetGainDB(LinearToDB(0.5)))

	// ramp of 0.02s at 1 kHz is 20 samples
	b := filled(1, 100)
	g.Process(b)
	left := b.Channel(0)
	assert.Less(t, left[0], float32(1))
	assert.Greater(t, left[0], float32(0.9))
	assert.InDelta(t, 0.5, left[30], 1e-6)
	assert.InDeltaSlice(t, left, b.Channel(1), 1e-9, "channels ramp identically")

	g.Reset()
	b = filled(1, 10)
	g.Process(b)
	assert.InDelta(t, 0.5, b.Channel(0)[0], 1e-6)
}

func TestGainStageSetGainValidation(t *testing.T) {
	t.Parallel()

	g, err := NewGainStage("g", 0)
	require.NoError(t, err)
	require.Error(t, g.SetGainDB(-100))
	assert.InDelta(t, 0, g.GainDB(), 1e-9)
}

func TestGainStageInChain(t *testing.T) {
	g, err := NewGainStage("g", LinearToDB(0.5))
	require.NoError(t, err)
	pc := audiocore.NewProcessingChain(nil)
	require.NoError(t, pc.AddStage(g))

	b := filled(0.8, 32)
	pc.Process(b)
	assert.InDelta(t, 0.4, b.Channel(0)[31], 1e-6)

	allocs := testing.AllocsPerRun(100, func() { pc.Process(b) })
	assert.Zero(t, allocs)
}

func TestDecibelConversion(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, DBToLinear(0), 1e-12)
	assert.InDelta(t, 0.501187, DBToLinear(-6), 1e-6)
	assert.True(t, math.IsInf(LinearToDB(0), -1))
	assert.InDelta(t, 6.0206, LinearToDB(2), 1e-4)
}
