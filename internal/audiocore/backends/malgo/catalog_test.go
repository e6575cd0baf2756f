package malgo

import (
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEnumerator struct {
	capture  []rawDevice
	playback []rawDevice
	err      error
	calls    int
}

func (f *fakeEnumerator) Devices(kind malgo.DeviceType) ([]rawDevice, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if kind == malgo.Playback {
		return f.playback, nil
	}
	return f.capture, nil
}

func testEnumerator() *fakeEnumerator {
	return &fakeEnumerator{
		capture: []rawDevice{
			{idString: "mic", name: "MacBook Pro Microphone", isDefault: true, channels: 1, sampleRate: 48000},
			{idString: "bh", name: "BlackHole 2ch", channels: 2, sampleRate: 48000},
			{idString: "usb", name: "USB Audio CODEC", channels: 2},
		},
		playback: []rawDevice{
			{idString: "spk", name: "MacBook Pro Speakers", isDefault: true, channels: 2, sampleRate: 44100},
			{idString: "bh", name: "BlackHole 2ch", channels: 2},
			{idString: "null", name: "Discard all samples (playback) or generate zero samples (capture)", channels: 2},
		},
	}
}

func newTestCatalog(enum enumerator) *Catalog {
	return newCatalog(enum, time.Minute, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
}

func TestCatalogMergesEndpoints(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(testEnumerator())
	devices, err := c.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 4, "duplex device merged and null device dropped")

	bh, ok := catalog.FindDevice(devices, "BlackHole 2ch")
	require.True(t, ok)
	assert.Equal(t, 2, bh.InputChannels)
	assert.Equal(t, 2, bh.OutputChannels)
	assert.True(t, bh.IsVirtual)
	assert.InDelta(t, 48000.0, bh.SampleRate, 0)

	usb, _ := catalog.FindDevice(devices, "USB Audio CODEC")
	assert.Equal(t, catalog.TransportUSB, usb.Transport)
	assert.False(t, usb.IsVirtual)

	inputs, err := c.ListDevices(catalog.Input)
	require.NoError(t, err)
	assert.Equal(t, []string{"MacBook Pro Microphone", "BlackHole 2ch", "USB Audio CODEC"}, catalog.Names(inputs))

	def, err := c.SystemDefault(catalog.Output)
	require.NoError(t, err)
	assert.Equal(t, "MacBook Pro Speakers", def.Name)
	assert.Equal(t, catalog.TransportBuiltIn, def.Transport)
}

func TestCatalogCachesEnumeration(t *testing.T) {
	t.Parallel()

	enum := testEnumerator()
	c := newTestCatalog(enum)
	_, err := c.Devices()
	require.NoError(t, err)
	_, err = c.ListDevices(catalog.Output)
	require.NoError(t, err)
	assert.Equal(t, 2, enum.calls, "one capture and one playback query")

	c.Refresh()
	_, err = c.Devices()
	require.NoError(t, err)
	assert.Equal(t, 4, enum.calls)
}

func TestCatalogEnumerationError(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(&fakeEnumerator{err: errors.NewStd("backend gone")})
	_, err := c.Devices()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDeviceCatalog))
}

func TestCatalogLookup(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(testEnumerator())

	e, err := c.lookup(catalog.Input, "")
	require.NoError(t, err)
	assert.Equal(t, "MacBook Pro Microphone", e.info.Name)
	require.NotNil(t, e.captureID)

	e, err = c.lookup(catalog.Output, "blackhole 2ch")
	require.NoError(t, err)
	assert.Equal(t, "BlackHole 2ch", e.info.Name)
	require.NotNil(t, e.playbackID)

	_, err = c.lookup(catalog.Output, "MacBook Pro Microphone")
	require.ErrorIs(t, err, catalog.ErrDeviceNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestSetSystemDefaultUnsupported(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(testEnumerator())
	err := c.SetSystemDefault(catalog.Output, "bh")
	require.ErrorIs(t, err, catalog.ErrUnsupported)
}

func TestTransportFromName(t *testing.T) {
	t.Parallel()

	tests := map[string]catalog.TransportType{
		"USB Audio CODEC":              catalog.TransportUSB,
		"AirPods Pro":                  catalog.TransportBluetooth,
		"HDA Intel PCH, HDMI 0":        catalog.TransportHDMI,
		"Aggregate Device":             catalog.TransportAggregate,
		"Built-in Audio Analog Stereo": catalog.TransportBuiltIn,
		"AirPlay":                      catalog.TransportNetwork,
		"Scarlett 2i2":                 catalog.TransportUnknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, transportFromName(name), name)
	}
}

func TestDecodeID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ":0,0", decodeID(hex.EncodeToString([]byte(":0,0\x00\x00"))))
	assert.Equal(t, "zz-not-hex", decodeID("zz-not-hex"))
}

func TestNativeFormat(t *testing.T) {
	t.Parallel()

	var info malgo.DeviceInfo
	channels, rate := nativeFormat(&info)
	assert.Equal(t, fallbackChannels, channels)
	assert.Zero(t, rate)

	info.FormatCount = 2
	info.Formats = []malgo.DataFormat{
		{Format: malgo.FormatF32, Channels: 2},
		{Format: malgo.FormatS16, Channels: 8, SampleRate: 96000},
	}
	channels, rate = nativeFormat(&info)
	assert.Equal(t, 8, channels)
	assert.InDelta(t, 96000.0, rate, 0)

	info.FormatCount = 5
	channels, _ = nativeFormat(&info)
	assert.Equal(t, 8, channels, "count larger than the slice is clamped")
}
