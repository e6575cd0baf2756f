package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/eqroute/internal/errors"
)

func testDevices() []DeviceInfo {
	return []DeviceInfo{
		{ID: "builtin-mic", Name: "Built-in Microphone", InputChannels: 2, SampleRate: 48000, Transport: TransportBuiltIn, DefaultInput: true},
		{ID: "builtin-out", Name: "Built-in Output", OutputChannels: 2, SampleRate: 48000, Transport: TransportBuiltIn, DefaultOutput: true},
		{ID: "bh2", Name: "BlackHole 2ch", InputChannels: 2, OutputChannels: 2, SampleRate: 48000, Transport: TransportVirtual},
		{ID: "usb", Name: "USB Audio CODEC", InputChannels: 1, OutputChannels: 2, SampleRate: 44100, Transport: TransportUSB},
	}
}

func TestClassifyVirtual(t *testing.T) {
	tests := []struct {
		name   string
		device DeviceInfo
		want   bool
	}{
		{"virtual transport", DeviceInfo{Name: "Some Device", Transport: TransportVirtual}, true},
		{"aggregate transport", DeviceInfo{Name: "Studio Combo", Transport: TransportAggregate}, true},
		{"blackhole by name", DeviceInfo{Name: "BlackHole 16ch"}, true},
		{"soundflower lower case", DeviceInfo{Name: "soundflower (2ch)"}, true},
		{"virtual in name", DeviceInfo{Name: "My VIRTUAL Cable"}, true},
		{"loopback in name", DeviceInfo{Name: "Loopback Audio"}, true},
		{"pulse monitor", DeviceInfo{Name: "Monitor of Built-in Audio"}, true},
		{"usb device", DeviceInfo{Name: "USB Audio CODEC", Transport: TransportUSB}, false},
		{"built-in device", DeviceInfo{Name: "MacBook Pro Speakers", Transport: TransportBuiltIn}, false},
		{"name wins when transport is inconclusive", DeviceInfo{Name: "Loopback", Transport: TransportUSB}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyVirtual(tt.device))
		})
	}
}

func TestFindDevice(t *testing.T) {
	devices := testDevices()

	d, ok := FindDevice(devices, "BlackHole 2ch")
	require.True(t, ok)
	assert.Equal(t, "bh2", d.ID)

	d, ok = FindDevice(devices, "usb audio codec")
	require.True(t, ok)
	assert.Equal(t, "usb", d.ID)

	d, ok = FindDevice(devices, "builtin-out")
	require.True(t, ok)
	assert.Equal(t, "Built-in Output", d.Name)

	_, ok = FindDevice(devices, "nonexistent")
	assert.False(t, ok)

	_, ok = FindDevice(devices, "")
	assert.False(t, ok)
}

func TestStaticCatalog(t *testing.T) {
	c := NewStatic(testDevices()...)

	inputs, err := c.ListDevices(Input)
	require.NoError(t, err)
	assert.Equal(t, []string{"Built-in Microphone", "BlackHole 2ch", "USB Audio CODEC"}, Names(inputs))

	outputs, err := c.ListDevices(Output)
	require.NoError(t, err)
	assert.Equal(t, []string{"Built-in Output", "BlackHole 2ch", "USB Audio CODEC"}, Names(outputs))

	all, err := c.Devices()
	require.NoError(t, err)
	assert.True(t, all[2].IsVirtual)
	assert.False(t, all[3].IsVirtual)

	def, err := c.SystemDefault(Output)
	require.NoError(t, err)
	assert.Equal(t, "Built-in Output", def.Name)
}

func TestStaticSetSystemDefault(t *testing.T) {
	c := NewStatic(testDevices()...)

	require.NoError(t, c.SetSystemDefault(Output, "bh2"))
	def, err := c.SystemDefault(Output)
	require.NoError(t, err)
	assert.Equal(t, "BlackHole 2ch", def.Name)

	in, err := c.SystemDefault(Input)
	require.NoError(t, err)
	assert.Equal(t, "Built-in Microphone", in.Name, "input default is untouched")

	err = c.SetSystemDefault(Output, "builtin-mic")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	assert.True(t, errors.IsNotFound(err))
}

func TestStaticHotplug(t *testing.T) {
	c := NewStatic(testDevices()...)

	assert.True(t, c.Remove("USB Audio CODEC"))
	assert.False(t, c.Remove("USB Audio CODEC"))

	c.Add(DeviceInfo{Name: "Loopback Audio", InputChannels: 2})
	inputs, err := c.ListDevices(Input)
	require.NoError(t, err)
	assert.Equal(t, []string{"Built-in Microphone", "BlackHole 2ch", "Loopback Audio"}, Names(inputs))
	assert.True(t, inputs[2].IsVirtual)
	assert.Equal(t, "Loopback Audio", inputs[2].ID)
}

func TestNoDefault(t *testing.T) {
	c := NewStatic(DeviceInfo{Name: "Only", InputChannels: 1})

	_, err := c.SystemDefault(Output)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCheckVirtualSetup(t *testing.T) {
	withVirtual := NewStatic(testDevices()...)
	setup, err := CheckVirtualSetup(withVirtual)
	require.NoError(t, err)
	assert.True(t, setup.HasVirtualDevice)
	assert.Equal(t, "BlackHole 2ch", setup.RecommendedDevice)
	assert.Contains(t, setup.Instructions, "--input 'BlackHole 2ch'")

	without := NewStatic(testDevices()[0], testDevices()[1])
	setup, err = CheckVirtualSetup(without)
	require.NoError(t, err)
	assert.False(t, setup.HasVirtualDevice)
	assert.Empty(t, setup.RecommendedDevice)
	assert.Contains(t, setup.Instructions, "No virtual audio device found")
}

func TestInstallInstructionsPerPlatform(t *testing.T) {
	assert.Contains(t, virtualSetupFor(nil, "darwin").Instructions, "BlackHole")
	assert.Contains(t, virtualSetupFor(nil, "windows").Instructions, "VB-Audio")
	assert.Contains(t, virtualSetupFor(nil, "linux").Instructions, "module-null-sink")
}
