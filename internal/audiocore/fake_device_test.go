package audiocore

import (
	"fmt"
	"sync"
)

// fakeDevices is an in-memory DeviceManager. Blocks are pushed by the test
// through Pump, which dispatches exactly like a real binding.
type fakeDevices struct {
	mu        sync.Mutex
	slot      CallbackSlot
	open      bool
	setup     DeviceSetup
	params    DeviceParams
	openCount int
	openErr   error
	applyErr  error
	known     map[string]bool // names ApplySetup accepts, nil accepts all

	inBufs  [][]float32
	outBufs [][]float32
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{}
}

func (f *fakeDevices) OpenDefault(in, out int) error {
	return f.ApplySetup(DeviceSetup{InputChannels: in, OutputChannels: out})
}

func (f *fakeDevices) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeDevices) Setup() DeviceSetup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return DeviceSetup{}
	}
	return f.setup
}

func (f *fakeDevices) ApplySetup(s DeviceSetup) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return f.openErr
	}
	if f.applyErr != nil {
		return f.applyErr
	}
	for _, name := range []string{s.InputDevice, s.OutputDevice} {
		if name != "" && f.known != nil && !f.known[name] {
			return fmt.Errorf("cannot open %q", name)
		}
	}

	f.stopLocked()
	if s.InputDevice == "" && s.InputChannels > 0 {
		s.InputDevice = "Default Input"
	}
	if s.OutputDevice == "" && s.OutputChannels > 0 {
		s.OutputDevice = "Default Output"
	}
	if s.SampleRate == 0 {
		s.SampleRate = 48000
	}
	if s.BufferSize == 0 {
		s.BufferSize = 512
	}
	f.setup = s
	f.open = true
	f.openCount++
	f.params = DeviceParams{
		SampleRate:     s.SampleRate,
		BufferSize:     s.BufferSize,
		InputChannels:  s.InputChannels,
		OutputChannels: s.OutputChannels,
		InputDevice:    s.InputDevice,
		OutputDevice:   s.OutputDevice,
	}
	f.inBufs = makeChannels(s.InputChannels, s.BufferSize)
	f.outBufs = makeChannels(s.OutputChannels, s.BufferSize)
	if cb := f.slot.Get(); cb != nil {
		cb.DeviceAboutToStart(f.params)
	}
	return nil
}

func (f *fakeDevices) stopLocked() {
	if f.open {
		if cb := f.slot.Get(); cb != nil {
			cb.DeviceStopped()
		}
	}
	f.open = false
}

func (f *fakeDevices) Params() DeviceParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

func (f *fakeDevices) AddCallback(cb Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		cb.DeviceAboutToStart(f.params)
	}
	f.slot.Set(cb)
}

func (f *fakeDevices) RemoveCallback(cb Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slot.Get() != cb {
		return
	}
	f.slot.Clear()
	if f.open {
		cb.DeviceStopped()
	}
}

func (f *fakeDevices) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	return nil
}

// Pump fills every input channel with value and runs one block.
func (f *fakeDevices) Pump(value float32) {
	for _, ch := range f.inBufs {
		for i := range ch {
			ch[i] = value
		}
	}
	f.Dispatch()
}

// PumpChannels fills input channel c with values[c] and runs one block.
// Channels without a value are silenced.
func (f *fakeDevices) PumpChannels(values ...float32) {
	for c, ch := range f.inBufs {
		var v float32
		if c < len(values) {
			v = values[c]
		}
		for i := range ch {
			ch[i] = v
		}
	}
	f.Dispatch()
}

// Dispatch runs one block with the current input buffers.
func (f *fakeDevices) Dispatch() {
	frames := f.params.BufferSize
	in := NewChannelData(f.inBufs, frames)
	out := NewChannelData(f.outBufs, frames)
	if !f.slot.Dispatch(in, out) {
		for _, ch := range f.outBufs {
			clear(ch)
		}
	}
}

func makeChannels(n, frames int) [][]float32 {
	chans := make([][]float32, n)
	for i := range chans {
		chans[i] = make([]float32, frames)
	}
	return chans
}
