package audiocore

import (
	"runtime"
	"sync/atomic"
)

// DeviceParams are the stream parameters reported when a device starts.
type DeviceParams struct {
	SampleRate     float64 // frames per second
	BufferSize     int     // maximum frames per callback
	InputChannels  int     // active input channels
	OutputChannels int     // active output channels
	InputDevice    string  // name of the open input device, empty if none
	OutputDevice   string  // name of the open output device, empty if none
}

// Callback is implemented by whatever consumes a device's audio stream.
//
// A DeviceManager calls DeviceAboutToStart before the first ProcessBlock of a
// stream, ProcessBlock once per hardware block on its audio thread, and
// DeviceStopped after the last ProcessBlock of the stream.
type Callback interface {
	// DeviceAboutToStart is called with the parameters of the starting stream.
	DeviceAboutToStart(params DeviceParams)
	// ProcessBlock must fill every non-nil output channel. It runs on the
	// audio thread and must not allocate, block, or log.
	ProcessBlock(in, out ChannelData)
	// DeviceStopped is called once the stream has stopped delivering blocks.
	DeviceStopped()
}

// CallbackSlot holds the callback a device binding dispatches to. The audio
// thread dispatches through an atomic pointer and an in-flight counter, so it
// never waits; Clear waits for an in-flight dispatch to finish, so once it
// returns the removed callback is never called again.
type CallbackSlot struct {
	current  atomic.Pointer[callbackHolder]
	inflight atomic.Int32
}

type callbackHolder struct {
	cb Callback
}

// Set installs cb, replacing any previous callback. It does not wait.
func (s *CallbackSlot) Set(cb Callback) {
	if cb == nil {
		s.current.Store(nil)
		return
	}
	s.current.Store(&callbackHolder{cb: cb})
}

// Get returns the installed callback, or nil.
func (s *CallbackSlot) Get() Callback {
	if h := s.current.Load(); h != nil {
		return h.cb
	}
	return nil
}

// Clear removes the installed callback and waits until no dispatch is running.
// It returns the removed callback, or nil. Never call from the audio thread.
func (s *CallbackSlot) Clear() Callback {
	h := s.current.Swap(nil)
	for s.inflight.Load() != 0 {
		runtime.Gosched()
	}
	if h == nil {
		return nil
	}
	return h.cb
}

// Dispatch calls ProcessBlock on the installed callback. It returns false,
// without touching out, when no callback is installed; the binding must then
// write silence.
func (s *CallbackSlot) Dispatch(in, out ChannelData) bool {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	h := s.current.Load()
	if h == nil {
		return false
	}
	h.cb.ProcessBlock(in, out)
	return true
}
