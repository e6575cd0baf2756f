package audiocore

// DeviceSetup is a complete device configuration request.
type DeviceSetup struct {
	InputDevice    string  // input device name, empty for the system default
	OutputDevice   string  // output device name, empty for the system default
	SampleRate     float64 // preferred rate, 0 for the device default
	BufferSize     int     // preferred frames per block, 0 for the device default
	InputChannels  int     // channels requested from the input device, 0 for none
	OutputChannels int     // channels requested from the output device, 0 for none
}

// DeviceManager is the platform binding the engine drives. It owns at most
// one device connection and delivers that device's stream to at most one
// Callback.
//
// Implementations must guarantee:
//   - AddCallback on an open device calls DeviceAboutToStart before the first
//     ProcessBlock; opening a device with a callback installed does the same.
//   - RemoveCallback is synchronous: when it returns no ProcessBlock is running
//     or will run for that callback, and DeviceStopped has been called if the
//     stream was running.
//   - ApplySetup either applies the whole setup or leaves the previous one in
//     effect and returns an error.
//   - While no callback is installed, output is silence.
type DeviceManager interface {
	// OpenDefault opens the system default devices with the given channel
	// requests and starts the stream.
	OpenDefault(inputChannels, outputChannels int) error
	// IsOpen reports whether a device connection exists.
	IsOpen() bool
	// Setup returns the current setup, zero if none is open.
	Setup() DeviceSetup
	// ApplySetup reopens the stream with setup.
	ApplySetup(setup DeviceSetup) error
	// Params returns the parameters of the running stream.
	Params() DeviceParams
	// AddCallback installs cb.
	AddCallback(cb Callback)
	// RemoveCallback uninstalls cb if it is installed.
	RemoveCallback(cb Callback)
	// Close stops the stream and releases the device.
	Close() error
}
