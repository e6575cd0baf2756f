// Package catalog lists the audio devices of the host, classifies virtual
// (loopback) devices, and reads or changes the system default devices.
package catalog

import (
	"slices"
	"strings"

	"github.com/tphakala/eqroute/internal/errors"
)

// ComponentCatalog identifies catalog errors
const ComponentCatalog = "catalog"

// Direction selects the input or output side of a device.
type Direction int

const (
	Input Direction = iota
	Output
)

// String implements fmt.Stringer
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// TransportType is how a device is attached to the host.
type TransportType string

const (
	TransportUnknown   TransportType = "unknown"
	TransportBuiltIn   TransportType = "built-in"
	TransportUSB       TransportType = "usb"
	TransportBluetooth TransportType = "bluetooth"
	TransportHDMI      TransportType = "hdmi"
	TransportNetwork   TransportType = "network"
	TransportVirtual   TransportType = "virtual"
	TransportAggregate TransportType = "aggregate"
)

// DeviceInfo describes one audio device. A device that can both capture and
// play appears once with both channel counts set.
type DeviceInfo struct {
	ID             string        // platform identifier
	Name           string        // human-readable name, used for selection
	InputChannels  int           // capture channels, 0 if none
	OutputChannels int           // playback channels, 0 if none
	SampleRate     float64       // nominal sample rate, 0 if unknown
	Transport      TransportType // attachment type if the platform reports it
	DefaultInput   bool          // system default capture device
	DefaultOutput  bool          // system default playback device
	IsVirtual      bool          // virtual or loopback device
}

// IsInput reports whether the device can capture.
func (d DeviceInfo) IsInput() bool { return d.InputChannels > 0 }

// IsOutput reports whether the device can play.
func (d DeviceInfo) IsOutput() bool { return d.OutputChannels > 0 }

// Supports reports whether the device has channels in dir.
func (d DeviceInfo) Supports(dir Direction) bool {
	return d.Channels(dir) > 0
}

// Channels returns the channel count in dir.
func (d DeviceInfo) Channels(dir Direction) int {
	if dir == Output {
		return d.OutputChannels
	}
	return d.InputChannels
}

// IsDefault reports whether the device is the system default in dir.
func (d DeviceInfo) IsDefault(dir Direction) bool {
	if dir == Output {
		return d.DefaultOutput
	}
	return d.DefaultInput
}

// Catalog enumerates devices. Implementations may query the platform on every
// call, so callers on latency-sensitive paths should cache results.
type Catalog interface {
	// Devices returns every device on the host
	Devices() ([]DeviceInfo, error)
	// ListDevices returns the devices that have channels in dir
	ListDevices(dir Direction) ([]DeviceInfo, error)
	// SystemDefault returns the system default device for dir
	SystemDefault(dir Direction) (DeviceInfo, error)
	// SetSystemDefault makes the device with id the system default for dir
	SetSystemDefault(dir Direction, id string) error
}

// Sentinel errors returned by catalogs
var (
	// ErrDeviceNotFound is returned when no device matches a name or ID
	ErrDeviceNotFound = errors.NewStd("device not found")
	// ErrUnsupported is returned when the platform cannot perform an operation
	ErrUnsupported = errors.NewStd("operation not supported by platform")
)

// FilterDirection returns the devices that have channels in dir.
func FilterDirection(devices []DeviceInfo, dir Direction) []DeviceInfo {
	out := make([]DeviceInfo, 0, len(devices))
	for i := range devices {
		if devices[i].Supports(dir) {
			out = append(out, devices[i])
		}
	}
	return out
}

// FindDevice looks up a device by exact name, then by case-insensitive name,
// then by ID.
func FindDevice(devices []DeviceInfo, name string) (DeviceInfo, bool) {
	if name == "" {
		return DeviceInfo{}, false
	}
	if i := slices.IndexFunc(devices, func(d DeviceInfo) bool { return d.Name == name }); i >= 0 {
		return devices[i], true
	}
	if i := slices.IndexFunc(devices, func(d DeviceInfo) bool { return strings.EqualFold(d.Name, name) }); i >= 0 {
		return devices[i], true
	}
	if i := slices.IndexFunc(devices, func(d DeviceInfo) bool { return d.ID == name }); i >= 0 {
		return devices[i], true
	}
	return DeviceInfo{}, false
}

// Names returns the device names in order.
func Names(devices []DeviceInfo) []string {
	names := make([]string, len(devices))
	for i := range devices {
		names[i] = devices[i].Name
	}
	return names
}

// DefaultOf returns the default device for dir from devices.
func DefaultOf(devices []DeviceInfo, dir Direction) (DeviceInfo, error) {
	for i := range devices {
		if devices[i].Supports(dir) && devices[i].IsDefault(dir) {
			return devices[i], nil
		}
	}
	return DeviceInfo{}, errors.Newf("no default %s device: %w", dir, ErrDeviceNotFound).
		Component(ComponentCatalog).
		Category(errors.CategoryNotFound).
		Context("direction", dir.String()).
		Build()
}
