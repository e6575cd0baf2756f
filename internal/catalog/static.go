package catalog

import (
	"slices"
	"sync"

	"github.com/tphakala/eqroute/internal/errors"
)

// Static is an in-memory Catalog. It backs the offline device binding and
// tests, and supports adding and removing devices to simulate hot-plugging.
type Static struct {
	mu      sync.RWMutex
	devices []DeviceInfo
}

// NewStatic creates a catalog holding devices. IsVirtual is filled in by
// ClassifyVirtual for devices that don't set it.
func NewStatic(devices ...DeviceInfo) *Static {
	s := &Static{}
	for _, d := range devices {
		s.Add(d)
	}
	return s
}

// Add appends a device, replacing one with the same name.
func (s *Static) Add(d DeviceInfo) {
	if !d.IsVirtual {
		d.IsVirtual = ClassifyVirtual(d)
	}
	if d.ID == "" {
		d.ID = d.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.IndexFunc(s.devices, func(x DeviceInfo) bool { return x.Name == d.Name }); i >= 0 {
		s.devices[i] = d
		return
	}
	s.devices = append(s.devices, d)
}

// Remove deletes the device with the given name and reports whether it existed.
func (s *Static) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.devices)
	s.devices = slices.DeleteFunc(s.devices, func(d DeviceInfo) bool { return d.Name == name })
	return len(s.devices) != n
}

// Devices implements Catalog
func (s *Static) Devices() ([]DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.devices), nil
}

// ListDevices implements Catalog
func (s *Static) ListDevices(dir Direction) ([]DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterDirection(s.devices, dir), nil
}

// SystemDefault implements Catalog
func (s *Static) SystemDefault(dir Direction) (DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DefaultOf(s.devices, dir)
}

// SetSystemDefault implements Catalog
func (s *Static) SetSystemDefault(dir Direction, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := slices.IndexFunc(s.devices, func(d DeviceInfo) bool {
		return (d.ID == id || d.Name == id) && d.Supports(dir)
	})
	if target < 0 {
		return errors.Newf("set default %s %q: %w", dir, id, ErrDeviceNotFound).
			Component(ComponentCatalog).
			Category(errors.CategoryNotFound).
			Context("operation", "set_system_default").
			Build()
	}

	for i := range s.devices {
		isTarget := i == target
		if dir == Output {
			s.devices[i].DefaultOutput = isTarget
		} else {
			s.devices[i].DefaultInput = isTarget
		}
	}
	return nil
}
