package catalog

import "strings"

// KnownVirtualDriverNames are name fragments of common virtual and loopback
// drivers, matched case-insensitively.
var KnownVirtualDriverNames = []string{
	"BlackHole",
	"Soundflower",
	"Virtual",
	"Loopback",
	"VB-Audio",
	"Monitor of",
}

// ClassifyVirtual reports whether a device is virtual. A virtual or aggregate
// transport is conclusive; otherwise the name is matched against
// KnownVirtualDriverNames.
func ClassifyVirtual(d DeviceInfo) bool {
	switch d.Transport {
	case TransportVirtual, TransportAggregate:
		return true
	}
	name := strings.ToLower(d.Name)
	for _, fragment := range KnownVirtualDriverNames {
		if strings.Contains(name, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

// VirtualDevices returns the devices classified as virtual.
func VirtualDevices(devices []DeviceInfo) []DeviceInfo {
	var out []DeviceInfo
	for i := range devices {
		if devices[i].IsVirtual || ClassifyVirtual(devices[i]) {
			out = append(out, devices[i])
		}
	}
	return out
}
