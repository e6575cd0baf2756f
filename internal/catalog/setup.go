package catalog

import (
	"fmt"
	"runtime"
	"strings"
)

// VirtualSetup is the result of checking the host for a loopback device that
// system audio can be routed through.
type VirtualSetup struct {
	HasVirtualDevice  bool   // a virtual device with input channels exists
	RecommendedDevice string // name of the device to route through
	Instructions      string // human-readable next steps
}

// CheckVirtualSetup looks for a virtual input device and explains how to route
// system audio through it, or how to install one.
func CheckVirtualSetup(c Catalog) (VirtualSetup, error) {
	inputs, err := c.ListDevices(Input)
	if err != nil {
		return VirtualSetup{}, err
	}
	return virtualSetupFor(VirtualDevices(inputs), runtime.GOOS), nil
}

func virtualSetupFor(virtual []DeviceInfo, goos string) VirtualSetup {
	if len(virtual) == 0 {
		return VirtualSetup{Instructions: installInstructions(goos)}
	}

	name := virtual[0].Name
	var b strings.Builder
	fmt.Fprintf(&b, "Virtual audio device detected: %s\n\n", name)
	b.WriteString("To route system audio through eqroute:\n")
	fmt.Fprintf(&b, "1. Set '%s' as the system output device\n", name)
	fmt.Fprintf(&b, "2. Run eqroute with --input '%s'\n", name)
	b.WriteString("3. Pick your speakers or headphones with --output\n")
	b.WriteString("4. Start routing with 'eqroute route'")

	return VirtualSetup{
		HasVirtualDevice:  true,
		RecommendedDevice: name,
		Instructions:      b.String(),
	}
}

func installInstructions(goos string) string {
	var b strings.Builder
	b.WriteString("No virtual audio device found.\n\n")
	b.WriteString("System-wide processing needs a loopback device to capture system audio.\n\n")

	switch goos {
	case "darwin":
		b.WriteString("Recommended: BlackHole\n")
		b.WriteString("1. Visit https://github.com/ExistentialAudio/BlackHole\n")
		b.WriteString("2. Install BlackHole (2ch is enough for stereo)\n")
		b.WriteString("3. Set BlackHole as the system output device\n")
	case "windows":
		b.WriteString("Recommended: VB-Audio Virtual Cable\n")
		b.WriteString("1. Visit https://vb-audio.com/Cable/\n")
		b.WriteString("2. Install the driver and reboot\n")
		b.WriteString("3. Set 'CABLE Input' as the default playback device\n")
	default:
		b.WriteString("Recommended: a PulseAudio or PipeWire monitor source\n")
		b.WriteString("1. Run 'pactl load-module module-null-sink sink_name=eqroute'\n")
		b.WriteString("2. Set the null sink as the default output\n")
		b.WriteString("3. Its 'Monitor of' source then carries system audio\n")
	}
	b.WriteString("\nThen use the virtual device as input and your speakers as output.")
	return b.String()
}
