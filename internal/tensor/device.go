// Package tensor defines the buffer abstraction the optimizer works against.
//
// A Buffer is a fixed-shape float32 array that lives in exactly one memory
// space: host memory or a specific accelerator device. Backends in
// internal/backend implement it; the optimizer only ever sees this interface.
package tensor

import (
	"fmt"
	"strings"
)

// Device represents the compute device kind for buffer operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Location identifies one memory space: the host, or an accelerator by ordinal.
type Location struct {
	Device Device
	Index  int // Adapter ordinal, always 0 for the host
}

// Host is the location of host-resident buffers.
var Host = Location{Device: CPU}

// Accelerator returns the location of accelerator index of kind d.
func Accelerator(d Device, index int) Location {
	return Location{Device: d, Index: index}
}

// IsHost reports whether the location is host memory.
func (l Location) IsHost() bool {
	return l.Device == CPU
}

// String formats the location as "cpu" or "<device>:<index>".
func (l Location) String() string {
	if l.IsHost() {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", strings.ToLower(l.Device.String()), l.Index)
}

