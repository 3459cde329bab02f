package backend

import (
	"errors"
	"io"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/vtex"
)

// Backend name constants.
const (
	// BackendMemory is the name of the headless CPU device.
	BackendMemory = "memory"
	// BackendNative is the name of the Pure Go GPU device (gogpu/wgpu HAL).
	BackendNative = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot run in the current environment.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Options configures device creation.
type Options struct {
	// Provider supplies a shared GPU device. Required by the native
	// backend, ignored by the memory backend.
	Provider gpucontext.DeviceProvider
}

// Device is a vtex.Device owned by a backend. Close releases every
// texture the device still holds.
type Device interface {
	vtex.Device
	io.Closer
}

// Factory creates a device. It returns an error wrapping
// ErrBackendNotAvailable when opts lack what the backend needs.
type Factory func(opts Options) (Device, error)
