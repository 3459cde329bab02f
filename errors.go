package vtex

import "errors"

// Sentinel errors for the vtex package.
var (
	// ErrRegionExhausted is returned when the virtual address space has no
	// free region large enough for a texture. It is recoverable: destroying
	// other textures may make room.
	ErrRegionExhausted = errors.New("vtex: no free region in virtual address space")

	// ErrNullAllocation is returned when a null allocation is freed.
	ErrNullAllocation = errors.New("vtex: null region allocation")

	// ErrUnknownTexture is returned for texture ids that are out of range
	// or have already been destroyed.
	ErrUnknownTexture = errors.New("vtex: unknown texture id")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("vtex: engine is closed")

	// ErrNilSource is returned when an engine is created without a page source.
	ErrNilSource = errors.New("vtex: page source is nil")

	// ErrNoDevice is returned when a GPU operation needs a device and none
	// is attached.
	ErrNoDevice = errors.New("vtex: no device attached")
)

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "vtex: invalid config." + e.Field + ": " + e.Reason
}
