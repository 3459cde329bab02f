package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoHAL is returned when a device provider does not expose HAL
	// device and queue handles.
	ErrNoHAL = errors.New("native: provider does not expose HAL types")

	// ErrTextureNotFound is returned for unknown or destroyed texture ids.
	ErrTextureNotFound = errors.New("native: texture not found")

	// ErrInvalidDimensions is returned when width, height or mip count is invalid.
	ErrInvalidDimensions = errors.New("native: invalid dimensions")

	// ErrClosed is returned when the device has been closed.
	ErrClosed = errors.New("native: device closed")
)
