// Package backend provides a registry of vtex.Device implementations.
//
// Device backends register themselves from init() functions and are
// selected at runtime by name:
//
//	import (
//		"github.com/gogpu/vtex/backend"
//		_ "github.com/gogpu/vtex/backend/memory"
//		_ "github.com/gogpu/vtex/backend/native"
//	)
//
//	dev, err := backend.Open(backend.BackendMemory, backend.Options{})
//
// # Backend Selection
//
// Default opens the best available backend. The native backend needs a
// GPU device supplied through Options.Provider; without one it reports
// ErrBackendNotAvailable and Default falls back to the memory backend:
//
//	dev, name, err := backend.Default(backend.Options{Provider: app})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
//   - "memory": headless CPU textures with readback (always available)
//   - "native": GPU textures through gogpu/wgpu HAL
package backend
