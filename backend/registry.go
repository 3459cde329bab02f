package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/vtex"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Native > Memory (Memory is the headless fallback).
	backendPriority = []string{BackendNative, BackendMemory}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open creates a device from the named backend.
func Open(name string, opts Options) (Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory(opts)
	if err != nil {
		return nil, err
	}
	vtex.Logger().Info("backend: device opened", "backend", name)
	return dev, nil
}

// Default opens the best available backend based on priority.
// Priority order: native > memory. Backends reporting
// ErrBackendNotAvailable are skipped; other errors are returned.
func Default(opts Options) (Device, string, error) {
	registryMu.RLock()
	names := slices.Clone(backendPriority)
	for name := range backends {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	registryMu.RUnlock()

	for _, name := range names {
		if !IsRegistered(name) {
			continue
		}
		dev, err := Open(name, opts)
		if errors.Is(err, ErrBackendNotAvailable) {
			vtex.Logger().Debug("backend: skipping", "backend", name, "reason", err)
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return dev, name, nil
	}
	return nil, "", ErrBackendNotAvailable
}
