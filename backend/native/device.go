//go:build !nogpu

// Package native provides a vtex.Device on top of gogpu/wgpu HAL.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/backend"
	"github.com/gogpu/wgpu/hal"
)

func init() {
	backend.Register(backend.BackendNative, func(opts backend.Options) (backend.Device, error) {
		if opts.Provider == nil {
			return nil, fmt.Errorf("%w: native backend needs a device provider", backend.ErrBackendNotAvailable)
		}
		dev, err := NewDeviceFromProvider(opts.Provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
		}
		return dev, nil
	})
}

// texture pairs a HAL texture with the descriptor it was created from.
type texture struct {
	hal  hal.Texture
	desc vtex.TextureDescriptor
}

// Device implements vtex.Device using gogpu/wgpu/hal directly.
// Uploads go through hal.Queue.WriteTexture and are ordered with the
// queue's other work.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type Device struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	closed bool

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps vtex IDs to hal resources
	textures map[vtex.TextureID]*texture
}

// NewDevice creates a Device wrapping the given HAL device and queue.
// The caller keeps ownership of both.
func NewDevice(device hal.Device, queue hal.Queue) *Device {
	d := &Device{
		device:   device,
		queue:    queue,
		textures: make(map[vtex.TextureID]*texture),
	}

	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)

	return d
}

// NewDeviceFromProvider creates a Device sharing the GPU device of an
// external provider (e.g. a gogpu window). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	vtex.Logger().Info("native: using shared GPU device", "format", provider.SurfaceFormat())
	return NewDevice(device, queue), nil
}

// newID generates a unique resource ID.
func (d *Device) newID() vtex.TextureID {
	return vtex.TextureID(d.nextID.Add(1) - 1)
}

// CreateTexture creates a 2D GPU texture.
func (d *Device) CreateTexture(desc vtex.TextureDescriptor) (vtex.TextureID, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.MipLevelCount < 1 {
		return vtex.InvalidTexture, fmt.Errorf("%w: %dx%d with %d mips",
			ErrInvalidDimensions, desc.Width, desc.Height, desc.MipLevelCount)
	}

	halDesc := &hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),  //nolint:gosec // G115: validated positive above
			Height:             uint32(desc.Height), //nolint:gosec // G115: validated positive above
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: uint32(desc.MipLevelCount), //nolint:gosec // G115: validated positive above
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return vtex.InvalidTexture, ErrClosed
	}

	tex, err := d.device.CreateTexture(halDesc)
	if err != nil {
		return vtex.InvalidTexture, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}

	id := d.newID()
	d.textures[id] = &texture{hal: tex, desc: desc}

	vtex.Logger().Debug("native: texture created",
		"id", uint64(id), "label", desc.Label, "width", desc.Width, "height", desc.Height,
		"mips", desc.MipLevelCount, "format", desc.Format)
	return id, nil
}

// DestroyTexture releases a GPU texture. Unknown ids are ignored.
func (d *Device) DestroyTexture(id vtex.TextureID) {
	d.mu.Lock()
	tex, ok := d.textures[id]
	if ok {
		delete(d.textures, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyTexture(tex.hal)
	}
}

// WriteTexture uploads data into the box described by w.
func (d *Device) WriteTexture(w vtex.TextureWrite, data []byte) error {
	d.mu.RLock()
	tex, ok := d.textures[w.Texture]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrTextureNotFound, w.Texture)
	}
	if err := vtex.CheckWrite(tex.desc, w, data); err != nil {
		return err
	}

	pitch := w.BytesPerRow
	if pitch == 0 {
		pitch = w.Width * vtex.BytesPerPixel(tex.desc.Format)
	}

	//nolint:gosec // G115: CheckWrite bounds every value by the texture size
	dst := &hal.ImageCopyTexture{
		Texture:  tex.hal,
		MipLevel: uint32(w.MipLevel),
		Origin:   hal.Origin3D{X: uint32(w.X), Y: uint32(w.Y), Z: 0},
		Aspect:   gputypes.TextureAspectAll,
	}
	//nolint:gosec // G115: CheckWrite bounds every value by the texture size
	layout := &hal.ImageDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(pitch),
		RowsPerImage: uint32(w.Height),
	}
	//nolint:gosec // G115: CheckWrite bounds every value by the texture size
	size := &hal.Extent3D{
		Width:              uint32(w.Width),
		Height:             uint32(w.Height),
		DepthOrArrayLayers: 1,
	}

	if err := d.queue.WriteTexture(dst, data, layout, size); err != nil {
		vtex.Logger().Warn("native: texture upload failed", "id", uint64(w.Texture), "err", err)
		return fmt.Errorf("native: write texture %d: %w", w.Texture, err)
	}
	return nil
}

// HalTexture returns the HAL texture behind an id, for binding in render
// pipelines.
func (d *Device) HalTexture(id vtex.TextureID) (hal.Texture, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tex, ok := d.textures[id]
	if !ok {
		return nil, false
	}
	return tex.hal, true
}

// Len returns the number of live textures.
func (d *Device) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.textures)
}

// Close destroys every texture still alive. The HAL device and queue are
// not destroyed.
func (d *Device) Close() error {
	d.mu.Lock()
	textures := d.textures
	d.textures = make(map[vtex.TextureID]*texture)
	d.closed = true
	d.mu.Unlock()

	for _, tex := range textures {
		d.device.DestroyTexture(tex.hal)
	}
	return nil
}

var _ backend.Device = (*Device)(nil)
