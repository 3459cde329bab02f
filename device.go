package vtex

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// TextureID is an opaque handle to a device texture.
type TextureID uint64

// InvalidTexture is the zero value, representing an invalid/null texture.
const InvalidTexture TextureID = 0

// TextureDescriptor describes a 2D texture to create on a Device.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Width is the texture width in texels.
	Width int

	// Height is the texture height in texels.
	Height int

	// MipLevelCount is the number of mip levels (1+ required).
	MipLevelCount int

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage specifies how the texture will be used.
	Usage gputypes.TextureUsage
}

// MipSize returns the dimensions of the given mip level.
func (d TextureDescriptor) MipSize(level int) (w, h int) {
	return max(1, d.Width>>level), max(1, d.Height>>level)
}

// TextureWrite describes the destination box of a texture upload and the
// layout of the source bytes.
type TextureWrite struct {
	// Texture is the destination texture.
	Texture TextureID

	// MipLevel is the destination mip level.
	MipLevel int

	// X, Y is the destination origin within the mip level.
	X, Y int

	// Width, Height is the size of the box in texels.
	Width, Height int

	// BytesPerRow is the row pitch of the source data.
	// Zero means tightly packed (Width * bytes per texel).
	BytesPerRow int
}

// Device is the narrow graphics-device surface the paging engine consumes:
// create a 2D texture with N mip levels, destroy it, and update a
// sub-region from CPU-visible bytes.
//
// Implementations live in backend/native (wgpu HAL) and backend/memory
// (headless). Uploads may be asynchronous; ordering against rendering is
// the implementation's concern.
type Device interface {
	// CreateTexture creates a texture. Contents are undefined until written.
	CreateTexture(desc TextureDescriptor) (TextureID, error)

	// DestroyTexture releases a texture. Unknown ids are ignored.
	DestroyTexture(id TextureID)

	// WriteTexture uploads data into the box described by w.
	WriteTexture(w TextureWrite, data []byte) error
}

// Texture usage presets.
const (
	// CacheTextureUsage is the usage of physical cache textures.
	CacheTextureUsage = gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding

	// IndirectionTextureUsage is the usage of the indirection texture.
	IndirectionTextureUsage = gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
)

// BytesPerPixel returns the size of one texel for the formats supported by
// vtex, or 0 for unsupported formats.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGBA8Uint:
		return 4
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 0
	}
}

// CheckWrite validates w against a texture created with desc and the length
// of data. Device implementations share it.
func CheckWrite(desc TextureDescriptor, w TextureWrite, data []byte) error {
	if w.MipLevel < 0 || w.MipLevel >= desc.MipLevelCount {
		return fmt.Errorf("vtex: mip level %d out of range [0,%d)", w.MipLevel, desc.MipLevelCount)
	}
	mw, mh := desc.MipSize(w.MipLevel)
	if w.Width <= 0 || w.Height <= 0 || w.X < 0 || w.Y < 0 || w.X+w.Width > mw || w.Y+w.Height > mh {
		return fmt.Errorf("vtex: write box (%d,%d %dx%d) outside mip %d (%dx%d)",
			w.X, w.Y, w.Width, w.Height, w.MipLevel, mw, mh)
	}
	bpp := BytesPerPixel(desc.Format)
	pitch := w.BytesPerRow
	if pitch == 0 {
		pitch = w.Width * bpp
	}
	if pitch < w.Width*bpp {
		return fmt.Errorf("vtex: row pitch %d smaller than row size %d", pitch, w.Width*bpp)
	}
	if need := pitch*(w.Height-1) + w.Width*bpp; len(data) < need {
		return fmt.Errorf("vtex: write needs %d bytes, got %d", need, len(data))
	}
	return nil
}
