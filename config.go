package vtex

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// Default engine settings.
const (
	// DefaultVirtualSize is the default virtual address space side (16384).
	DefaultVirtualSize = 16 * 1024

	// DefaultPageSize is the default page side in texels (128).
	DefaultPageSize = 128

	// DefaultMaxResident is the default number of physical page slots.
	DefaultMaxResident = 256

	// MaxCacheSide is the largest physical cache grid side. Cache page
	// coordinates are stored as uint8 in indirection entries.
	MaxCacheSide = 256
)

// Config holds paging engine configuration.
type Config struct {
	// VirtualSize is the side of the square virtual address space in texels.
	// Must be a power of 2.
	VirtualSize int

	// PageSize is the side of a square page in texels.
	// Must be a power of 2 and at most VirtualSize.
	PageSize int

	// MaxResident is the number of physical page slots in the cache.
	MaxResident int

	// Formats lists the pixel formats of the physical cache textures.
	// One cache texture is created per format; all share the same page layout.
	Formats []gputypes.TextureFormat

	// StartCorner selects which child quadrant the region allocator tries
	// first at every level.
	StartCorner Corner
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		VirtualSize: DefaultVirtualSize,
		PageSize:    DefaultPageSize,
		MaxResident: DefaultMaxResident,
		Formats:     []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
		StartCorner: TopLeft,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validateDims(c.VirtualSize, c.PageSize); err != nil {
		return err
	}
	if c.MaxResident < 1 {
		return &ConfigError{Field: "MaxResident", Reason: "must be at least 1"}
	}
	if cacheSide(c.MaxResident) > MaxCacheSide {
		return &ConfigError{Field: "MaxResident", Reason: "cache grid side must be at most 256"}
	}
	if len(c.Formats) == 0 {
		return &ConfigError{Field: "Formats", Reason: "must list at least one format"}
	}
	for _, f := range c.Formats {
		if BytesPerPixel(f) == 0 {
			return &ConfigError{Field: "Formats", Reason: fmt.Sprintf("unsupported format %v", f)}
		}
	}
	if c.StartCorner > BottomRight {
		return &ConfigError{Field: "StartCorner", Reason: "unknown corner"}
	}
	return nil
}

// validateDims checks the virtual/page size pair shared by the region tree
// and the indirection map.
func validateDims(virtualSize, pageSize int) error {
	if !isPow2(virtualSize) {
		return &ConfigError{Field: "VirtualSize", Reason: "must be power of 2"}
	}
	if !isPow2(pageSize) {
		return &ConfigError{Field: "PageSize", Reason: "must be power of 2"}
	}
	if pageSize > virtualSize {
		return &ConfigError{Field: "PageSize", Reason: "must be at most VirtualSize"}
	}
	return nil
}

// cacheSide returns the side of the smallest square grid holding n pages.
func cacheSide(n int) int {
	side := int(math.Ceil(math.Sqrt(float64(n))))
	for side*side < n {
		side++
	}
	return side
}
