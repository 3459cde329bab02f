package vtex

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// IndirectionFormat is the texel format of the indirection texture: one
// RGBA8 unsigned-integer texel per entry.
const IndirectionFormat = gputypes.TextureFormatRGBA8Uint

// entrySize is the size of one IndirectionEntry in bytes.
const entrySize = 4

// IndirectionEntry maps a virtual page to a physical cache page.
type IndirectionEntry struct {
	CacheX   uint8
	CacheY   uint8
	Level    uint8
	Reserved uint8
}

// NotResident is the entry of a virtual page with no resident data.
var NotResident = IndirectionEntry{CacheX: 0xFF, CacheY: 0xFF, Level: 0xFF, Reserved: 0xFF}

// Resident reports whether the entry points at a cache page.
func (e IndirectionEntry) Resident() bool {
	return e != NotResident
}

// Packed returns the entry as a little-endian uint32 (CacheX in the low byte).
func (e IndirectionEntry) Packed() uint32 {
	return uint32(e.CacheX) | uint32(e.CacheY)<<8 | uint32(e.Level)<<16 | uint32(e.Reserved)<<24
}

// String returns a string representation of the entry.
func (e IndirectionEntry) String() string {
	if !e.Resident() {
		return "NotResident"
	}
	return fmt.Sprintf("Entry(cache=%d,%d level=%d)", e.CacheX, e.CacheY, e.Level)
}

// IndirectionMap is a mip pyramid of IndirectionEntry records, one per
// virtual page per detail level, mirrored into a GPU texture for shader
// lookup. Level 0 has one entry per page of the virtual address space; each
// further level has a quarter of the entries.
//
// IndirectionMap is not safe for concurrent use.
type IndirectionMap struct {
	virtualSize int
	pageSize    int
	dim         int

	data    []byte // all levels, entrySize bytes per entry
	offsets []int  // byte offset of each level in data

	dev   Device
	tex   TextureID
	label string
}

// NewIndirectionMap creates an indirection pyramid for a virtual address
// space of virtualSize texels split into pages of pageSize. Every entry
// starts as NotResident.
func NewIndirectionMap(virtualSize, pageSize int) (*IndirectionMap, error) {
	if err := validateDims(virtualSize, pageSize); err != nil {
		return nil, err
	}

	dim := virtualSize / pageSize
	levels := bits.Len(uint(min(dim, pageSize)))

	m := &IndirectionMap{
		virtualSize: virtualSize,
		pageSize:    pageSize,
		dim:         dim,
		offsets:     make([]int, levels),
	}

	total := 0
	levelSize := dim * dim
	for l := 0; l < levels; l++ {
		m.offsets[l] = total * entrySize
		total += levelSize
		levelSize /= 4
	}

	m.data = make([]byte, total*entrySize)
	for i := range m.data {
		m.data[i] = 0xFF
	}
	return m, nil
}

// Levels returns the number of detail levels.
func (m *IndirectionMap) Levels() int { return len(m.offsets) }

// LevelDim returns the side of the entry grid at level.
func (m *IndirectionMap) LevelDim(level int) int { return max(1, m.dim>>level) }

// LevelData returns the raw RGBA8 bytes of a level. The slice aliases the
// map's storage.
func (m *IndirectionMap) LevelData(level int) []byte {
	d := m.LevelDim(level)
	off := m.offsets[level]
	return m.data[off : off+d*d*entrySize]
}

// index returns the byte offset of an entry, or -1 when out of range.
func (m *IndirectionMap) index(level, pageX, pageY int) int {
	if level < 0 || level >= len(m.offsets) {
		return -1
	}
	d := m.LevelDim(level)
	if pageX < 0 || pageY < 0 || pageX >= d || pageY >= d {
		return -1
	}
	return m.offsets[level] + (pageY*d+pageX)*entrySize
}

// Set points the virtual page (pageX, pageY) at level to cache page
// (cacheX, cacheY). Out-of-range coordinates are ignored.
func (m *IndirectionMap) Set(level, pageX, pageY int, cacheX, cacheY uint8) {
	i := m.index(level, pageX, pageY)
	if i < 0 {
		Logger().Debug("vtex: indirection write out of range",
			"level", level, "pageX", pageX, "pageY", pageY)
		return
	}
	m.data[i] = cacheX
	m.data[i+1] = cacheY
	m.data[i+2] = uint8(level) //nolint:gosec // G115: level < Levels() <= 32
	m.data[i+3] = 0xFF
}

// Clear marks the virtual page (pageX, pageY) at level as not resident.
func (m *IndirectionMap) Clear(level, pageX, pageY int) {
	if i := m.index(level, pageX, pageY); i >= 0 {
		copy(m.data[i:i+entrySize], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
}

// Entry returns the entry of virtual page (pageX, pageY) at level.
// Out-of-range coordinates return NotResident.
func (m *IndirectionMap) Entry(level, pageX, pageY int) IndirectionEntry {
	i := m.index(level, pageX, pageY)
	if i < 0 {
		return NotResident
	}
	return IndirectionEntry{
		CacheX:   m.data[i],
		CacheY:   m.data[i+1],
		Level:    m.data[i+2],
		Reserved: m.data[i+3],
	}
}

// ResidentCount returns the number of resident entries at level.
func (m *IndirectionMap) ResidentCount(level int) int {
	data := m.LevelData(level)
	n := 0
	for i := 0; i < len(data); i += entrySize {
		if data[i+2] != 0xFF {
			n++
		}
	}
	return n
}

// Attach creates the GPU mirror texture on dev (one texel per entry, one
// mip per level) and uploads the current contents.
func (m *IndirectionMap) Attach(dev Device, label string) error {
	if dev == nil {
		return ErrNoDevice
	}
	m.Release()

	tex, err := dev.CreateTexture(m.Descriptor(label))
	if err != nil {
		return fmt.Errorf("vtex: create indirection texture: %w", err)
	}
	m.dev = dev
	m.tex = tex
	m.label = label
	return m.Flush()
}

// Descriptor returns the texture descriptor of the GPU mirror.
func (m *IndirectionMap) Descriptor(label string) TextureDescriptor {
	return TextureDescriptor{
		Label:         label,
		Width:         m.dim,
		Height:        m.dim,
		MipLevelCount: m.Levels(),
		Format:        IndirectionFormat,
		Usage:         IndirectionTextureUsage,
	}
}

// Texture returns the GPU mirror texture, or InvalidTexture when detached.
func (m *IndirectionMap) Texture() TextureID { return m.tex }

// Flush re-uploads every level in full to the GPU mirror. Entry counts are
// small (4 bytes per page address) so no diffing is done. Flush is a no-op
// when no device is attached.
func (m *IndirectionMap) Flush() error {
	if m.dev == nil {
		return nil
	}
	for level := range m.offsets {
		d := m.LevelDim(level)
		w := TextureWrite{
			Texture:     m.tex,
			MipLevel:    level,
			Width:       d,
			Height:      d,
			BytesPerRow: d * entrySize,
		}
		if err := m.dev.WriteTexture(w, m.LevelData(level)); err != nil {
			return fmt.Errorf("vtex: upload indirection level %d: %w", level, err)
		}
	}
	return nil
}

// Release destroys the GPU mirror texture, if any.
func (m *IndirectionMap) Release() {
	if m.dev != nil && m.tex != InvalidTexture {
		m.dev.DestroyTexture(m.tex)
	}
	m.dev = nil
	m.tex = InvalidTexture
}
