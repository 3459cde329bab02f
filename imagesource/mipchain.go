package imagesource

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
	xdraw "golang.org/x/image/draw"
)

// MipChain is an image and its successively halved levels, down to 1x1.
// Level l is max(1, w>>l) by max(1, h>>l) texels.
type MipChain struct {
	// Path is the file the chain was decoded from, empty for in-memory images.
	Path   string
	levels []*image.RGBA
}

// NewMipChain converts img to RGBA and builds its mip levels. With linear
// set, levels are averaged in linear light instead of sRGB values.
func NewMipChain(img image.Image, linear bool) (*MipChain, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.Wrapf(ErrEmptyImage, "bounds %v", b)
	}

	base := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(base, base.Bounds(), img, b.Min, draw.Src)

	n := bits.Len(uint(max(b.Dx(), b.Dy()))) //nolint:gosec // G115: bounds are positive
	levels := make([]*image.RGBA, 0, n)
	levels = append(levels, base)
	for l := 1; l < n; l++ {
		prev := levels[l-1]
		w := max(1, b.Dx()>>l)
		h := max(1, b.Dy()>>l)
		next := image.NewRGBA(image.Rect(0, 0, w, h))
		if linear {
			downsampleLinear(next, prev)
		} else {
			xdraw.ApproxBiLinear.Scale(next, next.Bounds(), prev, prev.Bounds(), xdraw.Src, nil)
		}
		levels = append(levels, next)
	}
	return &MipChain{levels: levels}, nil
}

// Levels returns the number of levels.
func (c *MipChain) Levels() int { return len(c.levels) }

// Level returns level l, or nil when out of range.
func (c *MipChain) Level(l int) *image.RGBA {
	if l < 0 || l >= len(c.levels) {
		return nil
	}
	return c.levels[l]
}

// Size returns the size of level 0.
func (c *MipChain) Size() (w, h int) {
	b := c.levels[0].Bounds()
	return b.Dx(), b.Dy()
}

// Bytes returns the memory held by all levels.
func (c *MipChain) Bytes() int64 {
	var n int64
	for _, l := range c.levels {
		n += int64(len(l.Pix))
	}
	return n
}

var srgbToLinear = func() (t [256]float64) {
	for i := range t {
		v := float64(i) / 255
		if v <= 0.04045 {
			t[i] = v / 12.92
		} else {
			t[i] = math.Pow((v+0.055)/1.055, 2.4)
		}
	}
	return t
}()

func linearToSRGB(v float64) uint8 {
	if v <= 0.0031308 {
		v *= 12.92
	} else {
		v = 1.055*math.Pow(v, 1/2.4) - 0.055
	}
	return uint8(math.Round(min(max(v, 0), 1) * 255))
}

// downsampleLinear box-filters src into dst, which is half its size or 1
// along an axis src is already 1 wide. Alpha is averaged as is.
func downsampleLinear(dst, src *image.RGBA) {
	sb := src.Bounds()
	db := dst.Bounds()
	for y := 0; y < db.Dy(); y++ {
		for x := 0; x < db.Dx(); x++ {
			var r, g, b, a float64
			var n float64
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					sx, sy := 2*x+dx, 2*y+dy
					if sx >= sb.Dx() || sy >= sb.Dy() {
						continue
					}
					c := src.RGBAAt(sx, sy)
					r += srgbToLinear[c.R]
					g += srgbToLinear[c.G]
					b += srgbToLinear[c.B]
					a += float64(c.A)
					n++
				}
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: linearToSRGB(r / n),
				G: linearToSRGB(g / n),
				B: linearToSRGB(b / n),
				A: uint8(math.Round(a / n)),
			})
		}
	}
}
