// Command vtdemo pages images into a virtual texture headlessly and dumps
// the physical cache and indirection levels as PNG files.
//
//	vtdemo [flags] [image ...]
//
// Without image arguments a set of checkerboards is generated.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/backend"
	"github.com/gogpu/vtex/backend/memory"
	"github.com/gogpu/vtex/imagesource"
)

func main() {
	var (
		virtual  = flag.Int("virtual", 4096, "virtual texture size in texels")
		page     = flag.Int("page", 128, "page size in texels")
		resident = flag.Int("resident", 64, "physical cache pages")
		out      = flag.String("out", "vtdemo-out", "output directory")
		passes   = flag.Int("passes", 8, "maximum request passes")
		linear   = flag.Bool("linear", false, "build mips in linear light")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		vtex.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := vtex.DefaultConfig()
	cfg.VirtualSize = *virtual
	cfg.PageSize = *page
	cfg.MaxResident = *resident

	if err := run(cfg, flag.Args(), *out, *passes, *linear); err != nil {
		log.Fatalf("vtdemo: %v", err)
	}
}

func run(cfg vtex.Config, paths []string, out string, passes int, linear bool) error {
	bdev, err := backend.Open(backend.BackendMemory, backend.Options{})
	if err != nil {
		return err
	}
	defer bdev.Close()
	dev, ok := bdev.(*memory.Device)
	if !ok {
		return fmt.Errorf("backend %q is not a memory device", backend.BackendMemory)
	}

	src, err := imagesource.New(imagesource.Options{Linear: linear})
	if err != nil {
		return err
	}
	engine, err := vtex.New(cfg, src, dev)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := addTextures(engine, src, paths); err != nil {
		return err
	}

	cacheTex := engine.CacheTextures()[0]
	for i := 0; i < passes; i++ {
		stats := engine.RequestPages()
		n, err := src.Flush(dev, cacheTex)
		if err != nil {
			return err
		}
		if err := engine.Flush(); err != nil {
			return err
		}
		log.Printf("pass %d: %d dirty, %d accepted, %d rejected, %d deferred, %d uploads in %v",
			i, stats.DirtyNodes, stats.Accepted, stats.Rejected, stats.Deferred, n, stats.Duration)
		if stats.SlotsCommitted == 0 && stats.Deferred == 0 {
			break
		}
	}

	s := engine.Stats()
	log.Printf("%d textures, %d allocations, %d/%d slots resident, %d requests, %d accepted",
		s.Textures, s.Allocations, s.ResidentSlots, s.ResidentSlots+s.FreeSlots, s.Requests, s.Accepted)
	if len(paths) > 0 {
		cs := src.CacheStats()
		log.Printf("decoded cache: %d files, %d/%d bytes, %d evictions",
			cs.Len, cs.Cost, cs.MaxCost, cs.Evictions)
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	return dump(dev, engine, out)
}

func addTextures(engine *vtex.Engine, src *imagesource.Source, paths []string) error {
	if len(paths) == 0 {
		for i, sz := range [][2]int{{1024, 1024}, {512, 256}, {300, 700}, {2048, 128}} {
			id, err := engine.CreateTexture(sz[0], sz[1])
			if err != nil {
				return err
			}
			if _, err := src.Add(id, checkerboard(sz[0], sz[1], i)); err != nil {
				return err
			}
		}
		return nil
	}

	chains, err := src.LoadFiles(context.Background(), paths)
	if err != nil {
		return err
	}
	for i, c := range chains {
		w, h := c.Size()
		id, err := engine.CreateTexture(w, h)
		if err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
		src.Bind(id, paths[i], c)
	}
	return nil
}

var palette = []color.RGBA{
	{R: 230, G: 80, B: 60, A: 255},
	{R: 70, G: 170, B: 90, A: 255},
	{R: 60, G: 110, B: 220, A: 255},
	{R: 230, G: 190, B: 50, A: 255},
}

func checkerboard(w, h, seed int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := palette[seed%len(palette)]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/32+y/32)%2 == 0 {
				img.SetRGBA(x, y, c)
			} else {
				img.SetRGBA(x, y, color.RGBA{R: c.R / 3, G: c.G / 3, B: c.B / 3, A: 255})
			}
		}
	}
	return img
}

func dump(dev *memory.Device, engine *vtex.Engine, out string) error {
	cache, err := dev.Image(engine.CacheTextures()[0], 0)
	if err != nil {
		return err
	}
	if err := savePNG(filepath.Join(out, "cache.png"), cache); err != nil {
		return err
	}

	ind := engine.Indirection()
	for level := 0; level < ind.Levels(); level++ {
		data, err := dev.Bytes(ind.Texture(), level)
		if err != nil {
			return err
		}
		img := visualizeIndirection(data, ind.LevelDim(level), engine.CacheSide(), ind.Levels())
		if err := savePNG(filepath.Join(out, fmt.Sprintf("indirection_%d.png", level)), img); err != nil {
			return err
		}
	}
	log.Printf("wrote cache.png and %d indirection levels to %s", ind.Levels(), out)
	return nil
}

// visualizeIndirection maps cache coordinates to red and green and the
// resident level to blue, from 64 at level 0 to 255 at the coarsest of
// levels. Pages that are not resident stay black.
func visualizeIndirection(data []byte, dim, side, levels int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, dim, dim))
	scale := 255 / max(side-1, 1)
	top := max(levels-1, 1)
	for i := 0; i+3 < len(data); i += 4 {
		if data[i+2] == 0xFF {
			continue
		}
		img.Pix[i] = uint8(int(data[i]) * scale)     //nolint:gosec // G115: bounded by side
		img.Pix[i+1] = uint8(int(data[i+1]) * scale) //nolint:gosec // G115: bounded by side
		level := min(int(data[i+2]), top)
		img.Pix[i+2] = uint8(64 + level*191/top) //nolint:gosec // G115: at most 255
		img.Pix[i+3] = 255
	}
	return img
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
