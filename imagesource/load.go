package imagesource

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeFile decodes an image file of any registered format.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "imagesource: open")
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "imagesource: decode %s", path)
	}
	if img.Bounds().Empty() {
		return nil, errors.Wrapf(ErrEmptyImage, "%s (%s)", path, format)
	}
	return img, nil
}

// LoadFile returns the mip chain of path, decoding it unless a cached chain
// exists. Decoding runs outside the cache lock; concurrent loads of the same
// uncached path may decode it twice, and the last one is cached.
func (s *Source) LoadFile(path string) (*MipChain, error) {
	path = filepath.Clean(path)
	if c, ok := s.files.Get(path); ok {
		return c, nil
	}
	c, err := s.decode(path)
	if err != nil {
		return nil, err
	}
	s.files.Set(path, c)
	return c, nil
}

func (s *Source) decode(path string) (*MipChain, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	chain, err := NewMipChain(img, s.opts.Linear)
	if err != nil {
		return nil, errors.Wrapf(err, "imagesource: %s", path)
	}
	chain.Path = path
	w, h := chain.Size()
	s.log.Debug("imagesource: decoded", "path", path, "width", w, "height", h, "levels", chain.Levels())
	return chain, nil
}

// LoadFiles loads paths in parallel, at most Options.Workers at a time.
// Chains are returned in the order of paths. The first error cancels the
// remaining loads.
func (s *Source) LoadFiles(ctx context.Context, paths []string) ([]*MipChain, error) {
	chains := make([]*MipChain, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := s.LoadFile(p)
			if err != nil {
				return err
			}
			chains[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chains, nil
}

// reload decodes path again, bypassing the cache, and rebinds every texture
// bound to it. It returns the affected texture ids.
func (s *Source) reload(path string) ([]int, error) {
	s.files.Delete(path)
	chain, err := s.LoadFile(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, p := range s.paths {
		if p == path {
			s.chains[id] = chain
			ids = append(ids, id)
		}
	}
	return ids, nil
}
