// Package imagesource provides a vtex.PageSource backed by decoded images.
//
// Each engine texture id is bound to a MipChain: the image and every
// half-size level down to 1x1. RequestPage accepts any request whose texture
// and level exist and queues it; Flush crops the queued rectangles out of the
// chain and writes them into the physical cache texture through a
// vtex.Device. Call Engine.Flush after Source.Flush so the indirection map
// never points at a page whose texels have not been uploaded.
//
//	src, _ := imagesource.New(imagesource.Options{})
//	engine, _ := vtex.New(cfg, src, dev)
//	id, _ := engine.CreateTexture(img.Bounds().Dx(), img.Bounds().Dy())
//	src.Add(id, img)
//	engine.RequestPages()
//	src.Flush(dev, engine.CacheTextures()[0])
//	engine.Flush()
//
// Files can be decoded in parallel with LoadFiles (PNG, JPEG, GIF, BMP, TIFF
// and WebP are registered) and kept fresh with Watch, which reloads a bound
// file when it changes on disk and reports the texture id so the caller can
// invalidate it.
//
// Source is safe for concurrent use.
package imagesource
