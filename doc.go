// Package vtex implements a virtual texture paging engine.
//
// # Overview
//
// A renderer addresses one square virtual texture far larger than GPU
// memory. The virtual address space is split into fixed-size pages; logical
// textures are given regions of it by a quadtree allocator, and pages are
// made resident lazily in a small physical cache texture. An indirection
// pyramid maps every virtual page, at every detail level, to the cache page
// holding its data.
//
// # Quick Start
//
//	import "github.com/gogpu/vtex"
//
//	eng, err := vtex.New(vtex.DefaultConfig(), source, device)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	id, err := eng.CreateTexture(4096, 4096)
//
//	// Once per frame:
//	eng.RequestPages()
//	source.Flush(device, eng.CacheTextures()[0])
//	eng.Flush()
//
// # Architecture
//
//   - RegionTree: flat-array quadtree allocator with overlap-propagated
//     usage counts and dirty flags
//   - IndirectionMap: per-level page table mirrored to an RGBA8Uint texture
//   - Engine: texture registration, request passes, physical slot pool
//   - PageSource: supplies page data, implemented by imagesource
//   - Device: texture create/destroy/upload, implemented by backend/native
//     and backend/memory
//   - shader: WGSL that resolves virtual UVs through the indirection texture
//
// # Detail Levels
//
// Level 0 is full resolution: one indirection entry per page. A region tree
// node of side s pages has detail level log2(s) and its page is the node's
// area downsampled by 2^level. Request passes serve coarse levels first, so
// a blurry fallback is resident before fine detail.
//
// # Limitations
//
// Resident slots are never evicted. Once every slot is committed, dirty
// nodes are deferred until slots return to the pool.
//
// # Concurrency
//
// Engine, RegionTree and IndirectionMap are not safe for concurrent use.
package vtex

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
