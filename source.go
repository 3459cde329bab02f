package vtex

// PageSource supplies texel data for page requests issued by
// Engine.RequestPages.
//
// RequestPage is called synchronously and must return immediately.
// Returning true commits the claimed physical slot to the request and makes
// the engine write the page's indirection entry; the actual upload may be
// queued and completed later. Returning false (e.g. data not decoded yet)
// leaves the page non-resident so a later pass retries it.
//
// textureIndex is the id returned by Engine.CreateTexture. src is the texel
// rectangle at mip level `level` of that texture, in texture-local
// coordinates. dst is where src's top-left corner lands in the physical
// cache texture(s).
type PageSource interface {
	RequestPage(textureIndex, level int, dst Point, src Rect) bool
}

// PageSourceFunc adapts an ordinary function to the PageSource interface.
type PageSourceFunc func(textureIndex, level int, dst Point, src Rect) bool

// RequestPage calls f(textureIndex, level, dst, src).
func (f PageSourceFunc) RequestPage(textureIndex, level int, dst Point, src Rect) bool {
	return f(textureIndex, level, dst, src)
}
