package imagesource

import "github.com/cockroachdb/errors"

var (
	// ErrUnsupportedFormat is returned for cache formats the source cannot produce.
	ErrUnsupportedFormat = errors.New("imagesource: unsupported cache format")

	// ErrEmptyImage is returned when an image has no pixels.
	ErrEmptyImage = errors.New("imagesource: empty image")

	// ErrNoFiles is returned by Watch when no texture is bound to a file.
	ErrNoFiles = errors.New("imagesource: no bound files to watch")
)
