package slide

import (
	"fmt"
	"image"
	"math"
)

// Pyramid is the multi-resolution image accessor the pipeline reads from.
// Level k has dimensions scaled by 2^k relative to level 0, so higher
// levels are coarser. Implementations own the pixel data; callers only
// hold transient window copies.
type Pyramid interface {
	// Levels returns the number of available pyramid levels (>= 1).
	Levels() int

	// Dimensions returns the pixel dimensions of the given level.
	Dimensions(level int) (width, height int, err error)

	// ReadWindow extracts the rectangular window (x, y, w, h) from the
	// given level as a fresh RGBA buffer. The window must lie entirely
	// within the level bounds.
	ReadWindow(level, x, y, w, h int) (*image.RGBA, error)

	// Close releases the underlying resources. The pyramid is unusable
	// afterwards.
	Close() error
}

// DetectionLevel picks the smallest level whose longer edge fits within
// targetSize, capped at the coarsest available level. This bounds the
// cost of thresholding and morphology to a roughly constant-size image
// regardless of slide resolution.
func DetectionLevel(p Pyramid, targetSize int) (int, error) {
	if targetSize <= 0 {
		return 0, fmt.Errorf("%w: target size must be positive, got %d", ErrDetection, targetSize)
	}
	width, height, err := p.Dimensions(0)
	if err != nil {
		return 0, fmt.Errorf("%w: reading base dimensions: %v", ErrDecode, err)
	}

	size := width
	if height > size {
		size = height
	}
	level := 0
	for size > targetSize && level < p.Levels()-1 {
		size /= 2
		level++
	}
	return level, nil
}

// LevelScale returns the coordinate scale factor when moving coordinates
// by delta levels. Positive delta moves towards level 0 (coordinates
// grow), negative delta towards coarser levels (coordinates shrink).
func LevelScale(delta int) float64 {
	return math.Pow(2, float64(delta))
}
