package slide

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DetectorParams tunes foreground detection.
type DetectorParams struct {
	// TargetSize bounds the longer edge of the detection image; the
	// smallest level that fits is used, capped at the coarsest level.
	TargetSize int `yaml:"target_size"`

	// MorphIterations is the number of dilate and erode passes of the
	// morphological close.
	MorphIterations int `yaml:"morph_iterations"`

	// AreaRatio filters connected components: a component is kept only
	// when its pixel area exceeds areaRatio * width * height / 100 of
	// the detection image.
	AreaRatio float64 `yaml:"area_ratio"`

	// MaxAspect rejects merged regions whose bounding-box aspect ratio
	// exceeds this value (degenerate slivers).
	MaxAspect float64 `yaml:"max_aspect"`
}

// DefaultDetectorParams returns the tuned production values.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		TargetSize:      2048,
		MorphIterations: 3,
		AreaRatio:       0.005,
		MaxAspect:       20,
	}
}

// Validate checks detector parameter ranges.
func (p DetectorParams) Validate() error {
	if p.TargetSize <= 0 {
		return fmt.Errorf("target_size must be positive, got %d", p.TargetSize)
	}
	if p.MorphIterations < 0 {
		return fmt.Errorf("morph_iterations must be >= 0, got %d", p.MorphIterations)
	}
	if p.AreaRatio < 0 {
		return fmt.Errorf("area_ratio must be >= 0, got %g", p.AreaRatio)
	}
	if p.MaxAspect <= 1 {
		return fmt.Errorf("max_aspect must be > 1, got %g", p.MaxAspect)
	}
	return nil
}

// Otsu histogram band: pixels at or outside these bounds are excluded
// from the threshold statistics (near-black scanner artifacts and
// near-white background).
const (
	otsuBandLow  = 75
	otsuBandHigh = 250
)

// ForegroundDetector locates tissue regions on a down-sampled view of
// the slide and returns their polygons in level-0 coordinates.
type ForegroundDetector struct {
	params DetectorParams
	log    zerolog.Logger
}

// NewForegroundDetector creates a detector with the given parameters.
func NewForegroundDetector(params DetectorParams, log zerolog.Logger) *ForegroundDetector {
	return &ForegroundDetector{params: params, log: log}
}

// Detect runs the full detection pipeline: pick the detection level,
// threshold with band-restricted Otsu, close the mask, extract and
// filter components, merge intersecting polygons, and rescale the
// survivors to full resolution. The stage is deterministic: the same
// image and parameters always yield the same region set.
func (d *ForegroundDetector) Detect(p Pyramid) ([]Region, error) {
	level, err := DetectionLevel(p, d.params.TargetSize)
	if err != nil {
		return nil, err
	}
	width, height, err := p.Dimensions(level)
	if err != nil {
		return nil, fmt.Errorf("%w: level %d dimensions: %v", ErrDecode, level, err)
	}
	img, err := p.ReadWindow(level, 0, 0, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: reading detection level %d: %v", ErrDecode, level, err)
	}

	gray := NewGrayPlane(img)
	threshold, err := OtsuThreshold(gray, otsuBandLow, otsuBandHigh)
	if err != nil {
		return nil, err
	}

	maxDim := width
	if height > maxDim {
		maxDim = height
	}
	kernel := int(0.005 * float64(maxDim))
	if kernel < 3 {
		kernel = 3
	}
	if kernel%2 == 0 {
		kernel--
	}

	mask := Binarize(gray, threshold)
	mask = mask.Close(float64(kernel-1)/2, d.params.MorphIterations)

	minArea := int(d.params.AreaRatio * float64(width) * float64(height) / 100)
	var regions []Region
	for _, comp := range mask.Components() {
		if comp.Area <= minArea {
			continue
		}
		region, err := NewRegion(comp.Ring)
		if err != nil {
			// Malformed component boundary: drop it, keep going.
			d.log.Warn().Err(err).Int("area", comp.Area).Msg("dropping degenerate component")
			continue
		}
		regions = append(regions, region)
	}

	merged := MergeIntersecting(regions)

	var out []Region
	for _, region := range merged {
		if region.AspectRatio() >= d.params.MaxAspect {
			continue
		}
		out = append(out, region.RescalePow2(level))
	}

	d.log.Debug().
		Int("level", level).
		Uint8("threshold", threshold).
		Int("components", len(regions)).
		Int("regions", len(out)).
		Msg("foreground detection done")
	return out, nil
}
