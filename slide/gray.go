package slide

import (
	"fmt"
	"image"
)

// GrayPlane is a single-channel 8-bit image with row-major layout.
// Pixels are the channel mean of the source RGB, matching the grayscale
// convention the tissue detector was tuned with (not the luminance
// weighting used for display).
type GrayPlane struct {
	W, H int
	Pix  []uint8
}

// NewGrayPlane converts an RGBA image to a channel-mean gray plane.
func NewGrayPlane(img *image.RGBA) *GrayPlane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &GrayPlane{W: w, H: h, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			off := row + x*4
			sum := int(img.Pix[off]) + int(img.Pix[off+1]) + int(img.Pix[off+2])
			g.Pix[y*w+x] = uint8(sum / 3)
		}
	}
	return g
}

// At returns the gray value at (x, y). No bounds checking.
func (g *GrayPlane) At(x, y int) uint8 {
	return g.Pix[y*g.W+x]
}

// OtsuThreshold computes Otsu's threshold over the gray values strictly
// inside (lo, hi). Restricting the histogram keeps near-black artifacts
// and near-white background out of the statistics while the threshold
// itself still applies to the full image. Returns a detection error when
// no pixel falls inside the band.
func OtsuThreshold(g *GrayPlane, lo, hi uint8) (uint8, error) {
	var hist [256]int
	total := 0
	for _, v := range g.Pix {
		if v > lo && v < hi {
			hist[v]++
			total++
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: no pixels in intensity band (%d, %d)", ErrDetection, lo, hi)
	}

	sum := 0.0
	for v, n := range hist {
		sum += float64(v) * float64(n)
	}

	var (
		sumBack    float64
		weightBack int
		bestVar    = -1.0
		threshold  uint8
	)
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * float64(hist[t])

		meanBack := sumBack / float64(weightBack)
		meanFore := (sum - sumBack) / float64(weightFore)
		diff := meanBack - meanFore
		between := float64(weightBack) * float64(weightFore) * diff * diff
		if between > bestVar {
			bestVar = between
			threshold = uint8(t)
		}
	}
	return threshold, nil
}
