package slide

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// ImagePyramid is an in-memory Pyramid built from a single decoded image
// by repeated 2x downsampling. It backs plain raster inputs (PNG, JPEG,
// TIFF) and every synthetic slide used in tests; proprietary scanner
// formats are expected to arrive through a dedicated Pyramid
// implementation instead.
type ImagePyramid struct {
	levels []*image.RGBA
}

// defaultMinLevelEdge stops automatic level generation once the longer
// edge of the coarsest level drops to this size.
const defaultMinLevelEdge = 1024

// NewImagePyramid builds a pyramid with the given number of levels.
// levels <= 0 generates levels automatically until the longer edge of
// the coarsest level is at most defaultMinLevelEdge.
func NewImagePyramid(img image.Image, levels int) *ImagePyramid {
	base := toRGBA(img)
	p := &ImagePyramid{levels: []*image.RGBA{base}}

	for {
		if levels > 0 && len(p.levels) >= levels {
			break
		}
		prev := p.levels[len(p.levels)-1]
		w := prev.Bounds().Dx() / 2
		h := prev.Bounds().Dy() / 2
		if w < 1 || h < 1 {
			break
		}
		if levels <= 0 {
			long := prev.Bounds().Dx()
			if prev.Bounds().Dy() > long {
				long = prev.Bounds().Dy()
			}
			if long <= defaultMinLevelEdge {
				break
			}
		}
		down := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(down, down.Bounds(), prev, prev.Bounds(), xdraw.Src, nil)
		p.levels = append(p.levels, down)
	}
	return p
}

// OpenImagePyramid decodes a raster file and builds an automatic
// pyramid over it.
func OpenImagePyramid(path string) (*ImagePyramid, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDecode, path, err)
	}
	return NewImagePyramid(img, 0), nil
}

func (p *ImagePyramid) Levels() int {
	return len(p.levels)
}

func (p *ImagePyramid) Dimensions(level int) (width, height int, err error) {
	if level < 0 || level >= len(p.levels) {
		return 0, 0, fmt.Errorf("%w: level %d out of range [0, %d)", ErrDecode, level, len(p.levels))
	}
	b := p.levels[level].Bounds()
	return b.Dx(), b.Dy(), nil
}

func (p *ImagePyramid) ReadWindow(level, x, y, w, h int) (*image.RGBA, error) {
	if level < 0 || level >= len(p.levels) {
		return nil, fmt.Errorf("%w: level %d out of range [0, %d)", ErrDecode, level, len(p.levels))
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty window %dx%d", ErrDecode, w, h)
	}
	src := p.levels[level]
	b := src.Bounds()
	if x < 0 || y < 0 || x+w > b.Dx() || y+h > b.Dy() {
		return nil, fmt.Errorf("%w: window (%d,%d %dx%d) outside level %d bounds %dx%d",
			ErrDecode, x, y, w, h, level, b.Dx(), b.Dy())
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		srcOff := src.PixOffset(x, y+row)
		dstOff := out.PixOffset(0, row)
		copy(out.Pix[dstOff:dstOff+w*4], src.Pix[srcOff:srcOff+w*4])
	}
	return out, nil
}

// Close drops the level buffers. Reads after Close fail.
func (p *ImagePyramid) Close() error {
	p.levels = nil
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	// imaging.Clone normalizes any image type to NRGBA; convert once.
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, nrgba.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
