package slide

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/paulmach/orb"
)

// Mask is a binary raster in detection-level coordinates. 255 marks
// foreground, 0 background.
type Mask struct {
	W, H int
	Pix  []uint8
}

// Binarize thresholds a gray plane into a mask. A pixel is foreground
// when gray <= threshold (tissue is darker than the slide background).
func Binarize(g *GrayPlane, threshold uint8) *Mask {
	m := &Mask{W: g.W, H: g.H, Pix: make([]uint8, len(g.Pix))}
	for i, v := range g.Pix {
		if v <= threshold {
			m.Pix[i] = 255
		}
	}
	return m
}

// Close applies a morphological close (dilate then erode), iterations
// passes each, with the given structuring radius. It fills small gaps in
// the tissue mask and removes speckle. The pass is skipped when the mask
// is uniform since closing a uniform mask is a no-op.
func (m *Mask) Close(radius float64, iterations int) *Mask {
	if radius <= 0 || iterations <= 0 || m.uniform() {
		return m
	}

	img := m.toRGBA()
	for i := 0; i < iterations; i++ {
		img = effect.Dilate(img, radius)
	}
	for i := 0; i < iterations; i++ {
		img = effect.Erode(img, radius)
	}
	return maskFromRGBA(img)
}

func (m *Mask) uniform() bool {
	if len(m.Pix) == 0 {
		return true
	}
	first := m.Pix[0]
	for _, v := range m.Pix {
		if v != first {
			return false
		}
	}
	return true
}

func (m *Mask) toRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.W, m.H))
	for i, v := range m.Pix {
		off := i * 4
		img.Pix[off] = v
		img.Pix[off+1] = v
		img.Pix[off+2] = v
		img.Pix[off+3] = 255
	}
	return img
}

func maskFromRGBA(img *image.RGBA) *Mask {
	b := img.Bounds()
	m := &Mask{W: b.Dx(), H: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy())}
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			if img.Pix[off] >= 128 {
				m.Pix[y*m.W+x] = 255
			}
		}
	}
	return m
}

// Component is one connected foreground component: its pixel count and
// the exterior boundary ring traced over pixel centers.
type Component struct {
	Area int
	Ring orb.Ring
}

// Components labels 4-connected foreground components and traces each
// component's exterior boundary with Moore-neighbor tracing.
func (m *Mask) Components() []Component {
	labels := make([]int32, len(m.Pix))
	var comps []Component
	next := int32(1)

	for i, v := range m.Pix {
		if v == 0 || labels[i] != 0 {
			continue
		}
		seedX, seedY := i%m.W, i/m.W
		area := m.label(seedX, seedY, next, labels)
		ring := m.traceRing(seedX, seedY, next, labels)
		comps = append(comps, Component{Area: area, Ring: ring})
		next++
	}
	return comps
}

// label flood-fills the component containing (x, y), assigning it the
// given label. Stack-based to avoid recursion on large components.
func (m *Mask) label(x, y int, lab int32, labels []int32) int {
	type pt struct{ x, y int }
	stack := []pt{{x, y}}
	area := 0

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.x < 0 || p.x >= m.W || p.y < 0 || p.y >= m.H {
			continue
		}
		idx := p.y*m.W + p.x
		if m.Pix[idx] == 0 || labels[idx] != 0 {
			continue
		}
		labels[idx] = lab
		area++

		// 4-connected so the boundary tracer, which moves in cardinal
		// steps, can always walk the whole component. Diagonally
		// touching blobs become separate components and are recombined
		// by the polygon merge step when their rings intersect.
		stack = append(stack,
			pt{p.x - 1, p.y}, pt{p.x + 1, p.y},
			pt{p.x, p.y - 1}, pt{p.x, p.y + 1})
	}
	return area
}

// traceRing follows the component's exterior boundary using
// Moore-neighbor tracing with the right-hand rule. The seed is the
// component's first pixel in row-major order, so the tracer starts
// facing north with nothing from the same component above it. The ring
// is closed (first point repeated at the end).
func (m *Mask) traceRing(startX, startY int, lab int32, labels []int32) orb.Ring {
	inComp := func(x, y int) bool {
		if x < 0 || x >= m.W || y < 0 || y >= m.H {
			return false
		}
		return labels[y*m.W+x] == lab
	}

	// Direction vectors: 0=N, 1=E, 2=S, 3=W.
	dirs := [4]struct{ dx, dy int }{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

	type visit struct {
		x, y, facing int
	}
	seen := make(map[visit]bool)

	var ring orb.Ring
	curX, curY := startX, startY
	facing := 0

	for {
		state := visit{curX, curY, facing}
		if seen[state] {
			break
		}
		seen[state] = true
		ring = append(ring, orb.Point{float64(curX), float64(curY)})

		// Right-hand rule: scan clockwise starting one turn to the right.
		startScan := (facing + 3) % 4
		moved := false
		for i := 0; i < 4; i++ {
			d := (startScan + i) % 4
			nx, ny := curX+dirs[d].dx, curY+dirs[d].dy
			if inComp(nx, ny) {
				curX, curY = nx, ny
				facing = d
				moved = true
				break
			}
		}
		if !moved {
			// Isolated pixel.
			break
		}
	}

	ring = append(ring, ring[0])
	return ring
}
