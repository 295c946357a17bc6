package slide

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Window is an axis-aligned pixel rectangle at a fixed pyramid level,
// with absolute offset (X, Y).
type Window struct {
	X, Y, W, H int
}

// Intersect clips the window against another.
func (w Window) Intersect(o Window) Window {
	x1, y1 := max(w.X, o.X), max(w.Y, o.Y)
	x2, y2 := min(w.X+w.W, o.X+o.W), min(w.Y+w.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return Window{X: x1, Y: y1}
	}
	return Window{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// WindowFromBound converts a region bound to an integer window,
// expanding outwards to whole pixels.
func WindowFromBound(b orb.Bound) Window {
	x1 := int(math.Floor(b.Min[0]))
	y1 := int(math.Floor(b.Min[1]))
	x2 := int(math.Ceil(b.Max[0]))
	y2 := int(math.Ceil(b.Max[1]))
	return Window{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Tile is one grid cell of a topology: a rectangle of at most the
// topology's tile size, with an absolute pixel offset within its level
// and an identifier unique within the topology.
type Tile struct {
	ID   int
	X, Y int
	W, H int
}

// Topology is an ordered row-major grid of tiles covering a window at
// one zoom level with fixed tile size and overlap. Boundary tiles are
// clipped to the window rather than dropped or padded.
type Topology struct {
	win          Window
	tileW, tileH int
	overlap      int
	cols, rows   int
	level        int
}

// BuildTopology partitions the window into a tile grid. The window must
// be at least one tile in both dimensions; callers that cannot satisfy
// this must exclude the region entirely rather than build a degenerate
// topology.
func BuildTopology(win Window, level, tileW, tileH, overlap int) (*Topology, error) {
	if tileW <= 0 || tileH <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %dx%d", tileW, tileH)
	}
	if overlap < 0 || overlap >= tileW || overlap >= tileH {
		return nil, fmt.Errorf("overlap %d must be in [0, tile size)", overlap)
	}
	if win.W < tileW || win.H < tileH {
		return nil, fmt.Errorf("window %dx%d smaller than tile %dx%d", win.W, win.H, tileW, tileH)
	}

	strideX := tileW - overlap
	strideY := tileH - overlap
	return &Topology{
		win:     win,
		tileW:   tileW,
		tileH:   tileH,
		overlap: overlap,
		cols:    ceilDiv(win.W-overlap, strideX),
		rows:    ceilDiv(win.H-overlap, strideY),
		level:   level,
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Level returns the zoom level the topology lives at.
func (t *Topology) Level() int { return t.level }

// Window returns the covered window.
func (t *Topology) Window() Window { return t.win }

// Count returns the number of tiles in the grid.
func (t *Topology) Count() int { return t.cols * t.rows }

// Tile returns the tile with the given row-major identifier, clipped to
// the window boundary.
func (t *Topology) Tile(id int) (Tile, error) {
	if id < 0 || id >= t.Count() {
		return Tile{}, fmt.Errorf("tile id %d out of range [0, %d)", id, t.Count())
	}
	col := id % t.cols
	row := id / t.cols

	x := col * (t.tileW - t.overlap)
	y := row * (t.tileH - t.overlap)
	w := min(t.tileW, t.win.W-x)
	h := min(t.tileH, t.win.H-y)

	return Tile{
		ID: id,
		X:  t.win.X + x,
		Y:  t.win.Y + y,
		W:  w,
		H:  h,
	}, nil
}

// FixedSizeTopology adapts a topology so every materialized tile has
// the full logical tile size: a clipped boundary tile is re-anchored
// backwards inside the window instead of being padded with synthetic
// pixels. The base topology's window is at least one tile in each
// dimension, so the shifted origin always stays in bounds.
type FixedSizeTopology struct {
	*Topology
}

// NewFixedSizeTopology wraps a topology with the fixed-size adapter.
func NewFixedSizeTopology(t *Topology) *FixedSizeTopology {
	return &FixedSizeTopology{Topology: t}
}

// Tile returns the full-size tile for the given identifier.
func (f *FixedSizeTopology) Tile(id int) (Tile, error) {
	tile, err := f.Topology.Tile(id)
	if err != nil {
		return Tile{}, err
	}
	if tile.W < f.tileW {
		tile.X = f.win.X + f.win.W - f.tileW
		tile.W = f.tileW
	}
	if tile.H < f.tileH {
		tile.Y = f.win.Y + f.win.H - f.tileH
		tile.H = f.tileH
	}
	return tile, nil
}
