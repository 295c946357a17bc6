package slide

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Predicate is a tile filter strategy. Only two strategies exist in
// practice, so they are a small closed set rather than arbitrary
// callables: IntersectsRegion (geometry only) and VariationCheck
// (requires the tile's pixels).
type Predicate struct {
	kind    predicateKind
	region  Region
	maxMean float64
	minStd  float64
}

type predicateKind int

const (
	predicateIntersects predicateKind = iota
	predicateVariation
)

// IntersectsRegion keeps tiles whose rectangle intersects the region.
// This is the default inference-path filter: it discards tiles that sit
// inside the region's bounding box but entirely outside the tissue.
func IntersectsRegion(r Region) Predicate {
	return Predicate{kind: predicateIntersects, region: r}
}

// VariationCheck keeps tiles whose mean grayscale intensity is below
// maxMean and whose standard deviation is above minStd, rejecting
// near-blank low-information tiles.
func VariationCheck(maxMean, minStd float64) Predicate {
	return Predicate{kind: predicateVariation, maxMean: maxMean, minStd: minStd}
}

func (p Predicate) evaluate(pyr Pyramid, level int, tile Tile) (bool, error) {
	switch p.kind {
	case predicateIntersects:
		return p.region.IntersectsRect(
			float64(tile.X), float64(tile.Y),
			float64(tile.X+tile.W), float64(tile.Y+tile.H)), nil
	case predicateVariation:
		img, err := pyr.ReadWindow(level, tile.X, tile.Y, tile.W, tile.H)
		if err != nil {
			return false, fmt.Errorf("%w: reading tile %d: %v", ErrDecode, tile.ID, err)
		}
		gray := NewGrayPlane(img)
		vals := make([]float64, len(gray.Pix))
		for i, v := range gray.Pix {
			vals[i] = float64(v)
		}
		mean, std := stat.MeanStdDev(vals, nil)
		return mean < p.maxMean && std > p.minStd, nil
	default:
		return false, fmt.Errorf("unknown predicate kind %d", p.kind)
	}
}

// FilterIndex is a dense, eagerly built view over one topology keeping
// only the tiles that pass a predicate, in identifier order.
type FilterIndex struct {
	pyr   Pyramid
	topo  *Topology
	fixed *FixedSizeTopology
	trans Transform
	ids   []int
}

// BuildFilterIndex evaluates the predicate once per tile, in identifier
// order, and records the survivors remapped to dense indices 0..m-1.
// The predicate sees the clipped geometry tile; materialization via Get
// uses the fixed-size re-anchored tile so all tensors share one shape.
func BuildFilterIndex(pyr Pyramid, topo *Topology, pred Predicate, trans Transform) (*FilterIndex, error) {
	fi := &FilterIndex{
		pyr:   pyr,
		topo:  topo,
		fixed: NewFixedSizeTopology(topo),
		trans: trans,
	}
	for id := 0; id < topo.Count(); id++ {
		tile, err := topo.Tile(id)
		if err != nil {
			return nil, err
		}
		keep, err := pred.evaluate(pyr, topo.Level(), tile)
		if err != nil {
			return nil, err
		}
		if keep {
			fi.ids = append(fi.ids, id)
		}
	}
	return fi, nil
}

// Len returns the number of tiles that passed the filter.
func (fi *FilterIndex) Len() int {
	return len(fi.ids)
}

// Get materializes the tile at dense index i. The returned ordinal is
// the 1-based position within this index, a batch marker only, not the
// underlying tile identifier.
func (fi *FilterIndex) Get(i int) (ordinal int, t Tensor, err error) {
	if i < 0 || i >= len(fi.ids) {
		return 0, Tensor{}, fmt.Errorf("index %d out of range [0, %d)", i, len(fi.ids))
	}
	tile, err := fi.fixed.Tile(fi.ids[i])
	if err != nil {
		return 0, Tensor{}, err
	}
	img, err := fi.pyr.ReadWindow(fi.topo.Level(), tile.X, tile.Y, tile.W, tile.H)
	if err != nil {
		return 0, Tensor{}, fmt.Errorf("%w: reading tile %d: %v", ErrDecode, tile.ID, err)
	}
	tensor, err := fi.trans.Apply(img)
	if err != nil {
		return 0, Tensor{}, err
	}
	return i + 1, tensor, nil
}

// MultiRegionDataset unions the filtered tile sets of several regions
// behind one flat index space. Regions whose bounding window is smaller
// than a single tile are excluded entirely.
type MultiRegionDataset struct {
	indexes []*FilterIndex
	sizes   []int
	prefix  []int // exclusive prefix sums of sizes
	total   int
}

// NewMultiRegionDataset builds, for each region (already in zoom-level
// coordinates), its clipped topology over the region's bounding window
// intersected with the level bounds, filtered by region intersection.
func NewMultiRegionDataset(pyr Pyramid, regions []Region, level, tileSize, overlap int, trans Transform) (*MultiRegionDataset, error) {
	width, height, err := pyr.Dimensions(level)
	if err != nil {
		return nil, fmt.Errorf("%w: level %d dimensions: %v", ErrDecode, level, err)
	}
	levelWin := Window{X: 0, Y: 0, W: width, H: height}

	d := &MultiRegionDataset{}
	for _, region := range regions {
		win := WindowFromBound(region.Bound()).Intersect(levelWin)
		if win.W < tileSize || win.H < tileSize {
			// Smaller than one tile: zero contribution, never an error.
			continue
		}
		topo, err := BuildTopology(win, level, tileSize, tileSize, overlap)
		if err != nil {
			return nil, err
		}
		fi, err := BuildFilterIndex(pyr, topo, IntersectsRegion(region), trans)
		if err != nil {
			return nil, err
		}
		d.indexes = append(d.indexes, fi)
		d.sizes = append(d.sizes, fi.Len())
		d.prefix = append(d.prefix, d.total)
		d.total += fi.Len()
	}
	return d, nil
}

// Len returns the total number of tiles across all regions.
func (d *MultiRegionDataset) Len() int {
	return d.total
}

// Get routes a flat index to the owning region's filter index via
// binary search over the exclusive prefix sums, then delegates with the
// relative index. Flat indices outside [0, Len()) are an error.
func (d *MultiRegionDataset) Get(flat int) (ordinal int, t Tensor, err error) {
	if flat < 0 || flat >= d.total {
		return 0, Tensor{}, fmt.Errorf("flat index %d out of range [0, %d)", flat, d.total)
	}
	// upper_bound(flat) - 1 over the exclusive prefix sums.
	owner := sort.Search(len(d.prefix), func(i int) bool {
		return d.prefix[i] > flat
	}) - 1
	return d.indexes[owner].Get(flat - d.prefix[owner])
}
