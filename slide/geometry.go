package slide

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// simplifyTolerance is the Douglas-Peucker tolerance (in pixels of the
// ring's level) applied to traced boundary rings. Mask tracing emits a
// staircase of unit steps; collapsing collinear runs keeps the
// pairwise intersection tests cheap without moving the boundary by more
// than a pixel.
const simplifyTolerance = 1.0

// Region is an immutable tissue region: one or more simple polygons in
// the coordinate space of some pyramid level. Regions produced by
// detection start in detection-level coordinates and are rescaled to
// other levels with RescalePow2.
type Region struct {
	geom orb.MultiPolygon
}

// NewRegion builds a region from a closed boundary ring. The ring is
// simplified and validated; degenerate rings (fewer than three distinct
// vertices or effectively zero area) produce a geometry error and are
// expected to be dropped by the caller.
func NewRegion(ring orb.Ring) (Region, error) {
	if len(ring) < 4 {
		return Region{}, fmt.Errorf("%w: ring has %d points, need a closed triangle at least", ErrGeometry, len(ring))
	}
	poly := orb.Polygon{ring}
	simplified, ok := simplify.DouglasPeucker(simplifyTolerance).Simplify(poly.Clone()).(orb.Polygon)
	if !ok || len(simplified) == 0 || len(simplified[0]) < 4 {
		return Region{}, fmt.Errorf("%w: ring degenerated during simplification", ErrGeometry)
	}
	r := Region{geom: orb.MultiPolygon{simplified}}
	if r.Area() <= 0 {
		return Region{}, fmt.Errorf("%w: zero-area ring", ErrGeometry)
	}
	return r, nil
}

// Bound returns the region's bounding box.
func (r Region) Bound() orb.Bound {
	return r.geom.Bound()
}

// Area returns the total polygon area.
func (r Region) Area() float64 {
	return math.Abs(planar.Area(r.geom))
}

// AspectRatio returns longer bound edge / shorter bound edge of the
// bounding box. Degenerate (zero-extent) bounds return +Inf.
func (r Region) AspectRatio() float64 {
	b := r.Bound()
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w <= 0 || h <= 0 {
		return math.Inf(1)
	}
	if w > h {
		return w / h
	}
	return h / w
}

// ContainsPoint reports whether the point lies inside the region.
func (r Region) ContainsPoint(p orb.Point) bool {
	return planar.MultiPolygonContains(r.geom, p)
}

// IntersectsRect reports whether the axis-aligned rectangle
// [minX,maxX]x[minY,maxY] intersects the region.
func (r Region) IntersectsRect(minX, minY, maxX, maxY float64) bool {
	b := r.Bound()
	if maxX < b.Min[0] || minX > b.Max[0] || maxY < b.Min[1] || minY > b.Max[1] {
		return false
	}

	// Any polygon vertex inside the rectangle.
	for _, poly := range r.geom {
		for _, ring := range poly {
			for _, p := range ring {
				if p[0] >= minX && p[0] <= maxX && p[1] >= minY && p[1] <= maxY {
					return true
				}
			}
		}
	}

	// Any rectangle corner inside the region.
	corners := [4]orb.Point{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
	for _, c := range corners {
		if r.ContainsPoint(c) {
			return true
		}
	}

	// Any boundary segment crossing a rectangle edge.
	edges := [4][2]orb.Point{
		{{minX, minY}, {maxX, minY}},
		{{maxX, minY}, {maxX, maxY}},
		{{maxX, maxY}, {minX, maxY}},
		{{minX, maxY}, {minX, minY}},
	}
	for _, poly := range r.geom {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				for _, e := range edges {
					if segmentsIntersect(ring[i], ring[i+1], e[0], e[1]) {
						return true
					}
				}
			}
		}
	}
	return false
}

// Intersects reports whether two regions overlap or touch.
func (r Region) Intersects(o Region) bool {
	rb, ob := r.Bound(), o.Bound()
	if ob.Max[0] < rb.Min[0] || ob.Min[0] > rb.Max[0] || ob.Max[1] < rb.Min[1] || ob.Min[1] > rb.Max[1] {
		return false
	}

	// Vertex containment either way covers full enclosure.
	for _, poly := range r.geom {
		for _, ring := range poly {
			for _, p := range ring {
				if o.ContainsPoint(p) {
					return true
				}
			}
		}
	}
	for _, poly := range o.geom {
		for _, ring := range poly {
			for _, p := range ring {
				if r.ContainsPoint(p) {
					return true
				}
			}
		}
	}

	// Boundary crossings.
	for _, pa := range r.geom {
		for _, ra := range pa {
			for i := 0; i+1 < len(ra); i++ {
				for _, pb := range o.geom {
					for _, rb := range pb {
						for j := 0; j+1 < len(rb); j++ {
							if segmentsIntersect(ra[i], ra[i+1], rb[j], rb[j+1]) {
								return true
							}
						}
					}
				}
			}
		}
	}
	return false
}

// Union combines two regions into one multi-polygon region. The member
// polygons are kept as-is; downstream consumers only need the combined
// bound and the combined intersection predicate, not a dissolved
// boundary.
func (r Region) Union(o Region) Region {
	geom := make(orb.MultiPolygon, 0, len(r.geom)+len(o.geom))
	geom = append(geom, r.geom.Clone()...)
	geom = append(geom, o.geom.Clone()...)
	return Region{geom: geom}
}

// RescalePow2 returns a copy with every coordinate multiplied by
// 2^delta. Positive delta converts towards level 0 (finer), negative
// towards coarser levels.
func (r Region) RescalePow2(delta int) Region {
	scale := LevelScale(delta)
	out := r.geom.Clone()
	for _, poly := range out {
		for _, ring := range poly {
			for i := range ring {
				ring[i][0] *= scale
				ring[i][1] *= scale
			}
		}
	}
	return Region{geom: out}
}

// Polygons exposes a copy of the region's polygon set, e.g. for
// rendering.
func (r Region) Polygons() orb.MultiPolygon {
	return r.geom.Clone()
}

// MergeIntersecting repeatedly merges any two regions whose geometries
// intersect until no pair does. Pairwise re-scanning is quadratic per
// pass, which is fine here: after the area filter the region count on
// real slides is single digits.
func MergeIntersecting(regions []Region) []Region {
	toCheck := make([]Region, len(regions))
	copy(toCheck, regions)
	var checked []Region

	for len(toCheck) > 0 {
		cur := toCheck[0]
		toCheck = toCheck[1:]
		merged := false
		for i := range toCheck {
			if cur.Intersects(toCheck[i]) {
				toCheck[i] = toCheck[i].Union(cur)
				merged = true
				break
			}
		}
		if !merged {
			checked = append(checked, cur)
		}
	}
	return checked
}

// segmentsIntersect reports whether segments p1-p2 and p3-p4 intersect,
// including touching endpoints and collinear overlap.
func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

// cross returns the cross product of (b-a) x (c-a).
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment assumes c is collinear with a-b and reports whether it lies
// within the segment's bounding box.
func onSegment(a, b, c orb.Point) bool {
	return math.Min(a[0], b[0]) <= c[0] && c[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= c[1] && c[1] <= math.Max(a[1], b[1])
}
