// Package geo provides point-in-polygon classification and the
// per-venue ROI index (C3) used to answer "which ROIs contain point
// (x, z)?" on every tracked sample.
package geo

import "github.com/venuetrack/engine/internal/model"

// aabb is an axis-aligned bounding box used as a cheap pre-filter before
// the exact point-in-polygon test, the same gating-before-exact-math
// discipline the tracker's cluster association uses.
type aabb struct {
	minX, minZ, maxX, maxZ float64
}

func (b aabb) contains(x, z float64) bool {
	return x >= b.minX && x <= b.maxX && z >= b.minZ && z <= b.maxZ
}

func boundsOf(verts []model.Vertex) aabb {
	b := aabb{minX: verts[0].X, maxX: verts[0].X, minZ: verts[0].Z, maxZ: verts[0].Z}
	for _, v := range verts[1:] {
		if v.X < b.minX {
			b.minX = v.X
		}
		if v.X > b.maxX {
			b.maxX = v.X
		}
		if v.Z < b.minZ {
			b.minZ = v.Z
		}
		if v.Z > b.maxZ {
			b.maxZ = v.Z
		}
	}
	return b
}

// Polygon is a validated, indexable ROI polygon.
type Polygon struct {
	ROIID    string
	Vertices []model.Vertex
	bounds   aabb
}

// NewPolygon validates verts as a simple (non-self-intersecting) closed
// polygon with at least 3 vertices, returning an error describing why
// it was rejected otherwise.
func NewPolygon(roiID string, verts []model.Vertex) (Polygon, error) {
	if len(verts) < 3 {
		return Polygon{}, errTooFewVertices
	}
	if selfIntersects(verts) {
		return Polygon{}, errSelfIntersecting
	}
	return Polygon{ROIID: roiID, Vertices: verts, bounds: boundsOf(verts)}, nil
}

// Contains reports whether (x, z) lies inside p using the even-odd rule,
// treating points on an edge as inside. This is the one stable rule
// spec.md §9's open question asks us to pick and hold.
func (p Polygon) Contains(x, z float64) bool {
	if !p.bounds.contains(x, z) {
		return false
	}
	return pointInPolygonEvenOdd(p.Vertices, x, z)
}

// pointInPolygonEvenOdd implements the standard ray-casting even-odd
// rule, with an explicit on-edge check so boundary points count as
// inside regardless of floating point rounding in the ray cast.
func pointInPolygonEvenOdd(verts []model.Vertex, x, z float64) bool {
	n := len(verts)
	if onAnyEdge(verts, x, z) {
		return true
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := verts[i], verts[j]
		intersects := (vi.Z > z) != (vj.Z > z)
		if intersects {
			xCross := vj.X + (z-vj.Z)/(vi.Z-vj.Z)*(vi.X-vj.X)
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func onAnyEdge(verts []model.Vertex, x, z float64) bool {
	n := len(verts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(verts[j], verts[i], x, z) {
			return true
		}
	}
	return false
}

func onSegment(a, b model.Vertex, x, z float64) bool {
	const eps = 1e-9
	cross := (b.X-a.X)*(z-a.Z) - (b.Z-a.Z)*(x-a.X)
	if cross > eps || cross < -eps {
		return false
	}
	if x < min(a.X, b.X)-eps || x > max(a.X, b.X)+eps {
		return false
	}
	if z < min(a.Z, b.Z)-eps || z > max(a.Z, b.Z)+eps {
		return false
	}
	return true
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// selfIntersects reports whether the closed polygon formed by verts has
// any pair of non-adjacent edges that cross, via a straightforward O(n^2)
// segment-intersection sweep -- venue ROI polygons are small (tens of
// vertices), so this need not be a sweep-line algorithm.
func selfIntersects(verts []model.Vertex) bool {
	n := len(verts)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := verts[i], verts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i {
				continue
			}
			// Skip edges adjacent to edge i (they share an endpoint by construction).
			if j == i || (j+1)%n == i || i == (j+1)%n {
				continue
			}
			b1, b2 := verts[j], verts[(j+1)%n]
			if segmentsProperlyIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsProperlyIntersect(p1, p2, p3, p4 model.Vertex) bool {
	d1 := cross3(p3, p4, p1)
	d2 := cross3(p3, p4, p2)
	d3 := cross3(p1, p2, p3)
	d4 := cross3(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross3(a, b, c model.Vertex) float64 {
	return (b.X-a.X)*(c.Z-a.Z) - (b.Z-a.Z)*(c.X-a.X)
}
