package geo

import (
	"math"

	"github.com/Ramsey-B/fern/pkg/models"
)

// boundaryEpsilon is the tolerance in degrees for a point to count as on an edge.
const boundaryEpsilon = 1e-9

// Ring is a closed sequence of vertices in [lat,lng] order without a repeated
// closing vertex.
type Ring []models.Location

// Polygon is an outer ring with optional holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// NormalizeRing converts a GeoJSON [lng,lat] ring into a Ring. It is the only
// place coordinate order is flipped. ok is false for fewer than 3 distinct
// vertices or any non-finite coordinate.
func NormalizeRing(coords [][]float64) (Ring, bool) {
	ring := make(Ring, 0, len(coords))
	for _, pt := range coords {
		if len(pt) < 2 {
			return nil, false
		}
		loc := models.Location{Lat: pt[1], Lng: pt[0]}
		if !models.ValidLocation(loc) {
			return nil, false
		}
		ring = append(ring, loc)
	}
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return nil, false
	}
	return ring, true
}

// NormalizePolygon converts GeoJSON polygon rings. An invalid outer ring
// invalidates the polygon; invalid holes are dropped.
func NormalizePolygon(rings [][][]float64) (Polygon, bool) {
	if len(rings) == 0 {
		return Polygon{}, false
	}
	outer, ok := NormalizeRing(rings[0])
	if !ok {
		return Polygon{}, false
	}
	polygon := Polygon{Outer: outer}
	for _, coords := range rings[1:] {
		if hole, ok := NormalizeRing(coords); ok {
			polygon.Holes = append(polygon.Holes, hole)
		}
	}
	return polygon, true
}

// Contains reports whether point is inside the outer ring (boundary included)
// and not strictly inside a hole.
func (p Polygon) Contains(point models.Location) bool {
	if !p.Outer.Contains(point) {
		return false
	}
	for _, hole := range p.Holes {
		if hole.onBoundary(point) {
			return true
		}
		if hole.Contains(point) {
			return false
		}
	}
	return true
}

// Contains runs a planar ray cast with lng as x and lat as y. Points on an
// edge or vertex are inside. A ring spanning more than 180 degrees of
// longitude is read as crossing the antimeridian.
func (r Ring) Contains(point models.Location) bool {
	r, point = r.unwrap(point)
	if r.onBoundary(point) {
		return true
	}

	inside := false
	x, y := point.Lng, point.Lat
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		xi, yi := r[i].Lng, r[i].Lat
		xj, yj := r[j].Lng, r[j].Lat
		if (yi > y) != (yj > y) {
			crossX := (xj-xi)*(y-yi)/(yj-yi) + xi
			if x < crossX {
				inside = !inside
			}
		}
	}
	return inside
}

// unwrap shifts negative longitudes by 360 when the ring crosses the
// antimeridian, so the planar test sees one contiguous shape.
func (r Ring) unwrap(point models.Location) (Ring, models.Location) {
	if len(r) == 0 {
		return r, point
	}
	minLng, maxLng := r[0].Lng, r[0].Lng
	for _, v := range r[1:] {
		minLng = math.Min(minLng, v.Lng)
		maxLng = math.Max(maxLng, v.Lng)
	}
	if maxLng-minLng <= 180 {
		return r, point
	}

	shifted := make(Ring, len(r))
	for i, v := range r {
		if v.Lng < 0 {
			v.Lng += 360
		}
		shifted[i] = v
	}
	if point.Lng < 0 {
		point.Lng += 360
	}
	return shifted, point
}

func (r Ring) onBoundary(point models.Location) bool {
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		if onSegment(point, r[j], r[i]) {
			return true
		}
	}
	return false
}

func onSegment(p, a, b models.Location) bool {
	cross := (b.Lng-a.Lng)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lng-a.Lng)
	if math.Abs(cross) > boundaryEpsilon {
		return false
	}
	return p.Lng >= math.Min(a.Lng, b.Lng)-boundaryEpsilon &&
		p.Lng <= math.Max(a.Lng, b.Lng)+boundaryEpsilon &&
		p.Lat >= math.Min(a.Lat, b.Lat)-boundaryEpsilon &&
		p.Lat <= math.Max(a.Lat, b.Lat)+boundaryEpsilon
}

// Centroid is the vertex average. It lies inside any convex ring.
func (r Ring) Centroid() models.Location {
	var lat, lng float64
	for _, v := range r {
		lat += v.Lat
		lng += v.Lng
	}
	n := float64(len(r))
	return models.Location{Lat: lat / n, Lng: lng / n}
}
