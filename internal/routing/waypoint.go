package routing

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// OffsetWaypoints returns two via points, one on each side of the
// origin-destination chord, offset perpendicular from its midpoint by
// fraction of the chord length. Returns nil when origin equals destination.
func OffsetWaypoints(origin, destination Coordinate, fraction float64) []Coordinate {
	o := orb.Point{origin.Lon, origin.Lat}
	d := orb.Point{destination.Lon, destination.Lat}

	chord := geo.Distance(o, d)
	if chord == 0 || math.IsNaN(chord) {
		return nil
	}

	mid := geo.Midpoint(o, d)
	bearing := geo.Bearing(o, d)
	offset := chord * fraction

	left := geo.PointAtBearingAndDistance(mid, normalizeBearing(bearing-90), offset)
	right := geo.PointAtBearingAndDistance(mid, normalizeBearing(bearing+90), offset)

	return []Coordinate{
		{Lat: left.Lat(), Lon: left.Lon()},
		{Lat: right.Lat(), Lon: right.Lon()},
	}
}

// DetourWaypoints returns two points offsetMeters to the left and right of
// the route at p, perpendicular to the route segment nearest p.
func DetourWaypoints(line orb.LineString, p orb.Point, offsetMeters float64) []Coordinate {
	if len(line) < 2 || offsetMeters <= 0 {
		return nil
	}

	a, b := nearestSegment(line, p)
	bearing := geo.Bearing(a, b)

	left := geo.PointAtBearingAndDistance(p, normalizeBearing(bearing-90), offsetMeters)
	right := geo.PointAtBearingAndDistance(p, normalizeBearing(bearing+90), offsetMeters)

	return []Coordinate{
		{Lat: left.Lat(), Lon: left.Lon()},
		{Lat: right.Lat(), Lon: right.Lon()},
	}
}

// nearestSegment returns the endpoints of the non-degenerate segment closest
// to p in planar degree space.
func nearestSegment(line orb.LineString, p orb.Point) (orb.Point, orb.Point) {
	bestA, bestB := line[0], line[len(line)-1]
	best := math.Inf(1)

	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		if a == b {
			continue
		}
		if d := pointSegmentDistance(p, a, b); d < best {
			best = d
			bestA, bestB = a, b
		}
	}

	return bestA, bestB
}

func pointSegmentDistance(p, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}
