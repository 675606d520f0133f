package spatial

import (
	"math"

	"github.com/saferoute/saferoute/internal/crime"
)

// DefaultCellSize is the default grid cell size in degrees (~1.1km).
const DefaultCellSize = 0.01

type cellKey struct {
	x, y int64
}

// Match is a record found by a radius query together with its distance.
type Match struct {
	Record         *crime.Record
	DistanceMeters float64
}

// Index buckets crime records into a uniform lon/lat grid. It is immutable
// after Build and safe for concurrent queries.
type Index struct {
	cellSize float64
	records  []crime.Record
	cells    map[cellKey][]int32
}

// Build creates an index over a copy of records. A non-positive cellSize uses DefaultCellSize.
func Build(records []crime.Record, cellSize float64) *Index {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		cellSize = DefaultCellSize
	}

	idx := &Index{
		cellSize: cellSize,
		records:  make([]crime.Record, len(records)),
		cells:    make(map[cellKey][]int32),
	}
	copy(idx.records, records)

	for i := range idx.records {
		key := idx.keyFor(idx.records[i].Longitude, idx.records[i].Latitude)
		idx.cells[key] = append(idx.cells[key], int32(i)) //nolint:gosec // record count fits in int32
	}

	return idx
}

func (idx *Index) keyFor(lon, lat float64) cellKey {
	return cellKey{
		x: int64(math.Floor(lon / idx.cellSize)),
		y: int64(math.Floor(lat / idx.cellSize)),
	}
}

// Query returns every record within radiusMeters (haversine) of the point.
// Results are exact: the grid only narrows the candidates.
//
// The scan window covers the circle's latitude band and its widest longitude
// half-width, asin(sin δ / cos φ) for angular radius δ. When the circle reaches
// a pole every longitude qualifies and the query falls back to a linear scan.
// Records across the antimeridian from the query point are not found.
func (idx *Index) Query(lon, lat, radiusMeters float64) []Match {
	if idx == nil || radiusMeters < 0 || len(idx.records) == 0 {
		return nil
	}

	delta := radiusMeters / EarthRadiusMeters
	sinDelta := math.Sin(delta)
	cosLat := math.Cos(lat * math.Pi / 180)
	if delta >= math.Pi/2 || sinDelta >= cosLat {
		return idx.scanAll(lon, lat, radiusMeters)
	}

	rowDeg := widen(delta * 180 / math.Pi)
	colDeg := widen(math.Asin(sinDelta/cosLat) * 180 / math.Pi)
	rowSpan := int64(math.Ceil(rowDeg / idx.cellSize))
	colSpan := int64(math.Ceil(colDeg / idx.cellSize))

	center := idx.keyFor(lon, lat)
	var matches []Match
	for dx := -colSpan; dx <= colSpan; dx++ {
		for dy := -rowSpan; dy <= rowSpan; dy++ {
			bucket, ok := idx.cells[cellKey{x: center.x + dx, y: center.y + dy}]
			if !ok {
				continue
			}
			for _, i := range bucket {
				rec := &idx.records[i]
				d := Haversine(lat, lon, rec.Latitude, rec.Longitude)
				if d <= radiusMeters {
					matches = append(matches, Match{Record: rec, DistanceMeters: d})
				}
			}
		}
	}

	return matches
}

// widen pads a scan half-width against floating point error in the bounds.
func widen(deg float64) float64 {
	return deg*(1+1e-9) + 1e-9
}

func (idx *Index) scanAll(lon, lat, radiusMeters float64) []Match {
	var matches []Match
	for i := range idx.records {
		rec := &idx.records[i]
		d := Haversine(lat, lon, rec.Latitude, rec.Longitude)
		if d <= radiusMeters {
			matches = append(matches, Match{Record: rec, DistanceMeters: d})
		}
	}
	return matches
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// CellCount returns the number of non-empty grid cells.
func (idx *Index) CellCount() int {
	if idx == nil {
		return 0
	}
	return len(idx.cells)
}

// CellSize returns the grid cell size in degrees.
func (idx *Index) CellSize() float64 {
	return idx.cellSize
}

// Records returns the indexed records. The slice must not be modified.
func (idx *Index) Records() []crime.Record {
	if idx == nil {
		return nil
	}
	return idx.records
}
