package spatial

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/crime"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", 49.28, -123.12, 49.28, -123.12, 0, 1e-9},
		{"one degree latitude", 0, 0, 1, 0, 111195, 1},
		{"one degree longitude at equator", 0, 0, 0, 1, 111195, 1},
		{"vancouver to burnaby", 49.2827, -123.1207, 49.2488, -122.9805, 10850, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}

func randomRecords(n int, seed int64, centerLat, centerLon, spread float64) []crime.Record {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test data
	records := make([]crime.Record, n)
	for i := range records {
		records[i] = crime.NewRecord(
			"Mischief",
			time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			centerLat+(rng.Float64()*2-1)*spread,
			centerLon+(rng.Float64()*2-1)*spread,
			"", "",
		)
	}
	return records
}

func bruteForce(records []crime.Record, lon, lat, radius float64) []string {
	var out []string
	for i := range records {
		if Haversine(lat, lon, records[i].Latitude, records[i].Longitude) <= radius {
			out = append(out, key(&records[i]))
		}
	}
	sort.Strings(out)
	return out
}

func key(r *crime.Record) string {
	return fmt.Sprintf("%.10f,%.10f", r.Latitude, r.Longitude)
}

func matchKeys(matches []Match) []string {
	var out []string
	for _, m := range matches {
		out = append(out, key(m.Record))
	}
	sort.Strings(out)
	return out
}

func TestIndex_QueryMatchesBruteForce(t *testing.T) {
	cellSizes := []float64{0.0005, 0.001, 0.0016, 0.01, 0.1}
	radii := []float64{0, 25, 100, 350, 1500}

	regions := []struct {
		name     string
		lat, lon float64
	}{
		{"vancouver", 49.27, -123.11},
		{"southern hemisphere", -33.87, 151.21},
		{"equator", 0.0, 0.0},
		{"helsinki", 60.17, 24.94},
	}

	for _, region := range regions {
		records := randomRecords(2000, 7, region.lat, region.lon, 0.02)
		queries := randomRecords(40, 11, region.lat, region.lon, 0.02)

		for _, cell := range cellSizes {
			idx := Build(records, cell)
			require.Equal(t, len(records), idx.Len())

			for _, radius := range radii {
				for _, q := range queries {
					got := matchKeys(idx.Query(q.Longitude, q.Latitude, radius))
					want := bruteForce(records, q.Longitude, q.Latitude, radius)
					assert.Equal(t, want, got, "%s cell=%v radius=%v", region.name, cell, radius)
				}
			}
		}
	}
}

// onCircle places n records at the given distance from the centre, spread
// evenly over all bearings.
func onCircle(n int, lat, lon, distance float64) []crime.Record {
	phi1 := lat * math.Pi / 180
	lambda1 := lon * math.Pi / 180
	delta := distance / EarthRadiusMeters

	records := make([]crime.Record, n)
	for i := range records {
		theta := 2 * math.Pi * float64(i) / float64(n)
		phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
		lambda2 := lambda1 + math.Atan2(
			math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
			math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
		)
		records[i] = crime.NewRecord("Mischief", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			phi2*180/math.Pi, lambda2*180/math.Pi, "", "")
	}
	return records
}

func TestIndex_LargeRadiusFindsWholeCircle(t *testing.T) {
	tests := []struct {
		lat, lon float64
		radius   float64
	}{
		{49.28, -123.12, 1e5},
		{49.28, -123.12, 1e6},
		{49.28, -123.12, 2e6},
		{60, 10, 1e6},
		{75, 10, 3e5},
		{-70, 10, 1.5e6},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("lat=%v radius=%v", tt.lat, tt.radius), func(t *testing.T) {
			records := onCircle(1440, tt.lat, tt.lon, 0.999*tt.radius)
			for _, cell := range []float64{0.05, 0.5} {
				idx := Build(records, cell)

				got := matchKeys(idx.Query(tt.lon, tt.lat, tt.radius))
				want := bruteForce(records, tt.lon, tt.lat, tt.radius)
				require.Len(t, want, len(records))
				assert.Equal(t, want, got, "cell=%v", cell)
			}
		})
	}
}

func TestIndex_CircleOverPoleFallsBackToScan(t *testing.T) {
	records := onCircle(360, 80, 0, 1.2e6)
	idx := Build(records, 0.1)

	got := matchKeys(idx.Query(0, 80, 1.25e6))
	assert.Len(t, got, len(records))
}

func TestIndex_QueryReturnsDistances(t *testing.T) {
	rec := crime.NewRecord("Robbery", time.Now(), 49.28, -123.12, "", "")
	idx := Build([]crime.Record{rec}, DefaultCellSize)

	matches := idx.Query(-123.12, 49.28+10/111195.0, 100)
	require.Len(t, matches, 1)
	assert.InDelta(t, 10, matches[0].DistanceMeters, 0.01)
	assert.Equal(t, "Robbery", matches[0].Record.CrimeType)
}

func TestIndex_NearPoleFallsBackToScan(t *testing.T) {
	records := randomRecords(200, 3, 89.9998, 0, 0.0001)
	idx := Build(records, 0.001)

	got := matchKeys(idx.Query(120, 89.9999, 50))
	want := bruteForce(records, 120, 89.9999, 50)
	assert.Equal(t, want, got)
}

func TestIndex_Empty(t *testing.T) {
	idx := Build(nil, 0.01)
	assert.Zero(t, idx.Len())
	assert.Zero(t, idx.CellCount())
	assert.Empty(t, idx.Query(0, 0, 1000))

	var nilIdx *Index
	assert.Empty(t, nilIdx.Query(0, 0, 1000))
	assert.Zero(t, nilIdx.Len())
}

func TestBuild_DefaultCellSize(t *testing.T) {
	idx := Build(randomRecords(10, 1, 49.27, -123.11, 0.001), 0)
	assert.Equal(t, DefaultCellSize, idx.CellSize())
	assert.GreaterOrEqual(t, idx.CellCount(), 1)
}

func TestBuild_CopiesInput(t *testing.T) {
	records := []crime.Record{crime.NewRecord("Mischief", time.Now(), 49.28, -123.12, "", "")}
	idx := Build(records, 0.01)

	records[0].Latitude = 0
	require.Len(t, idx.Query(-123.12, 49.28, 1), 1)
}
