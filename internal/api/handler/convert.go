package handler

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/dataset"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

func toRoutesResponse(result *planner.Result, generatedAt time.Time) models.RoutesResponse {
	resp := models.RoutesResponse{
		GeneratedAt:    models.Timestamp(generatedAt),
		ScoredAt:       models.Timestamp(result.At),
		TimeWindow:     toTimeWindow(result.TimeWindow),
		DatasetVersion: result.DatasetVersion,
		Considered:     result.Considered,
		Routes:         make([]models.RankedRouteResponse, 0, len(result.Routes)),
	}
	if result.Origin != (routing.Place{}) || result.Destination != (routing.Place{}) {
		resp.Origin = toPlace(result.Origin)
		resp.Destination = toPlace(result.Destination)
	}
	if result.DetourAttempted {
		resp.Detour = &models.DetourInfo{Attempted: true, Added: result.DetourAdded}
	}
	for _, rr := range result.Routes {
		resp.Routes = append(resp.Routes, toRankedRoute(rr))
	}
	return resp
}

func toPlace(p routing.Place) *models.Place {
	return &models.Place{
		Label: p.Label,
		Point: models.Point{Lat: p.Coordinate.Lat, Lon: p.Coordinate.Lon},
	}
}

func toTimeWindow(w safety.TimeWindow) models.TimeWindow {
	if w == safety.WindowAll {
		return models.TimeWindow(safety.WindowAnyTime)
	}
	return models.TimeWindow(w)
}

func toRankedRoute(rr ranking.RankedRoute) models.RankedRouteResponse {
	m := rr.Metrics
	out := models.RankedRouteResponse{
		ID:              rr.Candidate.ID,
		Kind:            string(rr.Candidate.Origin),
		Summary:         rr.Candidate.Summary,
		Rank:            rr.Rank,
		Recommended:     rr.IsRecommended,
		CompositeScore:  rr.CompositeScore,
		DistanceMeters:  rr.Candidate.DistanceMeters,
		DurationSeconds: rr.Candidate.DurationSeconds,
		Geometry:        geojson.NewGeometry(rr.Candidate.Geometry),
		Safety: models.SafetyBlock{
			Score:              m.SafetyScore,
			Interpretation:     string(m.Interpretation),
			RawExposure:        m.RawExposure,
			NormalizedExposure: m.NormalizedExposure,
			TotalCrimes:        m.TotalCrimes,
			CrimesPerKm:        m.CrimesPerKm,
			SeverityCounts: models.SeverityCounts{
				High:   m.SeverityCounts.High,
				Medium: m.SeverityCounts.Medium,
				Low:    m.SeverityCounts.Low,
			},
			SampleCount:  m.SampleCount,
			LengthMeters: m.LengthMeters,
		},
	}
	if m.SampleCount > 0 && m.WorstSample.Exposure > 0 {
		out.Safety.WorstSample = &models.SamplePoint{
			Point:    models.Point{Lat: m.WorstSample.Point.Lat(), Lon: m.WorstSample.Point.Lon()},
			Exposure: m.WorstSample.Exposure,
		}
	}
	return out
}

func toCandidates(inputs []models.CandidateInput) []routing.Candidate {
	out := make([]routing.Candidate, len(inputs))
	for i, in := range inputs {
		out[i] = routing.Candidate{
			ID:              in.ID,
			Geometry:        in.Coordinates,
			DistanceMeters:  in.DistanceMeters,
			DurationSeconds: in.DurationSeconds,
			Origin:          routing.OriginSupplied,
			Summary:         in.Summary,
		}
	}
	return out
}

// toCoordinate returns the zero coordinate for an absent point; the request
// then carries an address instead.
func toCoordinate(p *models.Point) routing.Coordinate {
	if p == nil {
		return routing.Coordinate{}
	}
	return routing.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

func toDatasetInfo(snap *dataset.Snapshot) models.DatasetInfo {
	info := models.DatasetInfo{
		Version:      snap.Version,
		Source:       snap.Source,
		LoadedAt:     models.Timestamp(snap.LoadedAt),
		Records:      snap.Records,
		Dropped:      snap.Dropped,
		DropReasons:  snap.DropReasons,
		LoadDuration: snap.LoadTime.String(),
	}
	if snap.Index != nil {
		info.Cells = snap.Index.CellCount()
		info.CellSizeDeg = snap.Index.CellSize()
	}
	return info
}
