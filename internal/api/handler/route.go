package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/dataset"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

// datasetRetryAfterSeconds is the Retry-After hint while no dataset is loaded.
const datasetRetryAfterSeconds = 30

// RoutePlanner plans and ranks routes. *planner.Planner satisfies it.
type RoutePlanner interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Result, error)
	RankCandidates(ctx context.Context, req planner.RankRequest) (*planner.Result, error)
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	planner RoutePlanner
	logger  zerolog.Logger
	clock   func() time.Time
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(p RoutePlanner, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{planner: p, logger: logger, clock: time.Now}
}

// ComputeRoutes handles POST /v1/routes:compute - fetch, score and rank routes
// between two points.
func (h *RouteHandler) ComputeRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.RouteComputeRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	result, err := h.planner.Plan(r.Context(), planner.Request{
		Origin:             toCoordinate(input.Origin),
		Destination:        toCoordinate(input.Destination),
		OriginAddress:      input.OriginAddress,
		DestinationAddress: input.DestinationAddress,
		At:                 models.TimeOrZero(input.DepartureTime),
		Profile:            routing.RouteProfile(input.Profile),
		TimeWindow:         safety.TimeWindow(input.TimeWindow),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.JSON(w, r, http.StatusOK, toRoutesResponse(result, h.clock()))
}

// RankRoutes handles POST /v1/routes:rank - score and rank caller-supplied
// route geometries without contacting the directions provider.
func (h *RouteHandler) RankRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.RouteRankRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	result, err := h.planner.RankCandidates(r.Context(), planner.RankRequest{
		Candidates: toCandidates(input.Candidates),
		At:         models.TimeOrZero(input.At),
		TimeWindow: safety.TimeWindow(input.TimeWindow),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toRoutesResponse(result, h.clock()))
}

// writeError maps planner failures onto problem responses.
func (h *RouteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, routing.ErrNoRouteFound):
		response.NoRoute(w, r, "no route found between the given points")
	case errors.Is(err, routing.ErrAddressNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, dataset.ErrNotLoaded):
		response.ServiceUnavailableRetryAfter(w, r, "crime dataset is not loaded yet", datasetRetryAfterSeconds)
	case errors.Is(err, planner.ErrNoCandidates),
		errors.Is(err, routing.ErrInvalidCoordinates),
		errors.Is(err, routing.ErrUnsupportedProfile),
		errors.Is(err, routing.ErrInvalidCandidate),
		errors.Is(err, planner.ErrInvalidTimeWindow),
		errors.Is(err, planner.ErrGeocodingDisabled),
		errors.Is(err, safety.ErrDegenerateRoute):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, routing.ErrRateLimitExceeded),
		errors.Is(err, resilience.ErrCircuitOpen):
		response.ServiceUnavailable(w, r, "routing provider is unavailable, try again later")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "request did not complete in time")
	default:
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("route request failed")
		response.InternalError(w, r, "failed to rank routes")
	}
}
