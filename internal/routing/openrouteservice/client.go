// Package openrouteservice provides a client for the OpenRouteService
// directions and geocoding APIs.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 4 << 20
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// HTTPClient overrides the guarded client built from the fields below.
	HTTPClient HTTPDoer

	// Timeout bounds one attempt.
	Timeout time.Duration

	// Retries is the number of extra attempts on transport errors and 5xx
	// responses. Zero keeps the resilience default.
	Retries int

	// BreakerCooldown is how long the provider circuit stays open. Zero keeps
	// the resilience default.
	BreakerCooldown time.Duration

	// Registry receives provider health for the ops endpoints (optional).
	Registry *resilience.Registry

	// GeocodeCountry restricts address matches to an ISO 3166 country code
	// (optional).
	GeocodeCountry string

	Logger zerolog.Logger
}

// Client is an OpenRouteService directions and geocoding client.
type Client struct {
	apiKey         string
	baseURL        string
	geocodeCountry string
	httpClient     HTTPDoer
	logger         zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		guarded := resilience.DefaultClientConfig(ProviderName)
		guarded.Registry = cfg.Registry
		guarded.Logger = cfg.Logger
		guarded.Timeout = DefaultTimeout
		if cfg.Timeout > 0 {
			guarded.Timeout = cfg.Timeout
		}
		if cfg.Retries > 0 {
			guarded.MaxRetries = uint64(cfg.Retries)
		}
		if cfg.BreakerCooldown > 0 {
			guarded.Breaker.Cooldown = cfg.BreakerCooldown
		}
		httpClient = resilience.NewClient(guarded)
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		geocodeCountry: cfg.GeocodeCountry,
		httpClient:     httpClient,
		logger:         cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections requests routes from origin to destination through any
// waypoints. Alternatives are only requested without waypoints.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := req.Validate(ProviderName); err != nil {
		return nil, err
	}

	body, err := json.Marshal(newDirectionsBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, req.Profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, respBody)
	}

	var result directionsResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Routes) == 0 {
		return nil, &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "provider returned no routes", Err: routing.ErrNoRouteFound}
	}

	out := &routing.DirectionsResponse{
		Routes:    make([]routing.Route, 0, len(result.Routes)),
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}
	for i := range result.Routes {
		r := &result.Routes[i]
		out.Routes = append(out.Routes, routing.Route{
			GeometryPolyline: r.Geometry,
			DistanceMeters:   int(r.Summary.Distance),
			DurationSeconds:  int(r.Summary.Duration),
			Summary:          summarize(r),
		})
	}

	c.logger.Debug().
		Str("profile", string(req.Profile)).
		Int("waypoints", len(req.Waypoints)).
		Int("routes", len(out.Routes)).
		Msg("received directions")

	return out, nil
}

func newDirectionsBody(req routing.DirectionsRequest) directionsBody {
	coords := make([][2]float64, 0, len(req.Waypoints)+2)
	coords = append(coords, [2]float64{req.Origin.Lon, req.Origin.Lat})
	for _, wp := range req.Waypoints {
		coords = append(coords, [2]float64{wp.Lon, wp.Lat})
	}
	coords = append(coords, [2]float64{req.Destination.Lon, req.Destination.Lat})

	body := directionsBody{
		Coordinates:  coords,
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	}

	// ORS rejects alternative_routes for requests with via points.
	if len(req.Waypoints) == 0 && req.MaxAlternatives > 0 {
		body.AlternativeRoutes = &alternatives{
			TargetCount:  req.MaxAlternatives + 1,
			ShareFactor:  0.6,
			WeightFactor: 1.6,
		}
	}
	return body
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("provider request: %w", ctxErr)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "CIRCUIT_OPEN",
			Message:  "routing provider is failing, requests are paused",
			Err:      errors.Join(routing.ErrProviderUnavailable, resilience.ErrCircuitOpen),
		}
	}
	c.logger.Warn().Err(err).Msg("provider request failed")
	return &routing.Error{
		Provider: ProviderName,
		Code:     "REQUEST_FAILED",
		Message:  "failed to reach routing provider",
		Err:      routing.ErrProviderUnavailable,
	}
}

// classify maps a non-200 response to a routing error. The status decides
// the class; the body only refines 400s and supplies the message.
func classify(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	message := apiErr.Error.Message

	routeErr := &routing.Error{Provider: ProviderName, Message: message}
	switch {
	case status == http.StatusTooManyRequests:
		routeErr.Code, routeErr.Err = "RATE_LIMIT", routing.ErrRateLimitExceeded
		routeErr.Message = "routing provider quota exceeded"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		routeErr.Code, routeErr.Err = "FORBIDDEN", routing.ErrProviderUnavailable
		routeErr.Message = "routing provider rejected the API key"
	case status == http.StatusNotFound:
		routeErr.Code, routeErr.Err = "NO_ROUTE", routing.ErrNoRouteFound
	case status == http.StatusBadRequest:
		switch apiErr.Error.Code {
		case codeRouteNotFound, codePointNotFound, codeLimitExceeded:
			routeErr.Code, routeErr.Err = "NO_ROUTE", routing.ErrNoRouteFound
		default:
			routeErr.Code, routeErr.Err = "BAD_REQUEST", routing.ErrInvalidCoordinates
		}
	case status >= http.StatusInternalServerError:
		routeErr.Code, routeErr.Err = fmt.Sprintf("SERVER_%d", status), routing.ErrProviderUnavailable
		routeErr.Message = "routing provider is temporarily unavailable"
	default:
		routeErr.Code, routeErr.Err = fmt.Sprintf("HTTP_%d", status), routing.ErrProviderUnavailable
	}
	if routeErr.Message == "" {
		routeErr.Message = fmt.Sprintf("routing provider returned status %d", status)
	}
	return routeErr
}

// summarize names the two streets the route spends the most distance on,
// in travel order.
func summarize(r *resultRoute) string {
	type street struct {
		name     string
		first    int
		distance float64
	}
	byName := make(map[string]*street)
	order := 0
	for _, seg := range r.Segments {
		for _, st := range seg.Steps {
			if st.Name == "" || st.Name == "-" {
				continue
			}
			s, ok := byName[st.Name]
			if !ok {
				s = &street{name: st.Name, first: order}
				byName[st.Name] = s
				order++
			}
			s.distance += st.Distance
		}
	}
	if len(byName) == 0 {
		return ""
	}

	streets := make([]*street, 0, len(byName))
	for _, s := range byName {
		streets = append(streets, s)
	}
	sort.Slice(streets, func(i, j int) bool {
		if streets[i].distance != streets[j].distance {
			return streets[i].distance > streets[j].distance
		}
		return streets[i].first < streets[j].first
	})
	if len(streets) > 2 {
		streets = streets[:2]
	}
	sort.Slice(streets, func(i, j int) bool { return streets[i].first < streets[j].first })

	names := make([]string, len(streets))
	for i, s := range streets {
		names[i] = s.name
	}
	return "via " + strings.Join(names, " and ")
}

var _ routing.Geocoder = (*Client)(nil)
