package openrouteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/saferoute/saferoute/internal/routing"
)

// Geocode resolves an address to the best match from the geocoding search
// endpoint. Results are restricted to the configured country, if any.
func (c *Client) Geocode(ctx context.Context, address string) (routing.Place, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return routing.Place{}, &routing.Error{
			Provider: ProviderName,
			Code:     "EMPTY_ADDRESS",
			Message:  "address is empty",
			Err:      routing.ErrAddressNotFound,
		}
	}

	query := url.Values{}
	query.Set("text", address)
	query.Set("size", "1")
	if c.geocodeCountry != "" {
		query.Set("boundary.country", c.geocodeCountry)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geocode/search?"+query.Encode(), http.NoBody)
	if err != nil {
		return routing.Place{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/geo+json, application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return routing.Place{}, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return routing.Place{}, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return routing.Place{}, classifyGeocode(resp.StatusCode, body)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return routing.Place{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(fc.Features) == 0 {
		return routing.Place{}, noMatch(address)
	}

	best := fc.Features[0]
	point, ok := best.Geometry.(orb.Point)
	if !ok {
		return routing.Place{}, fmt.Errorf("decoding response: geometry is %s, want Point", best.Geometry.GeoJSONType())
	}

	place := routing.Place{
		Label:      best.Properties.MustString("label", address),
		Coordinate: routing.Coordinate{Lat: point.Lat(), Lon: point.Lon()},
	}
	if err := place.Coordinate.Validate(); err != nil {
		return routing.Place{}, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug().
		Str("label", place.Label).
		Float64("lat", place.Coordinate.Lat).
		Float64("lon", place.Coordinate.Lon).
		Msg("geocoded address")

	return place, nil
}

func noMatch(address string) error {
	return &routing.Error{
		Provider: ProviderName,
		Code:     "NO_MATCH",
		Message:  fmt.Sprintf("no match for %q", address),
		Err:      routing.ErrAddressNotFound,
	}
}

// classifyGeocode maps a non-200 search response. A rejected query text is
// reported as an unknown address; other statuses classify as for directions.
func classifyGeocode(status int, body []byte) error {
	err := classify(status, body)
	var routeErr *routing.Error
	if errors.As(err, &routeErr) && (status == http.StatusBadRequest || status == http.StatusNotFound) {
		routeErr.Code = "NO_MATCH"
		routeErr.Message = "address could not be geocoded"
		routeErr.Err = routing.ErrAddressNotFound
	}
	return err
}
