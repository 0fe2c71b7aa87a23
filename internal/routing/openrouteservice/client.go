// Package openrouteservice provides a client for the OpenRouteService
// directions API, using its GeoJSON response format.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultAlternatives is the number of routes requested when the caller
	// does not say.
	DefaultAlternatives = 3

	// MaxAlternatives is the largest target_count ORS accepts.
	MaxAlternatives = 3

	// DefaultMaxRetries is the number of retries after a failed transport call.
	DefaultMaxRetries = 1
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with a single retry.
	HTTPClient HTTPDoer

	// Timeout bounds a whole GetDirections call, retries included
	// (optional, defaults to 10s). Each attempt gets an equal share after
	// the retry backoff is reserved.
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.MaxRetries = DefaultMaxRetries
		clientCfg.Timeout = clientCfg.AttemptTimeout(timeout)
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedProfiles returns the supported routing profiles.
func (c *Client) SupportedProfiles() []routing.RouteProfile {
	return []routing.RouteProfile{
		routing.ProfileDrive,
		routing.ProfileWalk,
		routing.ProfileBike,
	}
}

// GetDirections requests up to req.MaxAlternatives routes from the GeoJSON
// directions endpoint. Provider failures are returned as *routing.Error.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if !req.Origin.Valid() {
		return nil, providerError("INVALID_ORIGIN", "invalid origin coordinates", routing.ErrInvalidCoordinates)
	}
	if !req.Destination.Valid() {
		return nil, providerError("INVALID_DESTINATION", "invalid destination coordinates", routing.ErrInvalidCoordinates)
	}

	profile := req.Profile
	if profile == "" {
		profile = routing.ProfileDrive
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, profile, req)
	if err != nil {
		return nil, err
	}

	log := c.logger.With().
		Str("profile", string(profile)).
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Logger()
	log.Debug().Msg("requesting directions from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		code := "REQUEST_FAILED"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			code = "CIRCUIT_OPEN"
		}
		return nil, providerError(code, "failed to reach routing provider", unavailable(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerError("READ_FAILED", "failed to read routing response", unavailable(err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapStatus(resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, providerError("DECODE_FAILED", "malformed routing response", unavailable(err))
	}

	routes := make([]routing.Route, 0, len(fc.Features))
	for i := range fc.Features {
		route, err := toRoute(&fc.Features[i])
		if err != nil {
			return nil, providerError("BAD_GEOMETRY", fmt.Sprintf("route %d has malformed geometry", i), unavailable(err))
		}
		routes = append(routes, route)
	}

	log.Debug().Int("route_count", len(routes)).Msg("received directions from ORS")

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, profile routing.RouteProfile, req routing.DirectionsRequest) (*http.Request, error) {
	payload := directionsRequest{
		Coordinates: [][2]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
		Preference:   "fastest",
		Instructions: true,
		Units:        "m",
	}
	if n := targetCount(req.MaxAlternatives); n > 1 {
		payload.AlternativeRoutes = &alternativeRoutes{
			TargetCount:  n,
			ShareFactor:  0.6,
			WeightFactor: 1.4,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s/geojson", c.baseURL, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json")
	httpReq.Header.Set("Authorization", c.apiKey)
	return httpReq, nil
}

// targetCount maps the requested alternatives onto ORS target_count.
func targetCount(requested int) int {
	if requested <= 0 {
		return DefaultAlternatives
	}
	if requested > MaxAlternatives {
		return MaxAlternatives
	}
	return requested
}

func providerError(code, message string, err error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: err}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err)
}

// mapStatus maps a non-200 ORS response to a routing error. Unroutable
// points come back as 400 or 404 with codes 2009 and 2010.
func mapStatus(status int, body []byte) *routing.Error {
	var apiErr apiError
	msg := fmt.Sprintf("routing provider returned status %d", status)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		return providerError("RATE_LIMIT", "routing quota exceeded", routing.ErrRateLimitExceeded)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return providerError("FORBIDDEN", "routing provider rejected the API key", routing.ErrProviderUnavailable)
	case status == http.StatusNotFound,
		apiErr.Error.Code == codeRouteNotFound,
		apiErr.Error.Code == codePointNotRoutable:
		return providerError("NO_ROUTE", msg, routing.ErrNoRouteFound)
	case status == http.StatusBadRequest:
		return providerError("BAD_REQUEST", msg, routing.ErrInvalidCoordinates)
	case status >= http.StatusInternalServerError:
		return providerError(fmt.Sprintf("SERVER_%d", status), "routing provider is temporarily unavailable", routing.ErrProviderUnavailable)
	default:
		return providerError(fmt.Sprintf("HTTP_%d", status), msg, routing.ErrProviderUnavailable)
	}
}

// toRoute converts one GeoJSON feature. Its geometry must be a LineString.
func toRoute(f *feature) (routing.Route, error) {
	if f.Geometry == nil {
		return routing.Route{}, errors.New("missing geometry")
	}
	line, ok := f.Geometry.Geometry().(orb.LineString)
	if !ok {
		return routing.Route{}, fmt.Errorf("geometry type %q, want LineString", f.Geometry.Type)
	}

	points := make([]routing.Coordinate, len(line))
	encoded := make([]polyline.Coordinate, len(line))
	for i, p := range line {
		points[i] = routing.Coordinate{Lat: p.Lat(), Lon: p.Lon()}
		encoded[i] = polyline.Coordinate{Lat: p.Lat(), Lon: p.Lon()}
	}

	return routing.Route{
		Points:           points,
		GeometryPolyline: polyline.Encode(encoded),
		DistanceMeters:   f.Properties.Summary.Distance,
		DurationSeconds:  f.Properties.Summary.Duration,
		Summary:          summaryText(&f.Properties),
	}, nil
}

// summaryText names the longest named step, e.g. "via NH 48".
func summaryText(p *routeProperties) string {
	var (
		name    string
		longest float64
	)
	for _, seg := range p.Segments {
		for _, st := range seg.Steps {
			if st.Name == "" || st.Name == "-" {
				continue
			}
			if st.Distance > longest {
				longest = st.Distance
				name = st.Name
			}
		}
	}
	if name == "" {
		return ""
	}
	return "via " + name
}
