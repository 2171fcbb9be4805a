// Package routing is a client for OSRM-compatible route services.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://router.project-osrm.org"
	DefaultProfile = "driving"
)

var (
	// ErrNoRoute is returned when the service answers without a usable route.
	ErrNoRoute = errors.New("no route")
	// ErrMalformed is returned for responses that cannot be decoded.
	ErrMalformed = errors.New("malformed route response")
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("routing service returned %d: %s", e.StatusCode, e.Body)
}

// Route is the first candidate of a route response.
type Route struct {
	Geometry orb.LineString
	Distance float64 // meters
	Duration float64 // seconds
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Profile string
	// Timeout bounds each request when HTTPClient is nil. Zero leaves the
	// transport defaults in charge.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client requests driving routes. Each call to Route issues exactly one HTTP
// request; failures are not retried.
type Client struct {
	base    string
	profile string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a client. Empty config fields take the defaults.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
		if cfg.Timeout > 0 {
			cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		}
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		profile: cfg.Profile,
		http:    cfg.HTTPClient,
		log:     log.Named("routing"),
	}
}

// BaseURL returns the routing service base URL.
func (c *Client) BaseURL() string { return c.base }

type response struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Routes  []struct {
		Geometry *geojson.Geometry `json:"geometry"`
		Distance float64           `json:"distance"`
		Duration float64           `json:"duration"`
	} `json:"routes"`
}

// URL returns the request URL for a route from start to end.
func (c *Client) URL(start, end orb.Point) string {
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	return fmt.Sprintf("%s/route/v1/%s/%s;%s?%s", c.base, c.profile, coord(start), coord(end), q.Encode())
}

func coord(p orb.Point) string {
	return strconv.FormatFloat(p.Lon(), 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat(), 'f', -1, 64)
}

// Route fetches the driving route from start to end.
func (c *Client) Route(ctx context.Context, start, end orb.Point) (*Route, error) {
	r, err := c.route(ctx, start, end)
	if err != nil {
		c.log.Warn("route request failed",
			zap.Float64s("start", start[:]),
			zap.Float64s("end", end[:]),
			zap.Error(err))
		return nil, err
	}
	c.log.Debug("route received",
		zap.Float64("distance_m", r.Distance),
		zap.Float64("duration_s", r.Duration),
		zap.Int("points", len(r.Geometry)))
	return r, nil
}

func (c *Client) route(ctx context.Context, start, end orb.Point) (*Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(start, end), nil)
	if err != nil {
		return nil, fmt.Errorf("build route request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read route response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out.Code != "Ok" {
		return nil, fmt.Errorf("%w: code %q %s", ErrNoRoute, out.Code, out.Message)
	}
	if len(out.Routes) == 0 {
		return nil, fmt.Errorf("%w: empty candidate list", ErrNoRoute)
	}

	first := out.Routes[0]
	if first.Geometry == nil {
		return nil, fmt.Errorf("%w: route without geometry", ErrMalformed)
	}
	line, ok := first.Geometry.Geometry().(orb.LineString)
	if !ok || len(line) < 2 {
		return nil, fmt.Errorf("%w: geometry is not a line string", ErrMalformed)
	}
	if first.Distance < 0 || first.Duration < 0 {
		return nil, fmt.Errorf("%w: negative distance or duration", ErrMalformed)
	}
	return &Route{Geometry: line, Distance: first.Distance, Duration: first.Duration}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
