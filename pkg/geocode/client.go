// Package geocode resolves place names to coordinates via the Google
// Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client geocodes free-form place names such as "Paris" or "Mumbai, India".
type Client interface {
	Geocode(ctx context.Context, place string) (*Result, error)
}

// Result holds the geocoding output for a place.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	PlaceID          string
	Source           string // "google"
	Quality          string // "rooftop", "range", "centroid", "approximate"
	Matched          bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithBaseURL overrides the Google Geocoding endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type geocoder struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
	cache      sync.Map // cacheKey -> *Result
}

// NewClient creates a geocoding Client using the given Google API key.
// Matches are memoised for the life of the client.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    googleGeocodeURL,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves place. An unknown place is not an error; the result has
// Matched false.
func (g *geocoder) Geocode(ctx context.Context, place string) (*Result, error) {
	if strings.TrimSpace(place) == "" {
		return nil, eris.New("geocode: empty place")
	}
	key := cacheKey(place)
	if r, ok := g.lookupCache(key); ok {
		return r, nil
	}

	r, err := g.geocodeGoogle(ctx, place)
	if err != nil {
		return nil, err
	}
	if r.Matched {
		g.storeCache(key, r)
	}
	return r, nil
}
