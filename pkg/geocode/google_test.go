package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestGeocoder(t *testing.T, h http.HandlerFunc) *geocoder {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &geocoder{
		httpClient: srv.Client(),
		apiKey:     "test-key",
		baseURL:    srv.URL,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestGoogleGeocode_Centroid(t *testing.T) {
	t.Parallel()

	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Paris", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 48.8566, "lng": 2.3522},
					"location_type": "GEOMETRIC_CENTER"
				},
				"formatted_address": "Paris, France",
				"place_id": "ChIJD7fiBh9u5kcRYJSMaMOCCwQ"
			}]
		}`)
	})

	result, err := g.Geocode(context.Background(), "  Paris ")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 48.8566, result.Latitude, 0.0001)
	assert.InDelta(t, 2.3522, result.Longitude, 0.0001)
	assert.Equal(t, "Paris, France", result.FormattedAddress)
	assert.Equal(t, "ChIJD7fiBh9u5kcRYJSMaMOCCwQ", result.PlaceID)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "centroid", result.Quality)
}

func TestGoogleGeocode_NoResults(t *testing.T) {
	t.Parallel()

	g := newTestGeocoder(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	})

	result, err := g.Geocode(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGoogleGeocode_DeniedStatus(t *testing.T) {
	t.Parallel()

	g := newTestGeocoder(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid.", "results": []}`)
	})

	_, err := g.Geocode(context.Background(), "Paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")
	assert.Contains(t, err.Error(), "API key is invalid")
}

func TestGoogleGeocode_MissingStatus(t *testing.T) {
	t.Parallel()

	g := newTestGeocoder(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results": []}`)
	})

	_, err := g.Geocode(context.Background(), "Paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing status")
}

func TestGoogleGeocode_HTTPError(t *testing.T) {
	t.Parallel()

	g := newTestGeocoder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.Geocode(context.Background(), "Paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGoogleGeocode_NoKey(t *testing.T) {
	t.Parallel()

	g := NewClient("")
	_, err := g.Geocode(context.Background(), "Paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key not configured")
}

func TestGeocode_EmptyPlace(t *testing.T) {
	t.Parallel()

	_, err := NewClient("k").Geocode(context.Background(), "   ")
	require.Error(t, err)
}

func TestGeocode_CachesMatches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":19.07,"lng":72.87},"location_type":"APPROXIMATE"}}]}`)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(100))
	first, err := c.Geocode(context.Background(), "Mumbai")
	require.NoError(t, err)
	second, err := c.Geocode(context.Background(), "  mumbai ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	second.Latitude = 0
	third, err := c.Geocode(context.Background(), "MUMBAI")
	require.NoError(t, err)
	assert.InDelta(t, 19.07, third.Latitude, 0.001)
}

func TestGeocode_MissesAreNotCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"status":"ZERO_RESULTS","results":[]}`)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	for range 2 {
		_, err := c.Geocode(context.Background(), "Nowhere")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"ROOFTOP", "rooftop"},
		{"RANGE_INTERPOLATED", "range"},
		{"GEOMETRIC_CENTER", "centroid"},
		{"APPROXIMATE", "approximate"},
		{"rooftop", "rooftop"},
		{"UNKNOWN", "approximate"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, googleLocationTypeToQuality(tt.input), tt.input)
	}
}
