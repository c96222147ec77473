package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"
	sourceGoogle     = "google"
)

type googleResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []googlePlace `json:"results"`
}

type googlePlace struct {
	PlaceID          string `json:"place_id"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location     struct{ Lat, Lng float64 } `json:"location"`
		LocationType string                     `json:"location_type"`
	} `json:"geometry"`
}

// geocodeGoogle resolves place with the Google Geocoding API. ZERO_RESULTS
// is an unmatched result, every other non-OK status an error.
func (g *geocoder) geocodeGoogle(ctx context.Context, place string) (*Result, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {strings.TrimSpace(place)},
		"key":     {g.apiKey},
	}

	reqURL := g.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch gr.Status {
	case "OK":
		if len(gr.Results) > 0 {
			return gr.Results[0].result(), nil
		}
		return &Result{Source: sourceGoogle}, nil
	case "ZERO_RESULTS":
		return &Result{Source: sourceGoogle}, nil
	case "":
		return nil, eris.New("geocode: google response missing status")
	default:
		if gr.ErrorMessage != "" {
			return nil, eris.Errorf("geocode: google status %s: %s", gr.Status, gr.ErrorMessage)
		}
		return nil, eris.Errorf("geocode: google status %s", gr.Status)
	}
}

func (p googlePlace) result() *Result {
	return &Result{
		Latitude:         p.Geometry.Location.Lat,
		Longitude:        p.Geometry.Location.Lng,
		FormattedAddress: p.FormattedAddress,
		PlaceID:          p.PlaceID,
		Source:           sourceGoogle,
		Quality:          googleLocationTypeToQuality(p.Geometry.LocationType),
		Matched:          true,
	}
}

// googleLocationTypeToQuality maps location_type onto Result.Quality.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
