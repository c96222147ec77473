package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/pkg/geocode"
)

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, place string) (*geocode.Result, error) {
	args := m.Called(ctx, place)
	if r := args.Get(0); r != nil {
		return r.(*geocode.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func at(lat, lng float64) *geocode.Result {
	return &geocode.Result{Latitude: lat, Longitude: lng, Matched: true, Source: "google"}
}

func TestHaversineKM(t *testing.T) {
	t.Parallel()

	// Mumbai to Pune is roughly 120 km as the crow flies.
	d := haversineKM(19.0760, 72.8777, 18.5204, 73.8567)
	assert.InDelta(t, 120, d, 5)
	assert.InDelta(t, 0, haversineKM(30.0, -97.0, 30.0, -97.0), 0.001)
}

func TestCompute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		km        float64
		days      int
		travelers int
		want      map[string]float64
		total     float64
	}{
		{
			name: "two travelers three days", km: 100, days: 3, travelers: 2,
			// transport (300+150)*2*2, stay 1 room * 1500 * 2 nights, food 800*2*3
			want:  map[string]float64{"transport": 1800, "stay": 3000, "food": 4800},
			total: 9600,
		},
		{
			name: "single day books one night", km: 0, days: 1, travelers: 1,
			want:  map[string]float64{"transport": 600, "stay": 1500, "food": 800},
			total: 2900,
		},
		{
			name: "odd group needs extra room", km: 10, days: 2, travelers: 3,
			want:  map[string]float64{"transport": 1890, "stay": 3000, "food": 4800},
			total: 9690,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := Compute(DefaultRates(), tt.km, tt.days, tt.travelers)
			assert.Equal(t, tt.want, f.Breakdown)
			assert.InDelta(t, tt.total, f.Total, 0.001)
			assert.Equal(t, "INR", f.Currency)
		})
	}
}

func TestFloor(t *testing.T) {
	t.Parallel()

	geo := new(mockGeocoder)
	geo.On("Geocode", mock.Anything, "Mumbai").Return(at(19.0760, 72.8777), nil)
	geo.On("Geocode", mock.Anything, "Goa").Return(at(15.2993, 74.1240), nil)

	e := NewEstimator(geo, Rates{})
	f, err := e.Floor(context.Background(), model.Request{Origin: "Mumbai", Destination: "Goa", Days: 4, Travelers: 2})
	require.NoError(t, err)

	assert.Greater(t, f.DistanceKM, 400.0)
	assert.Less(t, f.DistanceKM, 460.0)
	assert.InDelta(t, f.Breakdown["transport"]+f.Breakdown["stay"]+f.Breakdown["food"], f.Total, 1)
	geo.AssertExpectations(t)
}

func TestFloor_Errors(t *testing.T) {
	t.Parallel()

	geo := new(mockGeocoder)
	geo.On("Geocode", mock.Anything, "Mumbai").Return(at(19.0760, 72.8777), nil)
	geo.On("Geocode", mock.Anything, "Atlantis").Return(&geocode.Result{Matched: false}, nil)
	geo.On("Geocode", mock.Anything, "Down").Return(nil, errors.New("quota"))
	e := NewEstimator(geo, DefaultRates())

	_, err := e.Floor(context.Background(), model.Request{Destination: "Goa", Days: 2, Travelers: 1})
	require.Error(t, err)

	_, err = e.Floor(context.Background(), model.Request{Origin: "Mumbai", Destination: "Atlantis", Days: 2, Travelers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no match")

	_, err = e.Floor(context.Background(), model.Request{Origin: "Down", Destination: "Goa", Days: 2, Travelers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestHint(t *testing.T) {
	t.Parallel()

	geo := new(mockGeocoder)
	geo.On("Geocode", mock.Anything, "Delhi").Return(at(28.6139, 77.2090), nil)
	geo.On("Geocode", mock.Anything, "Jaipur").Return(at(26.9124, 75.7873), nil)
	e := NewEstimator(geo, DefaultRates())

	req := model.Request{Origin: "Delhi", Destination: "Jaipur", Days: 2, Travelers: 2, Currency: "INR"}
	floor, err := e.Hint(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, floor, 0.0)

	req.Currency = "EUR"
	floor, err = e.Hint(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, floor)

	req.Currency, req.Origin = "INR", ""
	floor, err = e.Hint(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, floor)

	geo.AssertNumberOfCalls(t, "Geocode", 2)
}
