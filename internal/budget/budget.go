// Package budget estimates a conservative lower bound for a trip's cost from
// the distance between origin and destination.
package budget

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/pkg/geocode"
)

const earthRadiusKM = 6371.0

// Rates are the unit prices of a budget trip, in Rates.Currency.
type Rates struct {
	Currency       string  `yaml:"currency" mapstructure:"currency"`
	TransportBase  float64 `yaml:"transport_base" mapstructure:"transport_base"`     // per person, one way
	TransportPerKM float64 `yaml:"transport_per_km" mapstructure:"transport_per_km"` // per person, one way
	RoomPerNight   float64 `yaml:"room_per_night" mapstructure:"room_per_night"`     // two travelers per room
	FoodPerDay     float64 `yaml:"food_per_day" mapstructure:"food_per_day"`         // per person
}

// DefaultRates are sleeper bus/train fares, a budget hotel and budget meals
// in Indian rupees.
func DefaultRates() Rates {
	return Rates{
		Currency:       model.DefaultCurrency,
		TransportBase:  300,
		TransportPerKM: 1.5,
		RoomPerNight:   1500,
		FoodPerDay:     800,
	}
}

// Floor is the minimum spend for a trip and how it splits.
type Floor struct {
	DistanceKM float64            `json:"distance_km"`
	Total      float64            `json:"total"`
	Currency   string             `json:"currency"`
	Breakdown  map[string]float64 `json:"breakdown"`
}

// Estimator computes budget floors.
type Estimator struct {
	geo   geocode.Client
	rates Rates
}

// NewEstimator creates an Estimator. Zero rates fall back to DefaultRates.
func NewEstimator(geo geocode.Client, rates Rates) *Estimator {
	if rates == (Rates{}) {
		rates = DefaultRates()
	}
	return &Estimator{geo: geo, rates: rates}
}

// Floor geocodes both ends of the trip and prices the cheapest plausible
// version of it.
func (e *Estimator) Floor(ctx context.Context, req model.Request) (*Floor, error) {
	if strings.TrimSpace(req.Origin) == "" {
		return nil, eris.New("budget: origin is required")
	}
	from, err := e.locate(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	to, err := e.locate(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	km := haversineKM(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	return Compute(e.rates, km, req.Days, req.Travelers), nil
}

// Hint returns the floor total for requests priced in the estimator's
// currency. A zero hint means none applies.
func (e *Estimator) Hint(ctx context.Context, req model.Request) (float64, error) {
	if req.Origin == "" || !strings.EqualFold(req.Currency, e.rates.Currency) {
		return 0, nil
	}
	f, err := e.Floor(ctx, req)
	if err != nil {
		return 0, err
	}
	zap.L().Debug("budget: floor",
		zap.String("origin", req.Origin),
		zap.String("destination", req.Destination),
		zap.Float64("distance_km", f.DistanceKM),
		zap.Float64("floor", f.Total),
	)
	return f.Total, nil
}

func (e *Estimator) locate(ctx context.Context, place string) (*geocode.Result, error) {
	r, err := e.geo.Geocode(ctx, place)
	if err != nil {
		return nil, eris.Wrapf(err, "budget: geocode %q", place)
	}
	if !r.Matched {
		return nil, eris.Errorf("budget: no match for %q", place)
	}
	return r, nil
}

// Compute prices a round trip of km each way for travelers people over days.
func Compute(r Rates, km float64, days, travelers int) *Floor {
	travelers = max(travelers, 1)
	days = max(days, 1)

	transport := (r.TransportBase + km*r.TransportPerKM) * 2 * float64(travelers)
	rooms := math.Ceil(float64(travelers) / 2)
	nights := float64(max(1, days-1))
	stay := rooms * r.RoomPerNight * nights
	food := r.FoodPerDay * float64(travelers) * float64(days)

	return &Floor{
		DistanceKM: math.Round(km*100) / 100,
		Total:      math.Round(transport + stay + food),
		Currency:   r.Currency,
		Breakdown: map[string]float64{
			"transport": math.Round(transport),
			"stay":      stay,
			"food":      food,
		},
	}
}

// haversineKM returns the great-circle distance in kilometres.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
