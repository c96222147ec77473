package model

import (
	"math"
	"strings"
)

// PlaceholderImageURL is the stock image generation stages fall back to when
// they have nothing better.
const PlaceholderImageURL = "https://via.placeholder.com/400x300?text=No+Image+Found"

// LeaveEmpty is the sentinel the stage prompts ask models to emit for media
// fields they cannot fill.
const LeaveEmpty = "LEAVE_EMPTY"

// Itinerary is the final structured travel plan.
type Itinerary struct {
	Destination string      `json:"destination"`
	Origin      string      `json:"origin,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Days        []Day       `json:"days"`
	Lodging     []Lodging   `json:"lodging"`
	Transport   []Transport `json:"transport,omitempty"`
	Budget      Budget      `json:"budget"`
}

// Day is one day of the plan.
type Day struct {
	Day        int        `json:"day"`
	Theme      string     `json:"theme,omitempty"`
	Activities []Activity `json:"activities"`
}

// Activity is a single scheduled item within a day.
type Activity struct {
	Time         string          `json:"time,omitempty"`
	Name         string          `json:"activity"`
	Description  string          `json:"description,omitempty"`
	Details      ActivityDetails `json:"details"`
	CostEstimate float64         `json:"cost_estimate"`
	ImageURL     string          `json:"image_url"`
}

// ActivityDetails carries optional visitor information.
type ActivityDetails struct {
	FamousFor       string `json:"famous_for,omitempty"`
	BestTimeToVisit string `json:"best_time_to_visit,omitempty"`
	OpeningHours    string `json:"opening_hours,omitempty"`
}

// Lodging is a recommended place to stay.
type Lodging struct {
	Name          string  `json:"name"`
	Area          string  `json:"area,omitempty"`
	PricePerNight float64 `json:"price_per_night"`
	Rating        float64 `json:"rating,omitempty"`
	BookingLink   string  `json:"booking_link,omitempty"`
	ImageURL      string  `json:"image_url"`
}

// Transport is one leg or option for getting to and around the destination.
type Transport struct {
	Mode     string  `json:"mode"`
	Provider string  `json:"provider,omitempty"`
	Details  string  `json:"details,omitempty"`
	Cost     float64 `json:"cost"`
}

// Budget summarises the plan's expected spend.
type Budget struct {
	Total        float64            `json:"total"`
	Currency     string             `json:"currency,omitempty"`
	Breakdown    map[string]float64 `json:"breakdown"`
	WithinBudget bool               `json:"within_budget"`
}

// BreakdownTotal sums the breakdown entries.
func (b Budget) BreakdownTotal() float64 {
	var sum float64
	for _, v := range b.Breakdown {
		sum += v
	}
	return sum
}

// Reconcile recomputes the total from the breakdown when one is present and
// derives WithinBudget against limit. Totals are rounded to cents.
func (b *Budget) Reconcile(limit float64) {
	if len(b.Breakdown) > 0 {
		b.Total = b.BreakdownTotal()
	}
	b.Total = math.Round(b.Total*100) / 100
	b.WithinBudget = limit > 0 && b.Total <= limit
}

var placeholderValues = map[string]bool{
	"":          true,
	"n/a":       true,
	"na":        true,
	"none":      true,
	"null":      true,
	"undefined": true,
	"tbd":       true,
}

// IsPlaceholderMedia reports whether a media reference still needs to be
// looked up.
func IsPlaceholderMedia(url string) bool {
	v := strings.TrimSpace(url)
	if placeholderValues[strings.ToLower(v)] {
		return true
	}
	if strings.Contains(v, LeaveEmpty) {
		return true
	}
	if strings.HasPrefix(v, "https://via.placeholder.com/") || strings.HasPrefix(v, "http://via.placeholder.com/") {
		return true
	}
	return !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://")
}

// ActivityCount returns the number of scheduled activities across all days.
func (it *Itinerary) ActivityCount() int {
	n := 0
	for _, d := range it.Days {
		n += len(d.Activities)
	}
	return n
}
