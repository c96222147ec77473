package model

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// RunStatus represents the current state of a planning run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusRejected  RunStatus = "rejected"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCompleted RunStatus = "completed"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusRejected || s == RunStatusFailed || s == RunStatusCompleted
}

// DefaultCurrency is used when a request does not name one.
const DefaultCurrency = "INR"

// Request is a single trip planning request.
type Request struct {
	Destination   string  `json:"destination" validate:"required,max=200"`
	Origin        string  `json:"origin,omitempty" validate:"max=200"`
	Days          int     `json:"days" validate:"required,min=1,max=30"`
	TravelStyle   string  `json:"travel_style,omitempty" validate:"max=100"`
	Budget        float64 `json:"budget" validate:"required,gt=0"`
	Travelers     int     `json:"travelers" validate:"required,min=1,max=50"`
	Currency      string  `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	ReferenceDate string  `json:"current_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ForceRefresh  bool    `json:"force_refresh,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims input and fills defaults. now supplies the reference date
// when the request has none.
func (r Request) Normalize(now time.Time) Request {
	r.Destination = collapseSpaces(r.Destination)
	r.Origin = collapseSpaces(r.Origin)
	r.TravelStyle = strings.ToLower(collapseSpaces(r.TravelStyle))
	if r.TravelStyle == "" {
		r.TravelStyle = "balanced"
	}
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	if r.Travelers == 0 {
		r.Travelers = 1
	}
	if r.ReferenceDate == "" {
		r.ReferenceDate = now.Format(time.DateOnly)
	}
	return r
}

// Validate checks the request against its field constraints.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return eris.Errorf("model: invalid %s (%s)", strings.ToLower(fe.Field()), fe.Tag())
		}
		return eris.Wrap(err, "model: validate request")
	}
	return nil
}

// Context flattens the request into the ordered key/value set handed to the
// first stage of a run.
func (r Request) Context() *orderedmap.OrderedMap[string, any] {
	m := orderedmap.New[string, any]()
	m.Set("destination", r.Destination)
	if r.Origin != "" {
		m.Set("origin", r.Origin)
	}
	m.Set("days", r.Days)
	m.Set("travel_style", r.TravelStyle)
	m.Set("budget", r.Budget)
	m.Set("currency", r.Currency)
	m.Set("travelers", r.Travelers)
	m.Set("current_date", r.ReferenceDate)
	return m
}

// SearchKey is the canonical string two equivalent requests share.
func (r Request) SearchKey() string {
	parts := []string{
		foldPlace(r.Destination),
		foldPlace(r.Origin),
		strconv.Itoa(r.Days),
		strconv.FormatFloat(r.Budget, 'f', 2, 64),
		r.Currency,
		r.TravelStyle,
		strconv.Itoa(r.Travelers),
	}
	return strings.Join(parts, "|")
}

// foldPlace case-folds a place name in NFC so differently cased or
// composed spellings share a key.
func foldPlace(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Trip is a persisted planning outcome.
type Trip struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	SearchHash  string     `json:"search_hash"`
	Request     Request    `json:"request"`
	Status      RunStatus  `json:"status"`
	Itinerary   *Itinerary `json:"itinerary,omitempty"`
	Rejection   string     `json:"rejection,omitempty"`
	CostUSD     float64    `json:"cost_usd"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// TripFilter narrows trip listings.
type TripFilter struct {
	Destination string    `json:"destination,omitempty"`
	Status      RunStatus `json:"status,omitempty"`
	Limit       int       `json:"limit,omitempty"`
	Offset      int       `json:"offset,omitempty"`
}
