// Package sink delivers finished planning runs downstream.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/sjson"

	"github.com/sells-group/trip-planner/internal/model"
)

// Source stamps every record body.
const Source = "trip-planner"

// Record is one finished run handed to a Sink.
type Record struct {
	RunID      string           `json:"run_id"`
	SearchHash string           `json:"search_hash"`
	Request    model.Request    `json:"request"`
	Status     model.RunStatus  `json:"status"`
	Document   *model.Itinerary `json:"document,omitempty"`
	Rejection  json.RawMessage  `json:"rejection,omitempty"`
	CostUSD    float64          `json:"cost_usd"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Sink accepts finished runs.
type Sink interface {
	Accept(ctx context.Context, rec Record) error
}

// Body renders the JSON payload for rec: the itinerary (or the rejection
// verdict) stamped with source, run_id, search_hash and status.
func Body(rec Record) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch {
	case rec.Document != nil:
		body, err = json.Marshal(rec.Document)
		if err != nil {
			return nil, eris.Wrap(err, "sink: marshal document")
		}
	case len(rec.Rejection) > 0:
		body = append([]byte(nil), rec.Rejection...)
	default:
		body = []byte(`{}`)
	}

	stamps := []struct {
		path  string
		value any
	}{
		{"source", Source},
		{"run_id", rec.RunID},
		{"search_hash", rec.SearchHash},
		{"status", string(rec.Status)},
	}
	for _, s := range stamps {
		body, err = sjson.SetBytes(body, s.path, s.value)
		if err != nil {
			return nil, eris.Wrapf(err, "sink: stamp %s", s.path)
		}
	}
	return body, nil
}

// Multi fans a record out to every sink and joins their errors.
type Multi []Sink

// Accept delivers rec to every sink, even after one fails.
func (m Multi) Accept(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Accept(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards records.
type Nop struct{}

// Accept does nothing.
func (Nop) Accept(context.Context, Record) error { return nil }
