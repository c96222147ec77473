package sink

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/store"
)

// StoreSink saves records as trips.
type StoreSink struct {
	st store.Store
}

// NewStoreSink creates a StoreSink backed by st.
func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{st: st}
}

// Accept saves rec.
func (s *StoreSink) Accept(ctx context.Context, rec Record) error {
	trip := &model.Trip{
		RunID:       rec.RunID,
		SearchHash:  rec.SearchHash,
		Request:     rec.Request,
		Status:      rec.Status,
		Itinerary:   rec.Document,
		Rejection:   string(rec.Rejection),
		CostUSD:     rec.CostUSD,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: time.Now().UTC(),
	}
	if err := s.st.SaveTrip(ctx, trip); err != nil {
		return eris.Wrapf(err, "sink: store run %s", rec.RunID)
	}
	return nil
}
