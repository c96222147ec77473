package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/store"
)

func completedRecord() Record {
	return Record{
		RunID:      "run-1",
		SearchHash: "abc",
		Request:    model.Request{Destination: "Goa", Days: 2, Budget: 20000, Travelers: 2, Currency: "INR"},
		Status:     model.RunStatusCompleted,
		Document: &model.Itinerary{
			Destination: "Goa",
			Lodging:     []model.Lodging{{Name: "Beach Hut", PricePerNight: 2000}},
			Budget:      model.Budget{Total: 4000, Currency: "INR"},
		},
		CostUSD:   0.01,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBody_Document(t *testing.T) {
	t.Parallel()

	body, err := Body(completedRecord())
	require.NoError(t, err)

	assert.Equal(t, Source, gjson.GetBytes(body, "source").String())
	assert.Equal(t, "run-1", gjson.GetBytes(body, "run_id").String())
	assert.Equal(t, "abc", gjson.GetBytes(body, "search_hash").String())
	assert.Equal(t, "completed", gjson.GetBytes(body, "status").String())
	assert.Equal(t, "Goa", gjson.GetBytes(body, "destination").String())
	assert.Equal(t, "Beach Hut", gjson.GetBytes(body, "lodging.0.name").String())
}

func TestBody_Rejection(t *testing.T) {
	t.Parallel()

	rec := Record{RunID: "run-2", Status: model.RunStatusRejected, Rejection: json.RawMessage(`{"is_feasible":false,"reason":"too short"}`)}
	body, err := Body(rec)
	require.NoError(t, err)

	assert.False(t, gjson.GetBytes(body, "is_feasible").Bool())
	assert.Equal(t, "too short", gjson.GetBytes(body, "reason").String())
	assert.Equal(t, "rejected", gjson.GetBytes(body, "status").String())
	assert.JSONEq(t, `{"is_feasible":false,"reason":"too short"}`, string(rec.Rejection))
}

func TestBody_Empty(t *testing.T) {
	t.Parallel()

	body, err := Body(Record{RunID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "r", gjson.GetBytes(body, "run_id").String())
}

func TestWebhookSink(t *testing.T) {
	t.Parallel()

	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSink(srv.URL, nil).Accept(context.Background(), completedRecord()))
	assert.Equal(t, "run-1", gjson.GetBytes(<-bodies, "run_id").String())
}

func TestWebhookSink_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "duplicate city", http.StatusConflict)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, srv.Client()).Accept(context.Background(), completedRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
	assert.Contains(t, err.Error(), "duplicate city")
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []amqp.Publishing
	keys []string
	err  error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestAMQPSink(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	s := NewAMQPSinkWithPublisher(pub, "")
	require.NoError(t, s.Accept(context.Background(), completedRecord()))
	require.NoError(t, s.Close())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, []string{DefaultQueue}, pub.keys)
	msg := pub.msgs[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "run-1", msg.MessageId)
	assert.Equal(t, Source, gjson.GetBytes(msg.Body, "source").String())
}

func TestAMQPSink_PublishError(t *testing.T) {
	t.Parallel()

	s := NewAMQPSinkWithPublisher(&fakePublisher{err: errors.New("channel closed")}, "q")
	err := s.Accept(context.Background(), completedRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestNewAMQPSink_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewAMQPSink(AMQPConfig{})
	require.Error(t, err)
}

func TestStoreSink(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	require.NoError(t, NewStoreSink(st).Accept(context.Background(), completedRecord()))

	trips, err := st.ListTrips(context.Background(), model.TripFilter{})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "run-1", trips[0].RunID)
	require.NotNil(t, trips[0].Itinerary)
	assert.Equal(t, "Beach Hut", trips[0].Itinerary.Lodging[0].Name)
}

type errSink struct{ err error }

func (e errSink) Accept(context.Context, Record) error { return e.err }

func TestMulti(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	boom := errors.New("boom")
	m := Multi{errSink{err: boom}, NewAMQPSinkWithPublisher(pub, "q"), Nop{}}

	err := m.Accept(context.Background(), completedRecord())
	require.ErrorIs(t, err, boom)
	assert.Len(t, pub.msgs, 1)

	require.NoError(t, Multi{Nop{}}.Accept(context.Background(), completedRecord()))
}
