package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trip-planner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	search_hash  TEXT NOT NULL,
	destination  TEXT NOT NULL,
	origin       TEXT NOT NULL DEFAULT '',
	days         INTEGER NOT NULL,
	budget       REAL NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL,
	request      TEXT NOT NULL,
	document     TEXT,
	rejection    TEXT NOT NULL DEFAULT '',
	cost_usd     REAL NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_trips_status ON trips(status);
CREATE INDEX IF NOT EXISTS idx_trips_destination ON trips(destination COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_trips_search_hash ON trips(search_hash);
`

// Migrate creates the trips table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTrip inserts or replaces trip. A missing ID or CreatedAt is filled in.
func (s *SQLiteStore) SaveTrip(ctx context.Context, trip *model.Trip) error {
	row, err := newTripRow(trip)
	if err != nil {
		return eris.Wrap(err, "sqlite: save trip")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trips (id, run_id, search_hash, destination, origin, days, budget, currency, status, request, document, rejection, cost_usd, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status, document = excluded.document, rejection = excluded.rejection,
			cost_usd = excluded.cost_usd, completed_at = excluded.completed_at`,
		trip.ID, trip.RunID, trip.SearchHash, trip.Request.Destination, trip.Request.Origin,
		trip.Request.Days, trip.Request.Budget, trip.Request.Currency, string(trip.Status),
		string(row.request), nullableJSON(row.document), trip.Rejection, trip.CostUSD,
		trip.CreatedAt, trip.CompletedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert trip %s", trip.ID)
	}
	return nil
}

const sqliteTripColumns = `id, run_id, search_hash, status, request, document, rejection, cost_usd, created_at, completed_at`

// GetTrip loads a trip by id.
func (s *SQLiteStore) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTripColumns+` FROM trips WHERE id = ?`, id)
	t, err := scanSQLiteTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get trip %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get trip %s", id)
	}
	return t, nil
}

// ListTrips returns trips newest first.
func (s *SQLiteStore) ListTrips(ctx context.Context, filter model.TripFilter) ([]model.Trip, error) {
	query := `SELECT ` + sqliteTripColumns + ` FROM trips WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Destination != "" {
		query += ` AND destination = ? COLLATE NOCASE`
		args = append(args, filter.Destination)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trips")
	}
	defer rows.Close() //nolint:errcheck

	var trips []model.Trip
	for rows.Next() {
		t, err := scanSQLiteTrip(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trip")
		}
		trips = append(trips, *t)
	}
	return trips, eris.Wrap(rows.Err(), "sqlite: list trips iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteTrip(row scannable) (*model.Trip, error) {
	var (
		t        model.Trip
		status   string
		request  string
		document sql.NullString
	)
	if err := row.Scan(&t.ID, &t.RunID, &t.SearchHash, &status, &request, &document,
		&t.Rejection, &t.CostUSD, &t.CreatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = model.RunStatus(status)
	var doc []byte
	if document.Valid {
		doc = []byte(document.String)
	}
	if err := decodeTrip(&t, []byte(request), doc); err != nil {
		return nil, err
	}
	return &t, nil
}

// tripRow carries the JSON columns of a trip.
type tripRow struct {
	request  []byte
	document []byte
}

func newTripRow(trip *model.Trip) (*tripRow, error) {
	if trip == nil {
		return nil, eris.New("nil trip")
	}
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	if trip.CompletedAt.IsZero() {
		trip.CompletedAt = now
	}

	req, err := json.Marshal(trip.Request)
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}
	row := &tripRow{request: req}
	if trip.Itinerary != nil {
		row.document, err = json.Marshal(trip.Itinerary)
		if err != nil {
			return nil, eris.Wrap(err, "marshal itinerary")
		}
	}
	return row, nil
}

func decodeTrip(t *model.Trip, request, document []byte) error {
	if err := json.Unmarshal(request, &t.Request); err != nil {
		return eris.Wrap(err, "unmarshal request")
	}
	if len(document) > 0 {
		t.Itinerary = &model.Itinerary{}
		if err := json.Unmarshal(document, t.Itinerary); err != nil {
			return eris.Wrap(err, "unmarshal itinerary")
		}
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
