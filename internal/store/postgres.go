package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trip-planner/internal/db"
	"github.com/sells-group/trip-planner/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_trip": postgresInsertTrip,
	"get_trip":    `SELECT ` + postgresTripColumns + ` FROM trips WHERE id = $1`,
}

const postgresTripColumns = `id, run_id, search_hash, status, request, document, rejection, cost_usd, created_at, completed_at`

const postgresInsertTrip = `INSERT INTO trips (id, run_id, search_hash, destination, origin, days, budget, currency, status, request, document, rejection, cost_usd, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status, document = EXCLUDED.document, rejection = EXCLUDED.rejection,
	cost_usd = EXCLUDED.cost_usd, completed_at = EXCLUDED.completed_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL,
	search_hash  TEXT NOT NULL,
	destination  TEXT NOT NULL,
	origin       TEXT NOT NULL DEFAULT '',
	days         INTEGER NOT NULL,
	budget       NUMERIC(14,2) NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL,
	request      JSONB NOT NULL,
	document     JSONB,
	rejection    TEXT NOT NULL DEFAULT '',
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trips_status ON trips(status);
CREATE INDEX IF NOT EXISTS idx_trips_destination ON trips(lower(destination));
CREATE INDEX IF NOT EXISTS idx_trips_search_hash ON trips(search_hash, created_at DESC);
`

// Migrate creates the trips table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveTrip inserts or updates trip. A missing ID or CreatedAt is filled in.
func (s *PostgresStore) SaveTrip(ctx context.Context, trip *model.Trip) error {
	row, err := newTripRow(trip)
	if err != nil {
		return eris.Wrap(err, "postgres: save trip")
	}

	_, err = s.pool.Exec(ctx, postgresInsertTrip,
		trip.ID, trip.RunID, trip.SearchHash, trip.Request.Destination, trip.Request.Origin,
		trip.Request.Days, trip.Request.Budget, trip.Request.Currency, string(trip.Status),
		row.request, row.document, trip.Rejection, trip.CostUSD,
		trip.CreatedAt, trip.CompletedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert trip %s", trip.ID)
	}
	return nil
}

// GetTrip loads a trip by id.
func (s *PostgresStore) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	t, err := scanPostgresTrip(s.pool.QueryRow(ctx,
		`SELECT `+postgresTripColumns+` FROM trips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get trip %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get trip %s", id)
	}
	return t, nil
}

// ListTrips returns trips newest first.
func (s *PostgresStore) ListTrips(ctx context.Context, filter model.TripFilter) ([]model.Trip, error) {
	query := `SELECT ` + postgresTripColumns + ` FROM trips WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Destination != "" {
		query += fmt.Sprintf(` AND lower(destination) = lower($%d)`, argIdx)
		args = append(args, filter.Destination)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trips")
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		t, err := scanPostgresTrip(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan trip")
		}
		trips = append(trips, *t)
	}
	return trips, eris.Wrap(rows.Err(), "postgres: list trips iterate")
}

func scanPostgresTrip(row pgx.Row) (*model.Trip, error) {
	var (
		t        model.Trip
		status   string
		request  []byte
		document []byte
	)
	if err := row.Scan(&t.ID, &t.RunID, &t.SearchHash, &status, &request, &document,
		&t.Rejection, &t.CostUSD, &t.CreatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = model.RunStatus(status)
	if err := decodeTrip(&t, request, document); err != nil {
		return nil, err
	}
	return &t, nil
}
