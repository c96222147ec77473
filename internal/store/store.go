// Package store persists planning outcomes.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trip-planner/internal/db"
	"github.com/sells-group/trip-planner/internal/model"
)

// ErrNotFound is returned by GetTrip for an unknown id.
var ErrNotFound = eris.New("store: trip not found")

// Store defines the persistence interface for planned trips.
type Store interface {
	SaveTrip(ctx context.Context, trip *model.Trip) error
	GetTrip(ctx context.Context, id string) (*model.Trip, error)
	ListTrips(ctx context.Context, filter model.TripFilter) ([]model.Trip, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Pool        *db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the configured store and runs its migration.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "trips.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres", "postgresql":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

const defaultListLimit = 100

func listLimit(f model.TripFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
