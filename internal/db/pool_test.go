package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig("postgres://u:p@localhost:5432/trips", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
}

func TestParseConfig_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig("postgres://u:p@localhost:5432/trips", &PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
}

func TestConnect_BadURL(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), "postgres://%zz", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}
