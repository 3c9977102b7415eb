package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.TxTimeout)
	assert.Equal(t, 30*time.Second, cfg.GCInterval)
	assert.Equal(t, 5, cfg.MaxGroupsForXG)
	assert.Equal(t, "PROD", cfg.Env)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TXCOORD_CASSANDRA_HOSTS", "10.0.0.1:9042,10.0.0.2:9042")
	t.Setenv("TXCOORD_MAX_GROUPS_FOR_XG", "3")
	t.Setenv("TXCOORD_ENV", "DEV")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1:9042", "10.0.0.2:9042"}, cfg.CassandraHosts)
	assert.Equal(t, 3, cfg.MaxGroupsForXG)
	assert.Equal(t, "DEV", cfg.Env)
}
