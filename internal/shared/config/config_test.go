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

	assert.Equal(t, "bet-engine", cfg.ServiceName)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 50*time.Millisecond, cfg.ReplicaLag)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.PriceCacheTTL)
	assert.Equal(t, cfg.PostgresDSN, cfg.PostgresReplicaDSN)
	assert.Equal(t, "bet_settled", cfg.Topics()["bet_settled"])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_REPLICA_DSN", "postgres://replica")
	t.Setenv("REPLICA_LAG", "200ms")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://replica", cfg.PostgresReplicaDSN)
	assert.Equal(t, 200*time.Millisecond, cfg.ReplicaLag)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "store", key: "STORE_DRIVER", val: "sqlite"},
		{name: "cache", key: "CACHE_DRIVER", val: "memcached"},
		{name: "price source", key: "PRICE_SOURCE", val: "ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
