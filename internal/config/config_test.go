package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
)

var configEnv = []string{
	"HTTP_ADDR", "LOG_LEVEL", "EVENT_STORE", "DATABASE_URL",
	"DYNAMO_EVENTS_TABLE", "DYNAMO_SNAPSHOTS_TABLE", "SNAPSHOT_THRESHOLD",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "NOTIFICATION_TOPIC", "KAFKA_CONSUMER_GROUP",
	"JWT_SECRET", "OTEL_ENDPOINT", "OTEL_AUTH_HEADER",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, StoreMemory, cfg.EventStore)
	assert.Equal(t, store.DefaultSnapshotThreshold, cfg.SnapshotThreshold)
	assert.Equal(t, "order-events", cfg.KafkaTopic)
	assert.Equal(t, "order-notifications", cfg.NotificationTopic)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.TracingEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("EVENT_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/orders")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("SNAPSHOT_THRESHOLD", "25")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_ENDPOINT", "otlp.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.EventStore)
	assert.Equal(t, "postgres://u:p@db:5432/orders", cfg.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 25, cfg.SnapshotThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.TracingEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown store", map[string]string{"EVENT_STORE": "mongo"}, "EVENT_STORE"},
		{"bad threshold", map[string]string{"SNAPSHOT_THRESHOLD": "ten"}, "SNAPSHOT_THRESHOLD"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAPI(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"missing", "", true},
		{"too short", "short-secret", true},
		{"long enough", strings.Repeat("s", 32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{JWTSecret: tt.secret}
			err := cfg.ValidateAPI()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
