package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("GOODWE_API_USERNAME", "me@example.com")
	t.Setenv("GOODWE_API_PASSWORD", "secret")
	t.Setenv("GOODWE_API_POWERSTATION_ID", "ps-1")
	t.Setenv("STORE_BACKEND", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.CredentialTTL)
	assert.Equal(t, 8*time.Hour, cfg.MarketUTCOffset)
	assert.Equal(t, "per", cfg.UVStationName)
	assert.Equal(t, "qd63he", cfg.WeatherGeocode)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.Nil(t, cfg.ForwardTarget)
	assert.Nil(t, cfg.KafkaTarget)
}

func TestLoad_ForwardTargets(t *testing.T) {
	setRequired(t)
	t.Setenv("HOME_GATEWAY_BASE_URL", "https://gateway.local")
	t.Setenv("HOME_GATEWAY_API_KEY", "k")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.ForwardTarget)
	assert.Equal(t, "https://gateway.local", cfg.ForwardTarget.BaseURL)
	assert.Equal(t, "k", cfg.ForwardTarget.APIKey)

	require.NotNil(t, cfg.KafkaTarget)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaTarget.Brokers)
	assert.Equal(t, "solar-readings", cfg.KafkaTarget.Topic)
}

func TestLoad_GatewayWithoutKeyIsRejected(t *testing.T) {
	setRequired(t)
	t.Setenv("HOME_GATEWAY_BASE_URL", "https://gateway.local")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GOODWE_API_USERNAME", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_TimescaleNeedsDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "timescale")

	_, err := Load()
	assert.Error(t, err)

	// Secrets are unset from the environment once parsed.
	setRequired(t)
	t.Setenv("STORE_BACKEND", "timescale")
	t.Setenv("DATABASE_URL", "postgres://localhost/solar")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendTimescale, cfg.StoreBackend)
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}
