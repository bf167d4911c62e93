package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendTimescale = "timescale"
	BackendInflux    = "influx"
	BackendMemory    = "memory"
)

// Endpoint is an HTTP sink guarded by a shared secret.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// KafkaEndpoint is a Kafka topic sink.
type KafkaEndpoint struct {
	Brokers []string
	Topic   string
}

type AppConfig struct {
	Port    string `env:"PORT" envDefault:"8080"`
	LogFile string `env:"LOG_FILE" envDefault:"./log/solar-data-aggregation.log"`
	LogMode string `env:"LOG_MODE" envDefault:"development" validate:"oneof=development release"`

	// HTTPTimeout bounds every upstream call.
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"60s" validate:"gt=0"`
	CredentialTTL   time.Duration `env:"CREDENTIAL_TTL" envDefault:"5m" validate:"gt=0"`
	MarketUTCOffset time.Duration `env:"MARKET_UTC_OFFSET" envDefault:"8h" validate:"gte=-14h,lte=14h"`

	GoodWeUsername       string `env:"GOODWE_API_USERNAME" validate:"required"`
	GoodWePassword       string `env:"GOODWE_API_PASSWORD,unset" validate:"required"`
	GoodWePowerStationID string `env:"GOODWE_API_POWERSTATION_ID" validate:"required"`

	UVStationName  string `env:"UV_STATION_NAME" envDefault:"per"`
	WeatherGeocode string `env:"WEATHER_GEOCODE" envDefault:"qd63he"`

	StoreBackend    string        `env:"STORE_BACKEND" envDefault:"timescale" validate:"oneof=timescale influx memory"`
	DatabaseURL     string        `env:"DATABASE_URL,unset" validate:"required_if=StoreBackend timescale"`
	InfluxURL       string        `env:"INFLUXDB_URL" validate:"required_if=StoreBackend influx"`
	InfluxToken     string        `env:"INFLUXDB_TOKEN,unset" validate:"required_if=StoreBackend influx"`
	InfluxOrg       string        `env:"INFLUXDB_ORG" validate:"required_if=StoreBackend influx"`
	InfluxBucket    string        `env:"INFLUXDB_BUCKET" envDefault:"solar"`
	StoreMaxHistory int           `env:"STORE_MAX_HISTORY" envDefault:"0" validate:"gte=0"`
	StoreMaxAge     time.Duration `env:"STORE_MAX_AGE" envDefault:"0s" validate:"gte=0"`

	HomeGatewayBaseURL string `env:"HOME_GATEWAY_BASE_URL" validate:"omitempty,url"`
	HomeGatewayAPIKey  string `env:"HOME_GATEWAY_API_KEY,unset" validate:"required_with=HomeGatewayBaseURL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"solar-readings"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// ForwardTarget is nil when no home gateway is configured.
	ForwardTarget *Endpoint
	// KafkaTarget is nil when no brokers are configured.
	KafkaTarget *KafkaEndpoint
}

// LoadDotEnv loads a .env file if one exists. A missing file is not an error
// for callers that only want to log it.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load parses the environment, validates it and derives the optional sinks.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg, env.Options{}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.HomeGatewayBaseURL != "" {
		cfg.ForwardTarget = &Endpoint{
			BaseURL: cfg.HomeGatewayBaseURL,
			APIKey:  cfg.HomeGatewayAPIKey,
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		cfg.KafkaTarget = &KafkaEndpoint{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}
	}

	return cfg, nil
}
