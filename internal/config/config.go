package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string `envconfig:"BACKEND_ADDR" default:":18111"`

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// StripeWebhookSecret is the endpoint signing secret (whsec_...).
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// StripeWebhookTolerance bounds the age of a signed delivery.
	StripeWebhookTolerance time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`

	// WebhookMaxAttempts is how many times a failed event is replayed before
	// it is dead-lettered.
	WebhookMaxAttempts int `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"5"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"2"`

	// AMQPURL enables the RabbitMQ notifier. Empty means notifications are logged.
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"billing.events"`

	// AdminToken guards the dead-letter endpoints. Empty disables them.
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

const (
	defaultServerAddress = ":18111"
	envServerAddress     = "BACKEND_ADDR"
	envDatabaseURL       = "DATABASE_URL"
	envWebhookSecret     = "STRIPE_WEBHOOK_SECRET"
)

// LoadDotEnv loads a .env file when one exists. Variables already set in the
// environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if cfg.ServerAddress == "" {
		cfg.ServerAddress = defaultServerAddress
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}
	if cfg.StripeWebhookSecret == "" {
		return Config{}, fmt.Errorf("%s is required", envWebhookSecret)
	}
	if cfg.StripeWebhookTolerance <= 0 {
		return Config{}, errors.New("STRIPE_WEBHOOK_TOLERANCE must be positive")
	}
	if cfg.WebhookMaxAttempts < 1 {
		return Config{}, errors.New("WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for tools that never serve webhooks.
func LoadDatabaseURL() (string, error) {
	dsn := os.Getenv(envDatabaseURL)
	if dsn == "" {
		return "", fmt.Errorf("%s is required", envDatabaseURL)
	}
	return dsn, nil
}
