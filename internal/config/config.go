package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" default:"development"`
	Port        string `envconfig:"PORT" default:"8080"`

	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBName      string `envconfig:"DB_NAME" default:"leadhunter"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	ApolloAPIKey string `envconfig:"APOLLO_API_KEY"`
	ApolloAPIURL string `envconfig:"APOLLO_API_URL" default:"https://api.apollo.io/v1/mixed_people/search"`

	LLMProvider    string `envconfig:"LLM_PROVIDER"`
	BedrockModelID string `envconfig:"BEDROCK_MODEL_ID" default:"anthropic.claude-3-haiku-20240307-v1:0"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	SESAccessKey        string `envconfig:"SES_ACCESS_KEY"`
	SESSecretKey        string `envconfig:"SES_SECRET_KEY"`
	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`

	AMQPURL   string `envconfig:"AMQP_URL"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	PlatformDailyLimit int           `envconfig:"PLATFORM_DAILY_LIMIT" default:"100"`
	SendCooldown       time.Duration `envconfig:"SEND_COOLDOWN" default:"72h"`
	Timezone           string        `envconfig:"TIMEZONE" default:"UTC"`
	SchedulerEnabled   bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	SchedulerInterval  time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1h"`
	CronSecret         string        `envconfig:"CRON_SECRET"`

	FromName       string `envconfig:"DEFAULT_FROM_NAME" default:"LeadHunter"`
	FromEmail      string `envconfig:"DEFAULT_FROM_EMAIL"`
	SignatureTitle string `envconfig:"SIGNATURE_TITLE"`
	BookingURL     string `envconfig:"BOOKING_URL"`
	UnsubscribeURL string `envconfig:"UNSUBSCRIBE_URL"`
}

// Load reads an optional .env file and then the process environment.
// The bool result reports whether a .env file was found.
func Load(files ...string) (*Config, bool, error) {
	found := godotenv.Load(files...) == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, found, fmt.Errorf("failed to process config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, found, err
	}
	switch cfg.StoreDriver {
	case "postgres", "memory":
	default:
		return nil, found, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	return &cfg, found, nil
}

// DSN returns DATABASE_URL, or a postgres URL assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// Location is the zone used for midnight, weekday and 09:00 computations.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
