package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string `env:"PORT" env-default:"8090"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	BaseURL     string `env:"BASE_URL"`

	// Store configuration
	StoreDriver   string `env:"STORE_DRIVER" env-default:"pocketbase"`
	MongoURI      string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" env-default:"theater"`
	BoltPath      string `env:"BOLT_PATH" env-default:"pb_data/theater.db"`

	// Redis configuration
	RedisURL      string `env:"REDIS_URL" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Payment providers
	Currency                 string `env:"CURRENCY" env-default:"BRL"`
	MercadoPagoAccessToken   string `env:"MERCADOPAGO_ACCESS_TOKEN"`
	MercadoPagoWebhookSecret string `env:"MERCADOPAGO_WEBHOOK_SECRET"`
	MercadoPagoBaseURL       string `env:"MERCADOPAGO_BASE_URL" env-default:"https://api.mercadopago.com"`
	StripeSecretKey          string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret      string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePublishableKey     string `env:"STRIPE_PUBLISHABLE_KEY"`
	DefaultProvider          string `env:"DEFAULT_PROVIDER" env-default:"mercadopago"`

	// Mail configuration
	MailDriver      string `env:"MAIL_DRIVER" env-default:"log"`
	MailFromAddress string `env:"MAIL_FROM_ADDRESS" env-default:"ingressos@localhost"`
	MailFromName    string `env:"MAIL_FROM_NAME" env-default:"Teatro"`
	SMTPHost        string `env:"SMTP_HOST" env-default:"localhost"`
	SMTPPort        int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPTLS         bool   `env:"SMTP_TLS" env-default:"false"`
	SESRegion       string `env:"SES_REGION" env-default:"us-east-1"`

	// Access control. Values starting with "$2" are treated as bcrypt hashes.
	AdminPassword      string `env:"ADMIN_PASSWORD"`
	ValidationPassword string `env:"VALIDATION_PASSWORD"`

	// PubNub configuration
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubSecretKey    string `env:"PUBNUB_SECRET_KEY"`
	PubNubChannel      string `env:"PUBNUB_CHANNEL" env-default:"theater-events"`

	// Kafka configuration
	KafkaBrokers []string `env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" env-default:"theater.events"`

	// Timeout configuration
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" env-default:"10s"`
	WebhookLockTTL  time.Duration `env:"WEBHOOK_LOCK_TTL" env-default:"2m"`

	// Rate limiting
	ScanRateLimit  int           `env:"SCAN_RATE_LIMIT" env-default:"60"`
	ScanRateWindow time.Duration `env:"SCAN_RATE_WINDOW" env-default:"1m"`

	// Monitoring
	EnableMetrics bool `env:"ENABLE_METRICS" env-default:"true"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config: no .env file loaded", "error", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	// Ticket QR codes embed BaseURL and are rendered from webhooks, where no
	// request host is available.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("config: BASE_URL is required in production")
		}
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("config: BASE_URL %q must be an absolute URL", cfg.BaseURL)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
