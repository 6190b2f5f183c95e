package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN       string        `env:"DATABASE_DSN,required=true"`
	RedisURL          string        `env:"REDIS_URL,required=true"`
	RabbitMQURL       string        `env:"RABBITMQ_URL,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	OpsPort           int           `env:"OPS_PORT,default=8081"`
	OperatingTimezone string        `env:"OPERATING_TIMEZONE,default=UTC"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	StatusSweepInterval  time.Duration `env:"STATUS_SWEEP_INTERVAL,default=5m"`
	Reminder24hInterval  time.Duration `env:"REMINDER_24H_INTERVAL,default=60m"`
	Reminder1hInterval   time.Duration `env:"REMINDER_1H_INTERVAL,default=15m"`
	Reminder15mInterval  time.Duration `env:"REMINDER_15M_INTERVAL,default=5m"`
	LowBalanceInterval   time.Duration `env:"LOW_BALANCE_INTERVAL,default=6h"`
	TrialExpiryInterval  time.Duration `env:"TRIAL_EXPIRY_INTERVAL,default=12h"`
	LowBalanceThreshold  int           `env:"LOW_BALANCE_THRESHOLD,default=2"`
	TrialExpiryLookahead time.Duration `env:"TRIAL_EXPIRY_LOOKAHEAD,default=48h"`

	EmailProvider    string `env:"EMAIL_PROVIDER,default=smtp"`
	SMTPHost         string `env:"SMTP_HOST"`
	SMTPPort         int    `env:"SMTP_PORT,default=587"`
	SMTPSecure       bool   `env:"SMTP_SECURE,default=false"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPassword     string `env:"SMTP_PASSWORD"`
	SendgridAPIKey   string `env:"SENDGRID_API_KEY"`
	EmailFromAddress string `env:"EMAIL_FROM_ADDRESS,default=no-reply@example.com"`
	EmailFromName    string `env:"EMAIL_FROM_NAME,default=Lessons"`

	SMSWebhookURL          string `env:"SMS_WEBHOOK_URL"`
	WhatsAppWebhookURL     string `env:"WHATSAPP_WEBHOOK_URL"`
	ChannelRateLimitPerSec int    `env:"CHANNEL_RATE_LIMIT_PER_SEC,default=10"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.EmailProvider = strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	switch cfg.EmailProvider {
	case EmailProviderSMTP, EmailProviderSendgrid:
	default:
		return nil, fmt.Errorf("failed to load config: unsupported EMAIL_PROVIDER %q", cfg.EmailProvider)
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

const (
	EmailProviderSMTP     = "smtp"
	EmailProviderSendgrid = "sendgrid"
)

// Location resolves OPERATING_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.OperatingTimezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATING_TIMEZONE %q: %w", c.OperatingTimezone, err)
	}
	return loc, nil
}
