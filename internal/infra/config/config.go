package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Zone data for minimal container images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfig marks every configuration problem detected at startup.
var ErrConfig = errors.New("invalid configuration")

const (
	ProviderLine     = "line"
	ProviderTelegram = "telegram"

	EnvProduction = "production"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	Port        string
	LogLevel    string
	Environment string

	AuthJWTSecret               string
	CronSecret                  string
	CronAuthExemptNonProduction bool
	CronSpecNotify              string // Empty disables the in-process schedule

	NotifyTimezone    string
	NotifyLocation    *time.Location
	NotifyConcurrency int

	MessagingProvider      string
	LineChannelAccessToken string
	LineChannelSecret      string
	TelegramToken          string

	OCRSpaceAPIKey   string
	OCRSpaceEndpoint string
	OCRMinYear       int
	OCRMaxYear       int

	LabelArchiveBucket string
	AWSRegion          string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Errors are ignored if the file doesn't exist. godotenv.Load will not
	// override existing env variables.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("CRON_AUTH_EXEMPT_NON_PRODUCTION", false)
	v.SetDefault("NOTIFY_TIMEZONE", "Asia/Tokyo")
	v.SetDefault("NOTIFY_CONCURRENCY", 4)
	v.SetDefault("MESSAGING_PROVIDER", ProviderLine)
	v.SetDefault("OCR_SPACE_ENDPOINT", "https://api.ocr.space/parse/image")
	v.SetDefault("OCR_MIN_YEAR", 2020)
	v.SetDefault("OCR_MAX_YEAR", 2100)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	cfg := &AppConfig{
		DatabaseURL: v.GetString("DATABASE_URL"),
		Port:        v.GetString("PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		Environment: strings.ToLower(v.GetString("ENVIRONMENT")),

		AuthJWTSecret:               v.GetString("AUTH_JWT_SECRET"),
		CronSecret:                  v.GetString("CRON_SECRET"),
		CronAuthExemptNonProduction: v.GetBool("CRON_AUTH_EXEMPT_NON_PRODUCTION"),
		CronSpecNotify:              strings.TrimSpace(v.GetString("CRON_SPEC_NOTIFY")),

		NotifyTimezone:    v.GetString("NOTIFY_TIMEZONE"),
		NotifyConcurrency: v.GetInt("NOTIFY_CONCURRENCY"),

		MessagingProvider:      strings.ToLower(v.GetString("MESSAGING_PROVIDER")),
		LineChannelAccessToken: v.GetString("LINE_CHANNEL_ACCESS_TOKEN"),
		LineChannelSecret:      v.GetString("LINE_CHANNEL_SECRET"),
		TelegramToken:          v.GetString("TELEGRAM_TOKEN"),

		OCRSpaceAPIKey:   v.GetString("OCR_SPACE_API_KEY"),
		OCRSpaceEndpoint: v.GetString("OCR_SPACE_ENDPOINT"),
		OCRMinYear:       v.GetInt("OCR_MIN_YEAR"),
		OCRMaxYear:       v.GetInt("OCR_MAX_YEAR"),

		LabelArchiveBucket: v.GetString("LABEL_ARCHIVE_BUCKET"),
		AWSRegion:          v.GetString("AWS_REGION"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	loc, err := time.LoadLocation(cfg.NotifyTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid NOTIFY_TIMEZONE %q: %v", ErrConfig, cfg.NotifyTimezone, err)
	}
	cfg.NotifyLocation = loc

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// CronAuthExempt reports whether the batch trigger may be called without the
// shared secret. It never holds in production.
func (c *AppConfig) CronAuthExempt() bool {
	return c.CronAuthExemptNonProduction && !c.IsProduction()
}

// Validate checks what every command needs: the store, the messaging
// credentials of the selected provider and sane numeric settings.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}

	switch c.MessagingProvider {
	case ProviderLine:
		if c.LineChannelAccessToken == "" {
			errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is not set"))
		}
	case ProviderTelegram:
		if c.TelegramToken == "" {
			errs = append(errs, errors.New("TELEGRAM_TOKEN is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MESSAGING_PROVIDER %q", c.MessagingProvider))
	}

	if c.NotifyConcurrency < 1 {
		errs = append(errs, errors.New("NOTIFY_CONCURRENCY must be a positive integer"))
	}
	if c.OCRMinYear <= 0 || c.OCRMaxYear < c.OCRMinYear {
		errs = append(errs, fmt.Errorf("OCR year range %d..%d is invalid", c.OCRMinYear, c.OCRMaxYear))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// ValidateServer adds the requirements of the HTTP API on top of Validate.
func (c *AppConfig) ValidateServer() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.AuthJWTSecret == "" {
		errs = append(errs, fmt.Errorf("%w: AUTH_JWT_SECRET is not set", ErrConfig))
	}
	if c.CronSecret == "" && !c.CronAuthExempt() {
		errs = append(errs, fmt.Errorf("%w: CRON_SECRET is not set", ErrConfig))
	}
	if c.MessagingProvider == ProviderLine && c.LineChannelSecret == "" {
		errs = append(errs, fmt.Errorf("%w: LINE_CHANNEL_SECRET is not set", ErrConfig))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
