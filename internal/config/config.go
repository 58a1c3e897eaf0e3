// Package config loads the service configuration from the environment.
// It is parsed once at process start and passed by value into app.New;
// business logic never reads the environment directly.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the service.
type Config struct {
	Port int `env:"PORT" envDefault:"5000"`

	PayPalClientID  string `env:"PAYPAL_CLIENT_ID,required,notEmpty"`
	PayPalSecret    string `env:"PAYPAL_SECRET,required,notEmpty"`
	PayPalAPIURL    string `env:"PAYPAL_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	PayPalReturnURL string `env:"PAYPAL_RETURN_URL" envDefault:"https://yourfrontend.com/success"`
	PayPalCancelURL string `env:"PAYPAL_CANCEL_URL" envDefault:"https://yourfrontend.com/cancel"`
	ItemName        string `env:"LICENSE_ITEM_NAME" envDefault:"Software License Key"`

	KeyAuthSellerKey string `env:"KEYAUTH_SELLER_KEY,required,notEmpty"`
	KeyAuthAPIURL    string `env:"KEYAUTH_API_URL" envDefault:"https://keyauth.win"`
	LicenseExpiry    string `env:"LICENSE_EXPIRY" envDefault:"1"`
	LicenseMask      string `env:"LICENSE_MASK" envDefault:"******-******-******-******-******-******"`
	LicenseLevel     string `env:"LICENSE_LEVEL" envDefault:"1"`
	LicenseFormat    string `env:"LICENSE_FORMAT" envDefault:"text"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"45s"`

	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPFrom        string `env:"SMTP_FROM"`
	MailConcurrency int    `env:"MAIL_CONCURRENCY" envDefault:"4"`

	StaticDir          string        `env:"STATIC_DIR" envDefault:"public"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRequests  int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`

	// TrustProxyHops counts the reverse proxies allowed to set X-Forwarded-For.
	TrustProxyHops int `env:"TRUST_PROXY_HOPS" envDefault:"1"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	switch c.LicenseFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LICENSE_FORMAT must be text or json, got %q", c.LicenseFormat))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.RequestTimeout < c.UpstreamTimeout {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must not be shorter than UPSTREAM_TIMEOUT"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.TrustProxyHops < 0 {
		errs = append(errs, fmt.Errorf("TRUST_PROXY_HOPS must not be negative, got %d", c.TrustProxyHops))
	}
	if c.MailEnabled() && c.SMTPFrom == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// MailEnabled reports whether license keys are also emailed to the payer.
func (c Config) MailEnabled() bool { return c.SMTPHost != "" }

// SlogLevel converts LOG_LEVEL into a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
