// Package app wires configuration into the running service graph.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/iliamunaev/license-checkout/internal/config"
	"github.com/iliamunaev/license-checkout/internal/middleware"
	"github.com/iliamunaev/license-checkout/internal/order"
	"github.com/iliamunaev/license-checkout/internal/service/keyauth"
	"github.com/iliamunaev/license-checkout/internal/service/mailer"
	"github.com/iliamunaev/license-checkout/internal/service/paypal"
	"github.com/iliamunaev/license-checkout/internal/service/pool"
	"github.com/iliamunaev/license-checkout/internal/service/tracker"
	httptransport "github.com/iliamunaev/license-checkout/internal/transport/http"
)

// App is the assembled service.
type App struct {
	Handler        http.Handler
	Orders         *order.Service
	Tracker        *tracker.Tracker
	RequestTimeout time.Duration
	MailEnabled    bool
}

// Option adjusts wiring, mostly for tests.
type Option func(*options)

type options struct {
	httpClient *http.Client
	notifier   order.Notifier
}

// WithHTTPClient makes both upstream clients use c.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithNotifier replaces the SMTP mailer.
func WithNotifier(n order.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New builds the clients, the orchestrator and the router from cfg.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	payments := paypal.New(paypal.Config{
		BaseURL:      cfg.PayPalAPIURL,
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalSecret,
		ReturnURL:    cfg.PayPalReturnURL,
		CancelURL:    cfg.PayPalCancelURL,
		ItemName:     cfg.ItemName,
		Timeout:      cfg.UpstreamTimeout,
		HTTPClient:   o.httpClient,
	})
	licenses := keyauth.New(keyauth.Config{
		BaseURL:    cfg.KeyAuthAPIURL,
		SellerKey:  cfg.KeyAuthSellerKey,
		Expiry:     cfg.LicenseExpiry,
		Mask:       cfg.LicenseMask,
		Level:      cfg.LicenseLevel,
		Format:     cfg.LicenseFormat,
		Timeout:    cfg.UpstreamTimeout,
		HTTPClient: o.httpClient,
	})

	tr := &tracker.Tracker{}
	orderOpts := []order.Option{
		order.WithTracker(tr),
		order.WithLogger(logger.With(slog.String("component", "order"))),
	}

	notifier := o.notifier
	if notifier == nil && cfg.MailEnabled() {
		m, err := mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.UpstreamTimeout,
		}, pool.New(cfg.MailConcurrency))
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		notifier = m
	}
	if notifier != nil {
		orderOpts = append(orderOpts, order.WithNotifier(notifier))
	}

	svc := order.New(payments, licenses, orderOpts...)
	h := httptransport.New(svc, cfg.RequestTimeout, logger)

	router := httptransport.NewRouter(h, httptransport.RouterConfig{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StaticDir:      staticDir(cfg.StaticDir),
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		TrustProxyHops: cfg.TrustProxyHops,
	})

	return &App{
		Handler:        router,
		Orders:         svc,
		Tracker:        tr,
		RequestTimeout: cfg.RequestTimeout,
		MailEnabled:    notifier != nil,
	}, nil
}

// staticDir returns dir when it exists, "" otherwise.
func staticDir(dir string) string {
	if dir == "" {
		return ""
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return ""
	}
	return dir
}
