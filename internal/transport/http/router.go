package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/iliamunaev/license-checkout/internal/middleware"
)

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	StaticDir      string
	RateLimiter    *middleware.RateLimiter // nil disables limiting
	// TrustProxyHops is how many reverse proxies may set X-Forwarded-For.
	// Zero keys clients on the socket peer.
	TrustProxyHops int
}

// NewRouter mounts h behind client-IP resolution, request logging, panic
// recovery and CORS. Everything except /healthz is rate limited.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if h == nil {
		panic("httptransport.NewRouter: nil handler")
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP(cfg.TrustProxyHops))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.HandleHealth)

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Get("/", h.HandleIndex)
		r.Get("/complete-order", h.HandleCompleteOrder)
		r.Route("/api/paypal", func(r chi.Router) {
			r.Post("/create-order", h.HandleCreateOrder)
			r.Post("/capture-order", h.HandleCaptureOrder)
		})

		if cfg.StaticDir != "" {
			r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
		}
	})

	return r
}
