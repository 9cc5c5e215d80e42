package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers interface {
	Live(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
}

type RouterConfig struct {
	Service        CartService
	Resolver       identity.Resolver
	Health         HealthHandlers
	Logger         *slog.Logger
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	cartHandler := NewCartHandler(cfg.Service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(EchoRequestID)
	r.Use(middleware.RealIP)
	r.Use(identity.Middleware(cfg.Resolver))
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Live)
		r.Get("/ready", cfg.Health.Ready)
	}

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/", cartHandler.GetCart)
		r.Post("/", cartHandler.AddItem)
		r.Put("/", cartHandler.UpdateItem)
		r.Delete("/", cartHandler.RemoveItem)
		r.Post("/clear", cartHandler.ClearCart)
		r.Post("/checkout", cartHandler.Checkout)
	})

	return otelhttp.NewHandler(r, "cart-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
