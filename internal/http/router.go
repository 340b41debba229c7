package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Metrics        http.Handler
	HealthChecks   map[string]HealthCheck
}

type Handlers struct {
	Products *ProductHandler
	Cart     *CartHandler
	BuyNow   *BuyNowHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
}

func NewRouter(cfg RouterConfig, hs Handlers) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.JWTSecret))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", hs.Products.List)
			r.Get("/{id}", hs.Products.Get)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", hs.Cart.GetCart)
			r.Post("/add", hs.Cart.AddItem)
			r.Delete("/", hs.Cart.ClearCart)
			r.Put("/{productId}", hs.Cart.UpdateQuantity)
			r.Delete("/{productId}", hs.Cart.RemoveItem)
		})
		r.Route("/buy-now", func(r chi.Router) {
			r.Get("/", hs.BuyNow.Get)
			r.Post("/", hs.BuyNow.Start)
			r.Post("/items", hs.BuyNow.Add)
			r.Delete("/", hs.BuyNow.Cancel)
		})
		r.Post("/checkout", hs.Checkout.Checkout)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/mine", hs.Orders.ListMine)
			r.Get("/{id}", hs.Orders.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(results) > 0 {
			body["checks"] = results
		}
		respondJSON(w, status, body)
	}
}
