package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fastprodman/vmpay-authorizer/internal/infra/metrics"
)

// BasePath prefixes every VMpay route.
const BasePath = "/vmpay/v1/authorizer"

// NewRouter constructs a chi router with all API endpoints registered.
// metricsReg may be nil, in which case /metrics is not served.
func NewRouter(svc Service, apiKey string, metricsReg *metrics.Registry) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)

	if metricsReg != nil {
		r.Method(http.MethodGet, "/metrics", metricsReg.Handler())
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Use(RequireAPIKey(apiKey))

		r.Post("/authorizations", h.AuthorizeHandler)
		r.Post("/authorizations/{orderUUID}/rollback", h.RollbackHandler)
		r.Get("/tags/{tagNumber}/balance", h.BalanceHandler)
	})

	return r
}

// Routes lists the public endpoints, for the startup log.
func Routes() []string {
	return []string{
		"POST " + BasePath + "/authorizations",
		"POST " + BasePath + "/authorizations/{order_uuid}/rollback",
		"GET " + BasePath + "/tags/{tag_number}/balance",
		"GET /health",
		"GET /healthz",
		"GET /readyz",
		"GET /metrics",
	}
}
