package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/payments"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Dependencies collects everything the router hands to controllers.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        *redis.Client
	Idempotency  redis.Store
	Checkout     controllers.CheckoutService
	Orders       ordercontrollers.Service
	Settlement   paymentcontrollers.Settler
	Signer       *payments.Signer
	WebhookGuard *payments.IdempotencyGuard
	Gatherer     prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{"database": deps.DB}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// gateway callbacks authenticate by signature, not by token
	r.Route("/payments/webhook", func(r chi.Router) {
		r.Post("/", paymentcontrollers.Webhook(deps.Settlement, deps.Signer, deps.WebhookGuard, logg))
		r.Post("/refund", paymentcontrollers.RefundWebhook(deps.Settlement, deps.Signer, deps.WebhookGuard, logg))
	})

	idempotent := middleware.Idempotency(deps.Idempotency, cfg.Eventing.APIIdempotencyTTL, logg)
	sellerOnly := middleware.RequireRoles(logg, enums.UserRoleSeller)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.With(idempotent).Post("/create", controllers.CheckoutCreate(deps.Checkout, logg))
			r.Get("/{sessionId}", controllers.CheckoutDetail(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRoles(logg, enums.UserRoleAdmin)).Get("/", ordercontrollers.ListAll(deps.Orders, logg))
			r.With(idempotent).Post("/create", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/my-orders", ordercontrollers.ListMine(deps.Orders, logg))
			r.Route("/seller", func(r chi.Router) {
				r.Use(sellerOnly)
				r.Get("/my-orders", ordercontrollers.ListSeller(deps.Orders, false, logg))
				r.Get("/my-active-orders", ordercontrollers.ListSeller(deps.Orders, true, logg))
				r.Put("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
			})
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(middleware.RequireRoles(logg, enums.UserRoleUser, enums.UserRoleSeller)).
				Put("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Post("/payments/verify/{orderId}", paymentcontrollers.Verify(deps.Settlement, logg))
	})

	return r
}
