package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stonebridge-contracting/stonebridge-backend/api/controllers"
	webhookcontrollers "github.com/stonebridge-contracting/stonebridge-backend/api/controllers/webhooks"
	"github.com/stonebridge-contracting/stonebridge-backend/api/middleware"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/acceptance"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/lineitems"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	stripewebhook "github.com/stonebridge-contracting/stonebridge-backend/internal/webhooks/stripe"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/redis"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	quotesService quotes.Service,
	quotesRepo quotes.Repository,
	lineItemsService lineitems.Service,
	acceptanceService acceptance.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	metricsRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public/quotes/{accessToken}", func(r chi.Router) {
		r.Use(middleware.PublicRateLimit(cfg.PublicAccess, redisClient, logg))
		r.Get("/", controllers.PublicQuoteFetch(quotesService, logg))
		r.Post("/respond", controllers.PublicQuoteRespond(quotesService, acceptanceService, logg))
		r.Post("/payments/confirm", controllers.PublicPaymentConfirm(quotesRepo, acceptanceService, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/quotes", func(r chi.Router) {
			r.Post("/", controllers.QuoteCreate(quotesService, logg))
			r.Get("/", controllers.QuoteList(quotesService, logg))
			r.Route("/{quoteId}", func(r chi.Router) {
				r.Get("/", controllers.QuoteDetail(quotesService, logg))
				r.Patch("/", controllers.QuoteUpdate(quotesService, logg))
				r.Delete("/", controllers.QuoteDelete(quotesService, logg))
				r.Post("/send", controllers.QuoteSend(quotesService, logg))
				r.Post("/recompute-totals", controllers.QuoteRecomputeTotals(quotesService, logg))

				r.Route("/line-items", func(r chi.Router) {
					r.Get("/", controllers.LineItemList(lineItemsService, logg))
					r.Post("/", controllers.LineItemCreate(lineItemsService, logg))
				})
			})
		})

		r.Route("/line-items/{lineItemId}", func(r chi.Router) {
			r.Patch("/", controllers.LineItemUpdate(lineItemsService, logg))
			r.Delete("/", controllers.LineItemDelete(lineItemsService, logg))
		})
	})

	return r
}
