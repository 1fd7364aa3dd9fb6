package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/stonebridge-contracting/stonebridge-backend/api/routes"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/acceptance"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/invoices"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/lineitems"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/payments"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/projects"
	"github.com/stonebridge-contracting/stonebridge-backend/internal/quotes"
	stripewebhook "github.com/stonebridge-contracting/stonebridge-backend/internal/webhooks/stripe"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/chat"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/config"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/db"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/logger"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/mailer"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/metrics"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/migrate"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/redis"
	"github.com/stonebridge-contracting/stonebridge-backend/pkg/stripe"
)

const stripeEventGuardTTL = 7 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	authorizer := stripe.NewAuthorizer(stripeClient)

	mailSender, err := mailer.NewSendgridSender(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap mailer", err)
		os.Exit(1)
	}

	chatClient, err := chat.NewClient(cfg.Chat)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap chat client", err)
		os.Exit(1)
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentStats := metrics.NewPaymentMetrics(metricsRegistry)

	quotesRepo := quotes.NewRepository(dbClient.DB())
	lineItemsRepo := lineitems.NewRepository(dbClient.DB())
	projectsRepo := projects.NewRepository(dbClient.DB())
	invoicesRepo := invoices.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())

	quotesService, err := quotes.NewService(dbClient, quotesRepo, mailSender, chatClient, logg, cfg.Quotes)
	if err != nil {
		logg.Error(context.Background(), "failed to create quotes service", err)
		os.Exit(1)
	}

	lineItemsService, err := lineitems.NewService(dbClient, lineItemsRepo, quotesRepo, quotesService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create line items service", err)
		os.Exit(1)
	}

	acceptanceService, err := acceptance.NewService(
		dbClient,
		quotesRepo,
		projectsRepo,
		invoicesRepo,
		paymentsRepo,
		authorizer,
		mailSender,
		paymentStats,
		logg,
		cfg.Quotes,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create acceptance service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(acceptanceService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripeEventGuardTTL, "stripe_webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			quotesService,
			quotesRepo,
			lineItemsService,
			acceptanceService,
			stripeClient,
			webhookService,
			webhookGuard,
			metricsRegistry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
