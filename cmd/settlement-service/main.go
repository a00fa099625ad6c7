package main

import (
	"fmt"
	"os"

	"github.com/nurpe/skillspot-settlement/internal/auth"
	"github.com/nurpe/skillspot-settlement/internal/config"
	"github.com/nurpe/skillspot-settlement/internal/db"
	"github.com/nurpe/skillspot-settlement/internal/excel"
	"github.com/nurpe/skillspot-settlement/internal/gateway"
	httphandler "github.com/nurpe/skillspot-settlement/internal/http"
	"github.com/nurpe/skillspot-settlement/internal/http/middleware"
	"github.com/nurpe/skillspot-settlement/internal/logger"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/pdf"
	"github.com/nurpe/skillspot-settlement/internal/repository"
	"github.com/nurpe/skillspot-settlement/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	store := repository.NewStore(database)

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, log)
	}

	var gw gateway.Gateway = gateway.Disabled{}
	if cfg.Stripe.Enabled() {
		gw = gateway.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	} else {
		log.Warn().Msg("stripe is not configured, payment gateway calls are disabled")
	}

	reconciler := service.NewReconciler(store, notifier, log)
	contractService := service.NewContractService(store, notifier, pdf.NewGenerator(), cfg.Payments.DefaultCurrency)
	timeEntryService := service.NewTimeEntryService(store, notifier)
	paymentService := service.NewPaymentService(store, gw, reconciler, excel.NewGenerator(), cfg.Payments, log)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(contractService, timeEntryService, paymentService, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.AllowedOrigins, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting settlement service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
