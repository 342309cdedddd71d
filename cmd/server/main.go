package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"blockpulse/internal/api"
	"blockpulse/internal/api/handlers"
	"blockpulse/internal/api/middleware"
	"blockpulse/internal/engine/webhooks"
	"blockpulse/internal/pkg/logger"
	"blockpulse/internal/platform/config"
	"blockpulse/internal/platform/database"
	"blockpulse/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	// Stores
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)

	// Delivery engine
	transport := webhooks.NewHTTPTransport(cfg.Webhooks.DeliveryTimeout)
	worker := webhooks.NewWorker(webhookRepo, deliveryRepo, transport, webhooks.WorkerConfig{
		MaxAttempts:      cfg.Webhooks.MaxAttempts,
		DisableThreshold: cfg.Webhooks.DisableThreshold,
	})
	scheduler := webhooks.NewScheduler(webhookRepo, deliveryRepo, worker)
	registry := webhooks.NewRegistry(webhookRepo, scheduler, webhooks.RegistryConfig{
		MaxPerUser:        cfg.Webhooks.MaxPerUser,
		AllowLoopbackURLs: cfg.Webhooks.AllowLoopbackURLs,
	})
	dispatcher := webhooks.NewDispatcher(webhookRepo, worker, scheduler)
	aggregator := webhooks.NewAggregator(deliveryRepo)

	scheduler.Start()
	defer scheduler.Stop()

	// HTTP API
	deps := &api.Dependencies{
		WebhookHandler:     handlers.NewWebhookHandler(registry, dispatcher, scheduler, aggregator, deliveryRepo),
		HealthHandler:      handlers.NewHealthHandler(db),
		IdentityMiddleware: middleware.NewIdentityMiddleware(),
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
