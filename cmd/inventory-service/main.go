package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/medlan/medlan-backend/internal/inventory/consumers"
	"github.com/medlan/medlan-backend/internal/inventory/events"
	"github.com/medlan/medlan-backend/internal/inventory/handler"
	"github.com/medlan/medlan-backend/internal/inventory/repository"
	"github.com/medlan/medlan-backend/internal/inventory/service"
	"github.com/medlan/medlan-backend/pkg/config"
	"github.com/medlan/medlan-backend/pkg/database"
	"github.com/medlan/medlan-backend/pkg/httputil"
	"github.com/medlan/medlan-backend/pkg/lock"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/medlan/medlan-backend/pkg/messaging"
	"golang.org/x/sync/errgroup"
)

const serviceName = "inventory-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate inventory schema")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		log.Fatal().Err(err).Msg("failed to declare dead letter queue")
	}

	rawPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, serviceName, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	publisher := events.NewInventoryEventPublisher(rawPublisher, log)

	// Redis locks keep rebuilds and the scheduler single-flight across replicas
	var locker service.Locker
	if cfg.Redis.Enabled {
		client, err := lock.Connect(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer client.Close()
		locker = lock.New(client, serviceName, log)
	} else {
		log.Warn().Msg("redis disabled, background jobs are not coordinated across replicas")
	}

	// Initialize services
	store := repository.New(db)
	engine := service.NewEngine(store, publisher, locker, service.OptionsFromConfig(&cfg.Inventory), log)
	expiry := service.NewExpiryService(engine)
	scanner := service.NewAlertScanner(engine, expiry, cfg.Inventory.AlertThresholdDays)
	scheduler := service.NewAlertScheduler(scanner, locker, cfg.Inventory.ExpiryScanInterval, log)

	handlers := handler.NewSet(handler.Services{
		Stock:    service.NewStockService(engine),
		GRN:      service.NewGRNService(engine),
		RGRN:     service.NewRGRNService(engine),
		Transfer: service.NewTransferService(engine),
		Expiry:   expiry,
		Scanner:  scanner,
	}, cfg.Inventory.AlertThresholdDays, log)

	// Product directory updates seed reorder thresholds
	productConsumer, err := consumers.NewProductEventConsumer(rmq, store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create product event consumer")
	}
	if err := productConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start product event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.Actor)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/inventory", func(r chi.Router) {
		if cfg.RateLimit.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit.RequestsPerMinute, time.Minute))
		}
		handlers.Routes(r)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("inventory service stopped with error")
	}

	log.Info().Msg("server stopped")
}
