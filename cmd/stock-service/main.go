package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	catalogclient "github.com/kirana/kirana-backend/internal/catalog/client"
	forecastconsumers "github.com/kirana/kirana-backend/internal/forecast/consumers"
	forecasthandler "github.com/kirana/kirana-backend/internal/forecast/handler"
	forecastservice "github.com/kirana/kirana-backend/internal/forecast/service"
	khaataevents "github.com/kirana/kirana-backend/internal/khaata/events"
	khaatahandler "github.com/kirana/kirana-backend/internal/khaata/handler"
	khaatarepository "github.com/kirana/kirana-backend/internal/khaata/repository"
	khaataservice "github.com/kirana/kirana-backend/internal/khaata/service"
	"github.com/kirana/kirana-backend/internal/stock/events"
	"github.com/kirana/kirana-backend/internal/stock/handler"
	"github.com/kirana/kirana-backend/internal/stock/repository"
	"github.com/kirana/kirana-backend/internal/stock/service"
	"github.com/kirana/kirana-backend/pkg/cache"
	"github.com/kirana/kirana-backend/pkg/config"
	"github.com/kirana/kirana-backend/pkg/database"
	"github.com/kirana/kirana-backend/pkg/httputil"
	"github.com/kirana/kirana-backend/pkg/logger"
	"github.com/kirana/kirana-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Connect to Redis
	redis, err := cache.New(&cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redis.Close()

	// Initialize event publishers
	stockPublisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stock event publisher")
	}
	khaataPublisher, err := khaataevents.NewKhaataEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create khaata event publisher")
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	accountRepo := khaatarepository.NewAccountRepository(db)

	// Initialize external catalog client
	catalog := catalogclient.NewOpenFoodFactsClient(&cfg.Catalog, log)

	// Initialize services
	stockService := service.NewStockService(db, productRepo, batchRepo, saleRepo, stockPublisher, catalog, log)
	forecastService := forecastservice.NewForecastService(productRepo, saleRepo, redis, cfg.Redis.SnapshotTTL, log)
	khaataService := khaataservice.NewKhaataService(accountRepo, khaataPublisher, log)

	// Initialize handlers
	stockHandler := handler.NewStockHandler(stockService, log)
	exportHandler := handler.NewExportHandler(stockService, log)
	forecastHandler := forecasthandler.NewForecastHandler(forecastService, log)
	khaataHandler := khaatahandler.NewKhaataHandler(khaataService, log)

	// Start stock event consumer for forecast cache invalidation
	stockConsumer, err := forecastconsumers.NewStockEventConsumer(rmq, forecastService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stock event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stockConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start stock event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for the POS frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"redis":    redis.Health(r.Context()),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stock", func(r chi.Router) {
			r.Post("/intake", stockHandler.Intake)
			r.Post("/sell", stockHandler.Sell)
			r.Post("/correct", stockHandler.Correct)
			r.Get("/expiry-radar", stockHandler.ExpiryRadar)
			r.Get("/register.pdf", exportHandler.ExportStockRegister)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", stockHandler.List)
			r.Get("/{barcode}", stockHandler.Get)
		})

		r.Get("/sales/recent", stockHandler.RecentSales)
		r.Get("/dashboard/stats", stockHandler.Dashboard)
		r.Get("/forecast", forecastHandler.Get)

		r.Route("/khaata", func(r chi.Router) {
			r.Get("/", khaataHandler.List)
			r.Post("/", khaataHandler.Create)
			r.Get("/{id}", khaataHandler.Get)
			r.Post("/{id}/adjust", khaataHandler.Adjust)
			r.Delete("/{id}", khaataHandler.Delete)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
