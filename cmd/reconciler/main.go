package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/tair/payment-reconciliation/internal/reconciliation"
	"github.com/tair/payment-reconciliation/internal/reconciliation/domain"
	"github.com/tair/payment-reconciliation/internal/reconciliation/handler"
	"github.com/tair/payment-reconciliation/kafka"
	"github.com/tair/payment-reconciliation/pkg/database"
	"github.com/tair/payment-reconciliation/pkg/idempotency"
	"github.com/tair/payment-reconciliation/pkg/logger"
	"github.com/tair/payment-reconciliation/pkg/tracing"
)

func main() {
	// Initialize logger
	serviceName := getEnv("OTEL_SERVICE_NAME", "payment-reconciler")
	isDevelopment := getEnv("ENVIRONMENT", "development") == "development"
	logger.Init(serviceName, isDevelopment)

	logLevel := getEnv("LOG_LEVEL", "info")
	logger.SetLevel(logLevel)

	logger.Logger.Info().
		Str("service", serviceName).
		Str("environment", getEnv("ENVIRONMENT", "development")).
		Str("log_level", logLevel).
		Msg("Starting payment reconciler")

	// Initialize tracer
	tp, err := tracing.InitTracer(serviceName)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx, tp); err != nil {
				logger.Logger.Error().Err(err).Msg("Failed to shutdown tracer")
			}
		}()
	}

	// Load database configuration
	dbConfig := database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "reconcilerdb"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Connect to database
	db, err := database.NewGormConnection(dbConfig)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to get database instance")
	}
	defer sqlDB.Close()

	// Run migrations
	if err := db.AutoMigrate(
		&domain.Payment{},
		&domain.Order{},
		&domain.OrderHistoryEntry{},
		&domain.ProcessedEvent{},
	); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	logger.Logger.Info().Msg("Database initialized successfully")

	// Redis dedupe cache (optional fast path in front of the durable ledger)
	var dedupe domain.Deduper
	if redisAddr := getEnv("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: getEnv("REDIS_PASSWORD", ""),
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Logger.Warn().Err(err).Msg("Redis unreachable, dedupe fast path degraded to ledger only")
		}
		cancel()
		dedupe = idempotency.NewRedisDeduper(rdb, 24*time.Hour)
		defer rdb.Close()
	}

	// Kafka publisher (optional fire-and-forget notification)
	var notifier domain.Notifier
	var publisher *kafka.Publisher
	brokers := splitBrokers(getEnv("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		publisher, err = kafka.NewPublisher(brokers)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create Kafka publisher")
		}
		defer publisher.Close()
		notifier = publisher
	}

	// Initialize handler with Wire DI
	reconcilerHandler, err := reconciliation.InitializeHandler(db, notifier, dedupe)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize handler")
	}

	logger.Logger.Info().
		Bool("redis_dedupe", dedupe != nil).
		Bool("kafka_notifications", notifier != nil).
		Msg("Reconciliation handler initialized")

	// Kafka relay consumer (optional alternate inbound path)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(brokers) > 0 {
		consumer, err := kafka.NewConsumer(brokers, getEnv("KAFKA_GROUP_ID", "payment-reconciler"),
			func(ctx context.Context, env domain.GatewayEnvelope) error {
				_, err := reconcilerHandler.HandleEnvelope(ctx, env)
				return err
			})
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create Kafka consumer")
		}
		defer consumer.Close()

		if err := consumer.Start(ctx); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to start Kafka consumer")
		}
	}

	// Start HTTP server
	httpPort := getEnv("HTTP_PORT", "8084")
	server := newHTTPServer(reconcilerHandler, sqlDB, httpPort)

	go func() {
		logger.Logger.Info().
			Str("port", httpPort).
			Str("metrics_endpoint", "/metrics").
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to shutdown HTTP server gracefully")
	}
}

func newHTTPServer(reconcilerHandler *handler.ReconciliationHandler, db *sql.DB, port string) *http.Server {
	router := mux.NewRouter()

	// Register all middlewares
	handler.RegisterMiddlewares(router, handler.DefaultMiddlewareConfig())

	// Register routes
	reconcilerHandler.RegisterRoutes(router)

	// Health check endpoint
	reconcilerHandler.RegisterHealthCheck(router, db)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return &http.Server{
		Addr:    ":" + port,
		Handler: c.Handler(router),
	}
}

func splitBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
