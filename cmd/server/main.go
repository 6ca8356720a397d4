/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, the outbox relay, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, environment), then apply command-line flags
  2. Build the zap logger
  3. Initialize SQLite store and the leave type catalog
  4. Start the outbox relay (Kafka if KAFKA_BROKERS is set, else log)
  5. Connect redis for Idempotency-Key support if REDIS_ADDR is set
  6. Configure HTTP router and start server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -demo    Load a demo scenario at startup and mount /api/scenarios
           (single-team, two-teams)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Stop the relay
  4. Close Kafka writer, redis client and database

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run in-memory with demo employees
  ./server -db=":memory:" -demo=two-teams

  # Publish events to Kafka
  KAFKA_BROKERS=localhost:9092 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - messaging/relay.go: Outbox relay
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/messaging"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	demo := flag.String("demo", "", "Demo scenario to load at startup")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, *demo, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg config.Config, demo string, logger *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := leave.LoadCatalogFile(cfg.CatalogPath)
	if err != nil {
		return err
	}

	coordinator := leave.NewCoordinator(store, catalog, logger.Named("leave.coordinator"))
	handler := api.NewHandler(coordinator, logger.Named("api"))

	if demo != "" {
		if err := handler.Seed(context.Background(), demo); err != nil {
			return err
		}
		logger.Info("demo scenario loaded", zap.String("scenario", demo))
	}

	// Outbox relay
	var sink messaging.Sink = messaging.NewLogSink(logger.Named("messaging.log"))
	if len(cfg.KafkaBrokers) > 0 {
		writer := messaging.NewKafkaWriter(cfg.KafkaBrokers)
		kafkaSink := messaging.NewKafkaSink(writer, cfg.KafkaTopic, logger.Named("messaging.kafka"))
		defer kafkaSink.Close()
		sink = kafkaSink
		logger.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	relay := messaging.NewRelay(store, sink, logger.Named("messaging.relay"))
	relay.Interval = cfg.RelayInterval
	relay.BatchSize = cfg.RelayBatch

	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(relayCtx)
	}()

	// Optional redis for Idempotency-Key
	opts := api.Options{
		RateLimit:       rate.Limit(cfg.RateLimitRPS),
		RateBurst:       cfg.RateLimitBurst,
		EnableScenarios: demo != "",
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, idempotency keys will be ignored until it recovers",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		opts.Redis = rdb
	}

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("db", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		stopRelay()
		<-relayDone
		return err
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(ctx)
	stopRelay()
	<-relayDone

	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info("server stopped")
	return nil
}
