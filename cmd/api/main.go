package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/zatekoja/resibooking/internal/adapters/cache"
	"github.com/zatekoja/resibooking/internal/adapters/database"
	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/internal/adapters/memory"
	"github.com/zatekoja/resibooking/internal/adapters/providers/scheduling"
	"github.com/zatekoja/resibooking/internal/api/handlers"
	"github.com/zatekoja/resibooking/internal/api/middleware"
	"github.com/zatekoja/resibooking/internal/api/routes"
	"github.com/zatekoja/resibooking/internal/application/services"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/redis"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
	"github.com/zatekoja/resibooking/pkg/config"
)

// resiCacheInvalidatorConsumer names the Kafka group and AMQP queue the API
// consumes from, separate from the notifier's
const resiCacheInvalidatorConsumer = "resi-cache-invalidator"

func main() {
	flags := pflag.NewFlagSet("resibooking-api", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	addr := flags.String("addr", "", "listen address, overrides server host and port")
	storage := flags.String("storage", "", "storage driver (postgres|memory)")
	eventBusDriver := flags.String("event-bus", "", "event bus driver (redis|kafka|amqp|memory)")
	_ = flags.Parse(os.Args[1:])

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := loadConfig(*configPath, *storage, *eventBusDriver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Redis backs the resi cache and the redis event bus; both degrade
	// gracefully when it is unreachable.
	var redisClient *redis.Client
	if cfg.Storage.Driver == config.StorageDriverPostgres || cfg.Events.Driver == config.EventBusDriverRedis {
		redisClient, err = redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var (
		bookingRepo repositories.BookingRepository
		resiRepo    repositories.ResiRepository
		resiCache   providers.CacheProvider
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()

		bookingRepo = database.NewBookingAdapter(pgClient)
		resiRepo = database.NewResiAdapter(pgClient)
		if redisClient != nil {
			resiCache = cache.NewRedisAdapter(redisClient, "resibooking")
			resiRepo = database.NewCachedResiAdapter(resiRepo, resiCache, cfg.Matching.CacheTTLSeconds)
			log.Info().Msg("Resi adapter wrapped with caching layer")
		}
	case config.StorageDriverMemory:
		bookingRepo = memory.NewBookingRepository()
		resiRepo = memory.NewResiRepository()
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
	}

	eventBus, err := events.NewEventBus(cfg.Events, redisClient)
	if err != nil {
		log.Warn().Err(err).Msg("Event bus unavailable; booking events will not be published")
		eventBus = nil
	}

	if resiCache != nil {
		invalidationBus, err := events.NewConsumerBus(eventBus, cfg.Events, redisClient, resiCacheInvalidatorConsumer)
		if err != nil {
			log.Warn().Err(err).Msg("Resi cache invalidation disabled; profiles expire on TTL only")
		} else {
			if invalidationBus != eventBus {
				defer invalidationBus.Close()
			}
			invalidator := services.NewResiCacheInvalidationService(resiCache, invalidationBus)
			if err := invalidator.Start(); err != nil {
				log.Warn().Err(err).Msg("Resi cache invalidation disabled; profiles expire on TTL only")
			} else {
				defer invalidator.Stop()
			}
		}
	}

	availability := scheduling.NewAvailabilityProvider(scheduling.NewStubAdapter())
	matcher := services.NewMatchingService(resiRepo, availability, metrics, cfg.Matching.DefaultMinRating, cfg.Matching.CandidateLimit)
	store := services.NewBookingStore(bookingRepo, resiRepo, metrics)
	bookingService := services.NewBookingService(store, matcher, eventBus, metrics)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("AUTH_JWT_SECRET is required")
	}

	router := routes.NewRouter(
		handlers.NewBookingHandler(bookingService),
		handlers.NewResiHandler(bookingService),
		middleware.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		middleware.ParseOrigins(cfg.Server.AllowedOrigins),
		metrics,
	)

	serverAddr := *addr
	if serverAddr == "" {
		serverAddr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("storage", cfg.Storage.Driver).Str("event_bus", cfg.Events.Driver).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event bus")
		}
	}

	log.Info().Msg("Server stopped")
}

// loadConfig reads the optional YAML file and applies flag overrides
func loadConfig(path, storage, eventBus string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if storage != "" {
		cfg.Storage.Driver = storage
	}
	if eventBus != "" {
		cfg.Events.Driver = eventBus
	}
	return cfg, cfg.Validate()
}
