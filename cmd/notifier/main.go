// Command notifier subscribes to booking events and logs each one. It is
// the reference consumer for downstream notification and payment workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/redis"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
	"github.com/zatekoja/resibooking/pkg/config"
)

func main() {
	flags := pflag.NewFlagSet("resibooking-notifier", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	eventBusDriver := flags.String("event-bus", "", "event bus driver (redis|kafka|amqp)")
	_ = flags.Parse(os.Args[1:])

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err == nil && *eventBusDriver != "" {
		cfg.Events.Driver = *eventBusDriver
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger("resibooking-notifier", cfg.Server.Environment)

	if cfg.Events.Driver == config.EventBusDriverMemory {
		log.Fatal().Msg("The memory event bus is process-local; choose redis, kafka or amqp")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Events.Driver == config.EventBusDriverRedis {
		redisClient, err = redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis client")
		}
		defer redisClient.Close()
	}

	bus, err := events.NewEventBus(cfg.Events, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize event bus")
	}
	defer bus.Close()

	if err := run(ctx, bus); err != nil {
		log.Fatal().Err(err).Msg("Notifier stopped")
	}
	log.Info().Msg("Notifier stopped")
}

// run logs events until ctx is cancelled or the subscription ends
func run(ctx context.Context, bus providers.EventBus) error {
	stream, err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Msg("Listening for booking events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			logEvent(event)
		}
	}
}

func logEvent(event *entities.BookingEvent) {
	entry := log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("booking_id", event.BookingID).
		Time("occurred_at", event.OccurredAt)

	switch p := event.Payload.(type) {
	case entities.BookingStatusChanged:
		entry = entry.Str("from", string(p.OldStatus)).Str("to", string(p.NewStatus))
	case entities.ResiAssigned:
		entry = entry.Str("resi_id", p.ResiID)
	case entities.BookingCompleted:
		entry = entry.Float64("agreed_payout", p.AgreedPayout)
	case entities.BookingCancelled:
		if p.Reason != nil {
			entry = entry.Str("reason", *p.Reason)
		}
	case entities.BookingRated:
		entry = entry.Int("rating", p.Rating).Str("rated_by", string(p.UserRole))
	}

	entry.Msg("Booking event received")
}
