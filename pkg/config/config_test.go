package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EventBusConfig(t *testing.T) {
	t.Setenv("EVENT_BUS_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("KAFKA_TOPIC", "bookings")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EventBusDriverKafka, cfg.Events.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "bookings", cfg.Events.KafkaTopic)
}

func TestLoad_Defaults(t *testing.T) {
	// Ensure env vars are cleared
	os.Unsetenv("STORAGE_DRIVER")
	os.Unsetenv("EVENT_BUS_DRIVER")
	os.Unsetenv("MATCHING_DEFAULT_MIN_RATING")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, EventBusDriverRedis, cfg.Events.Driver)
	assert.Equal(t, 3.0, cfg.Matching.DefaultMinRating)
	assert.Equal(t, 10, cfg.Matching.CandidateLimit)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
storage:
  driver: memory
events:
  driver: memory
matching:
  default_min_rating: 4.0
  candidate_limit: 5
`), 0o600)
	require.NoError(t, err)

	t.Run("file values apply over defaults", func(t *testing.T) {
		os.Unsetenv("MATCHING_CANDIDATE_LIMIT")
		cfg, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
		assert.Equal(t, EventBusDriverMemory, cfg.Events.Driver)
		assert.Equal(t, 4.0, cfg.Matching.DefaultMinRating)
		assert.Equal(t, 5, cfg.Matching.CandidateLimit)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("MATCHING_CANDIDATE_LIMIT", "25")
		cfg, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, 25, cfg.Matching.CandidateLimit)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoad_RejectsUnusableMinRating(t *testing.T) {
	for _, raw := range []string{"0", "-1", "5.5", "NaN"} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("MATCHING_DEFAULT_MIN_RATING", raw)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Setenv("MATCHING_DEFAULT_MIN_RATING", "0.5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Matching.DefaultMinRating)
}

func TestEventsConfig_ForConsumer(t *testing.T) {
	base := Defaults().Events
	consumer := base.ForConsumer("resi-cache-invalidator")

	assert.Equal(t, "resi-cache-invalidator", consumer.KafkaGroupID)
	assert.Equal(t, "resi-cache-invalidator", consumer.AMQPQueue)
	assert.Equal(t, "booking-notifier", base.KafkaGroupID, "the original config is untouched")
	assert.Equal(t, base.KafkaTopic, consumer.KafkaTopic)
}
