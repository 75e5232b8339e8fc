package main

import (
	"context"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
	"github.com/zatekoja/resibooking/pkg/config"
)

func ratingOf(v float64) *float64 { return &v }

func main() {
	observability.InitLogger("resibooking-seed", "development")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()
	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	if os.Getenv("RESET_DB") == "true" {
		log.Warn().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE bookings, resi_profiles`); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	now := time.Now().UTC()
	profiles := []entities.ResiProfile{
		{ID: "resi-ada", DisplayName: "Ada Okafor", Rating: ratingOf(4.9), TotalReviews: 50, VerificationStatus: entities.VerificationStatusApproved},
		{ID: "resi-bola", DisplayName: "Bola Adeyemi", Rating: ratingOf(4.5), TotalReviews: 1200, VerificationStatus: entities.VerificationStatusApproved},
		{ID: "resi-chidi", DisplayName: "Chidi Eze", Rating: ratingOf(3.2), TotalReviews: 310, VerificationStatus: entities.VerificationStatusPending},
		{ID: "resi-dami", DisplayName: "Dami Bello", TotalReviews: 12, VerificationStatus: entities.VerificationStatusApproved},
		{ID: "resi-efe", DisplayName: "Efe Oghene", Rating: ratingOf(2.4), TotalReviews: 85, VerificationStatus: entities.VerificationStatusApproved},
		{ID: "resi-funmi", DisplayName: "Funmi Ajayi", Rating: ratingOf(5.0), VerificationStatus: entities.VerificationStatusPending},
	}

	db := goqu.New("postgres", pgClient.DB())
	for _, p := range profiles {
		query, args, err := db.Insert("resi_profiles").
			Rows(goqu.Record{
				"id":                  p.ID,
				"display_name":        p.DisplayName,
				"role":                entities.ActorRoleResi,
				"is_active":           true,
				"rating":              p.Rating,
				"total_reviews":       p.TotalReviews,
				"verification_status": p.VerificationStatus,
				"created_at":          now,
				"updated_at":          now,
			}).
			OnConflict(goqu.DoUpdate("id", goqu.Record{
				"display_name":        p.DisplayName,
				"rating":              p.Rating,
				"total_reviews":       p.TotalReviews,
				"verification_status": p.VerificationStatus,
				"updated_at":          now,
			})).
			ToSQL()
		if err != nil {
			log.Fatal().Err(err).Str("resi_id", p.ID).Msg("Failed to build seed query")
		}

		if _, err := pgClient.DB().ExecContext(ctx, query, args...); err != nil {
			log.Error().Err(err).Str("resi_id", p.ID).Msg("Failed to seed resi profile")
			continue
		}
		log.Info().Str("resi_id", p.ID).Msg("Seeded resi profile")
	}

	log.Info().Int("count", len(profiles)).Msg("Seeding complete")
}
