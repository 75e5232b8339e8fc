package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

const resiProfilesTable = "resi_profiles"

var resiColumns = []interface{}{
	"id", "display_name", "role", "is_active", "rating", "total_reviews",
	"verification_status", "created_at", "updated_at",
}

// ResiAdapter implements the ResiRepository interface over resi_profiles
type ResiAdapter struct {
	db  *goqu.Database
	dbx *sqlx.DB
}

// NewResiAdapter creates a new resi profile adapter
func NewResiAdapter(client *postgres.Client) repositories.ResiRepository {
	return &ResiAdapter{
		db:  goqu.New("postgres", client.DB()),
		dbx: sqlx.NewDb(client.DB(), "postgres"),
	}
}

// GetByID retrieves a provider profile by ID
func (a *ResiAdapter) GetByID(ctx context.Context, id string) (*entities.ResiProfile, error) {
	query, args, err := a.db.Select(resiColumns...).
		From(resiProfilesTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	profile := &entities.ResiProfile{}
	err = a.dbx.GetContext(ctx, profile, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("resi with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get resi profile", err)
	}

	return profile, nil
}

// FindEligible returns active, reviewed resi profiles whose rating is
// unknown or at least filter.MinRating, best first
func (a *ResiAdapter) FindEligible(ctx context.Context, filter repositories.ResiFilter) ([]*entities.ResiProfile, error) {
	ds := a.db.Select(resiColumns...).
		From(resiProfilesTable).
		Where(
			goqu.Ex{
				"role":      entities.ActorRoleResi,
				"is_active": true,
			},
			goqu.C("total_reviews").Gt(0),
			goqu.Or(
				goqu.C("rating").IsNull(),
				goqu.C("rating").Gte(filter.MinRating),
			),
		).
		Order(
			goqu.L("COALESCE(rating, ?)", entities.DefaultResiRating).Desc(),
			goqu.I("total_reviews").Desc(),
			goqu.I("id").Asc(),
		)

	if len(filter.Exclude) > 0 {
		ds = ds.Where(goqu.C("id").NotIn(filter.Exclude))
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build eligibility query", err)
	}

	profiles := []*entities.ResiProfile{}
	if err := a.dbx.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to find eligible resis", err)
	}

	return profiles, nil
}
