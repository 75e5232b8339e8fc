package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

const bookingsTable = "bookings"

var bookingColumns = []interface{}{
	"id", "client_id", "resi_id", "address_id", "scheduled_at",
	"estimated_duration_minutes", "frequency", "agreed_payout", "client_price",
	"status", "check_in_at", "check_out_at",
	"resi_rating", "resi_review", "client_rating", "client_review",
	"metadata", "created_at", "updated_at",
}

// BookingAdapter implements the BookingRepository interface
type BookingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	dbx    *sqlx.DB
	now    func() time.Time
}

// NewBookingAdapter creates a new booking adapter
func NewBookingAdapter(client *postgres.Client) repositories.BookingRepository {
	return &BookingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		dbx:    sqlx.NewDb(client.DB(), "postgres"),
		now:    time.Now,
	}
}

// Create creates a new booking
func (a *BookingAdapter) Create(ctx context.Context, booking *entities.Booking) error {
	metadata, err := json.Marshal(booking.Metadata.Merge(nil))
	if err != nil {
		return apperrors.NewInternalError("failed to encode booking metadata", err)
	}

	record := goqu.Record{
		"id":                         booking.ID,
		"client_id":                  booking.ClientID,
		"resi_id":                    booking.ResiID,
		"address_id":                 booking.AddressID,
		"scheduled_at":               booking.ScheduledAt,
		"estimated_duration_minutes": booking.EstimatedDurationMinutes,
		"frequency":                  booking.Frequency,
		"agreed_payout":              booking.AgreedPayout,
		"client_price":               booking.ClientPrice,
		"status":                     booking.Status,
		"metadata":                   goqu.L("?::jsonb", string(metadata)),
		"created_at":                 booking.CreatedAt,
		"updated_at":                 booking.UpdatedAt,
	}

	query, args, err := a.db.Insert(bookingsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create booking", err)
	}

	return nil
}

// GetByID retrieves a booking by ID
func (a *BookingAdapter) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	query, args, err := a.db.Select(bookingColumns...).
		From(bookingsTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	booking := &entities.Booking{}
	err = a.dbx.QueryRowxContext(ctx, query, args...).StructScan(booking)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("booking with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get booking", err)
	}

	return booking, nil
}

// ListByParty retrieves a page of a party's bookings and the total count
func (a *BookingAdapter) ListByParty(ctx context.Context, partyID string, role entities.ActorRole, filter repositories.BookingFilter) ([]*entities.Booking, int, error) {
	var party exp.Expression
	switch role {
	case entities.ActorRoleClient:
		party = goqu.Ex{"client_id": partyID}
	case entities.ActorRoleResi:
		party = goqu.Ex{"resi_id": partyID}
	default:
		return nil, 0, apperrors.NewValidationError(fmt.Sprintf("cannot list bookings for role %q", role))
	}

	conditions := []exp.Expression{party}
	if filter.Status != "" {
		conditions = append(conditions, goqu.Ex{"status": filter.Status})
	}

	countQuery, countArgs, err := a.db.From(bookingsTable).
		Select(goqu.COUNT("*")).
		Where(conditions...).
		ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count bookings", err)
	}

	ds := a.db.Select(bookingColumns...).
		From(bookingsTable).
		Where(conditions...).
		Order(orderBy(filter.SortBy, filter.SortOrder), goqu.I("id").Asc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build list query", err)
	}

	bookings := []*entities.Booking{}
	if err := a.dbx.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to list bookings", err)
	}

	return bookings, total, nil
}

// Update applies a partial update without a status precondition
func (a *BookingAdapter) Update(ctx context.Context, id string, patch entities.BookingPatch) (*entities.Booking, error) {
	booking, err := a.updateReturning(ctx, goqu.Ex{"id": id}, patch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("booking with id %s not found", id))
	}
	return booking, err
}

// UpdateIfStatus applies patch in a single statement guarded by the
// expected status. When no row matches, the booking is re-read to tell a
// missing booking from a lost race.
func (a *BookingAdapter) UpdateIfStatus(ctx context.Context, id string, expected entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error) {
	booking, err := a.updateReturning(ctx, goqu.Ex{"id": id, "status": expected}, patch)
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, getErr := a.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	target := current.Status
	if patch.Status != nil {
		target = *patch.Status
	}
	return nil, apperrors.NewStateConflictError(string(current.Status), string(target))
}

func (a *BookingAdapter) updateReturning(ctx context.Context, where goqu.Ex, patch entities.BookingPatch) (*entities.Booking, error) {
	record, err := patchRecord(patch)
	if err != nil {
		return nil, err
	}
	record["updated_at"] = a.now().UTC()

	query, args, err := a.db.Update(bookingsTable).
		Set(record).
		Where(where).
		Returning(bookingColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	booking := &entities.Booking{}
	err = a.dbx.QueryRowxContext(ctx, query, args...).StructScan(booking)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to update booking", err)
	}

	return booking, nil
}

// FindUnassigned returns PENDING bookings without a resi at addressID
// scheduled within window of scheduledAt, oldest first
func (a *BookingAdapter) FindUnassigned(ctx context.Context, addressID string, scheduledAt time.Time, window time.Duration, limit int) ([]*entities.Booking, error) {
	ds := a.db.Select(bookingColumns...).
		From(bookingsTable).
		Where(
			goqu.Ex{
				"status":     entities.BookingStatusPending,
				"address_id": addressID,
				"resi_id":    nil,
			},
			goqu.C("scheduled_at").Between(goqu.Range(scheduledAt.Add(-window), scheduledAt.Add(window))),
		).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc())

	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	bookings := []*entities.Booking{}
	if err := a.dbx.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to find unassigned bookings", err)
	}

	return bookings, nil
}

// AggregateRatingStats computes rating counts and averages over all bookings
func (a *BookingAdapter) AggregateRatingStats(ctx context.Context) (*entities.RatingStats, error) {
	query, args, err := a.db.From(bookingsTable).
		Select(
			goqu.COUNT("resi_rating"),
			goqu.COALESCE(goqu.AVG("resi_rating"), 0),
			goqu.COUNT("client_rating"),
			goqu.COALESCE(goqu.AVG("client_rating"), 0),
		).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build stats query", err)
	}

	stats := &entities.RatingStats{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&stats.ResiRatingCount,
		&stats.ResiRatingAverage,
		&stats.ClientRatingCount,
		&stats.ClientRatingAverage,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to aggregate rating stats", err)
	}

	return stats, nil
}

// patchRecord maps the set fields of patch to columns. Check-in and
// check-out keep an existing value and metadata is merged server-side.
func patchRecord(patch entities.BookingPatch) (goqu.Record, error) {
	record := goqu.Record{}

	if patch.ResiID != nil {
		record["resi_id"] = *patch.ResiID
	}
	if patch.AddressID != nil {
		record["address_id"] = *patch.AddressID
	}
	if patch.ScheduledAt != nil {
		record["scheduled_at"] = *patch.ScheduledAt
	}
	if patch.EstimatedDurationMinutes != nil {
		record["estimated_duration_minutes"] = *patch.EstimatedDurationMinutes
	}
	if patch.Frequency != nil {
		record["frequency"] = *patch.Frequency
	}
	if patch.AgreedPayout != nil {
		record["agreed_payout"] = *patch.AgreedPayout
	}
	if patch.ClientPrice != nil {
		record["client_price"] = *patch.ClientPrice
	}
	if patch.Status != nil {
		record["status"] = *patch.Status
	}
	if patch.CheckInAt != nil {
		record["check_in_at"] = goqu.L("COALESCE(check_in_at, ?)", *patch.CheckInAt)
	}
	if patch.CheckOutAt != nil {
		record["check_out_at"] = goqu.L("COALESCE(check_out_at, ?)", *patch.CheckOutAt)
	}
	if patch.ResiRating != nil {
		record["resi_rating"] = *patch.ResiRating
	}
	if patch.ResiReview != nil {
		record["resi_review"] = *patch.ResiReview
	}
	if patch.ClientRating != nil {
		record["client_rating"] = *patch.ClientRating
	}
	if patch.ClientReview != nil {
		record["client_review"] = *patch.ClientReview
	}
	if len(patch.Metadata) > 0 {
		data, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to encode booking metadata", err)
		}
		record["metadata"] = goqu.L("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(data))
	}

	return record, nil
}

func orderBy(sortBy string, order repositories.SortOrder) exp.OrderedExpression {
	column := repositories.SortByCreatedAt
	switch sortBy {
	case repositories.SortByScheduledAt, repositories.SortByUpdatedAt, repositories.SortByStatus:
		column = sortBy
	}

	if order == repositories.SortAsc {
		return goqu.I(column).Asc()
	}
	return goqu.I(column).Desc()
}
