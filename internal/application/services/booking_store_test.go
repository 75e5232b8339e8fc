package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/memory"
	"github.com/zatekoja/resibooking/internal/application/services"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

func TestValidateStateTransition(t *testing.T) {
	for _, from := range entities.AllBookingStatuses {
		for _, to := range entities.AllBookingStatuses {
			err := services.ValidateStateTransition(from, to)
			if from.CanTransitionTo(to) {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
			assert.Contains(t, err.Error(), string(from)+" to "+string(to))
		}
	}
}

func TestBookingStore_FindByParty(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes paging and sorting", func(t *testing.T) {
		repo := new(MockBookingRepository)
		store := services.NewBookingStore(repo, nil, nil)

		repo.On("ListByParty", mock.Anything, "C1", entities.ActorRoleClient, repositories.BookingFilter{
			SortBy:    repositories.SortByCreatedAt,
			SortOrder: repositories.SortDesc,
			Limit:     services.DefaultPageSize,
			Offset:    0,
		}).Return(nil, 0, nil)

		page, err := store.FindByParty(ctx, "C1", entities.ActorRoleClient, services.ListOptions{Page: -3})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, services.DefaultPageSize, page.Limit)
		assert.NotNil(t, page.Items)
		repo.AssertExpectations(t)
	})

	t.Run("clamps the limit and computes the offset", func(t *testing.T) {
		repo := new(MockBookingRepository)
		store := services.NewBookingStore(repo, nil, nil)

		repo.On("ListByParty", mock.Anything, "R1", entities.ActorRoleResi, repositories.BookingFilter{
			Status:    entities.BookingStatusConfirmed,
			SortBy:    repositories.SortByScheduledAt,
			SortOrder: repositories.SortAsc,
			Limit:     services.MaxPageSize,
			Offset:    2 * services.MaxPageSize,
		}).Return([]*entities.Booking{}, 250, nil)

		page, err := store.FindByParty(ctx, "R1", entities.ActorRoleResi, services.ListOptions{
			Status:    entities.BookingStatusConfirmed,
			Page:      3,
			Limit:     500,
			SortBy:    repositories.SortByScheduledAt,
			SortOrder: "ASC",
		})
		require.NoError(t, err)
		assert.Equal(t, 250, page.Total)
		repo.AssertExpectations(t)
	})

	t.Run("rejects unknown inputs", func(t *testing.T) {
		store := services.NewBookingStore(new(MockBookingRepository), nil, nil)

		for name, opts := range map[string]services.ListOptions{
			"sort column": {SortBy: "client_price"},
			"sort order":  {SortOrder: "sideways"},
			"status":      {Status: "ARCHIVED"},
		} {
			_, err := store.FindByParty(ctx, "C1", entities.ActorRoleClient, opts)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), name)
		}

		_, err := store.FindByParty(ctx, "C1", entities.ActorRoleAdmin, services.ListOptions{})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestBookingStore_FindByID(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBookingRepository()
	resis := memory.NewResiRepository(resiProfile("R1", floatPtr(4.9), 50))
	store := services.NewBookingStore(repo, resis, nil)

	resiID := "R1"
	ghostID := "R-archived"
	require.NoError(t, repo.Create(ctx, &entities.Booking{ID: "b-1", ClientID: "C1", ResiID: &resiID, Status: entities.BookingStatusPending}))
	require.NoError(t, repo.Create(ctx, &entities.Booking{ID: "b-2", ClientID: "C1", ResiID: &ghostID, Status: entities.BookingStatusPending}))

	b, err := store.FindByID(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, b.Resi)
	assert.Equal(t, "R1", b.Resi.ID)

	b, err = store.FindByID(ctx, "b-2")
	require.NoError(t, err)
	assert.Nil(t, b.Resi)

	_, err = store.FindByID(ctx, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestBookingStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("entering IN_PROGRESS stamps check-in", func(t *testing.T) {
		repo := memory.NewBookingRepository()
		store := services.NewBookingStore(repo, nil, nil)
		require.NoError(t, repo.Create(ctx, &entities.Booking{ID: "b-1", ClientID: "C1", Status: entities.BookingStatusConfirmed}))

		inProgress := entities.BookingStatusInProgress
		previous, updated, err := store.Update(ctx, "b-1", entities.BookingPatch{Status: &inProgress})
		require.NoError(t, err)
		assert.Equal(t, entities.BookingStatusConfirmed, previous.Status)
		assert.Equal(t, entities.BookingStatusInProgress, updated.Status)
		assert.NotNil(t, updated.CheckInAt)
	})

	t.Run("same status is a no-op transition", func(t *testing.T) {
		repo := memory.NewBookingRepository()
		store := services.NewBookingStore(repo, nil, nil)
		require.NoError(t, repo.Create(ctx, &entities.Booking{ID: "b-1", ClientID: "C1", Status: entities.BookingStatusCancelled}))

		cancelled := entities.BookingStatusCancelled
		previous, updated, err := store.Update(ctx, "b-1", entities.BookingPatch{Status: &cancelled})
		require.NoError(t, err)
		assert.Equal(t, previous.Status, updated.Status)
	})

	t.Run("field bounds are enforced", func(t *testing.T) {
		store := services.NewBookingStore(memory.NewBookingRepository(), nil, nil)

		tooLong := 500
		_, _, err := store.Update(ctx, "b-1", entities.BookingPatch{EstimatedDurationMinutes: &tooLong})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("status patches cannot bypass Transition", func(t *testing.T) {
		store := services.NewBookingStore(memory.NewBookingRepository(), nil, nil)

		done := entities.BookingStatusCompleted
		_, err := store.UpdateWhileStatus(ctx, "b-1", entities.BookingStatusCompleted, entities.BookingPatch{Status: &done})
		assert.Error(t, err)
	})
}

func TestBookingStore_FindUnassignedNearby(t *testing.T) {
	ctx := context.Background()
	repo := new(MockBookingRepository)
	store := services.NewBookingStore(repo, nil, nil)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	repo.On("FindUnassigned", mock.Anything, "addr-1", at, 24*time.Hour, 10).Return([]*entities.Booking{}, nil)

	_, err := store.FindUnassignedNearby(ctx, "addr-1", at)
	require.NoError(t, err)
	repo.AssertExpectations(t)

	_, err = store.FindUnassignedNearby(ctx, " ", at)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestBookingStore_AggregateRatingStats(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown booking is not found", func(t *testing.T) {
		store := services.NewBookingStore(memory.NewBookingRepository(), nil, nil)
		_, err := store.AggregateRatingStats(ctx, "missing")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("aggregates across every booking", func(t *testing.T) {
		repo := memory.NewBookingRepository()
		store := services.NewBookingStore(repo, nil, nil)

		five, three := 5, 3
		require.NoError(t, repo.Create(ctx, &entities.Booking{ID: "b-1", ResiRating: &five}))
		require.NoError(t, repo.Create(ctx, &entities.Booking{ID: "b-2", ResiRating: &three}))

		stats, err := store.AggregateRatingStats(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.ResiRatingCount)
		assert.InDelta(t, 4.0, stats.ResiRatingAverage, 1e-9)
	})
}
