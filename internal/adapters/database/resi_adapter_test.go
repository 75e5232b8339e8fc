package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/database"
	"github.com/zatekoja/resibooking/internal/adapters/memory"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

var resiRowColumns = []string{
	"id", "display_name", "role", "is_active", "rating", "total_reviews",
	"verification_status", "created_at", "updated_at",
}

func resiRows() *sqlmock.Rows {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(resiRowColumns).
		AddRow("R1", "Ada", "RESI", true, 4.9, 50, "approved", at, at).
		AddRow("R3", "Bo", "RESI", true, nil, 12, "pending", at, at)
}

func TestResiAdapter_FindEligible(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewResiAdapter(client)

	mock.ExpectQuery(`FROM "resi_profiles" WHERE .+"is_active" IS TRUE.+"role" = 'RESI'.+"total_reviews" > 0.+"rating" IS NULL.+"rating" >= 3.+"id" NOT IN \('R2'\).+ORDER BY COALESCE\(rating, 3[.0]*\) DESC, "total_reviews" DESC, "id" ASC LIMIT 10`).
		WillReturnRows(resiRows())

	got, err := adapter.FindEligible(context.Background(), repositories.ResiFilter{
		MinRating: 3,
		Exclude:   []string{"R2"},
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].ID)
	require.NotNil(t, got[0].Rating)
	assert.InDelta(t, 4.9, *got[0].Rating, 1e-9)
	assert.Nil(t, got[1].Rating)
	assert.Equal(t, entities.VerificationStatusPending, got[1].VerificationStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResiAdapter_GetByID(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewResiAdapter(client)

	mock.ExpectQuery(`FROM "resi_profiles" WHERE \("id" = 'ghost'\)`).
		WillReturnRows(sqlmock.NewRows(resiRowColumns))

	_, err := adapter.GetByID(context.Background(), "ghost")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestCachedResiAdapter(t *testing.T) {
	ctx := context.Background()
	client, mock := setupMockDB(t)
	cache := newFakeCache()
	adapter := database.NewCachedResiAdapter(database.NewResiAdapter(client), cache, 30)

	mock.ExpectQuery(`FROM "resi_profiles"`).WillReturnRows(resiRows())

	filter := repositories.ResiFilter{MinRating: 3, Exclude: []string{"b", "a"}, Limit: 10}
	first, err := adapter.FindEligible(ctx, filter)
	require.NoError(t, err)

	reordered := repositories.ResiFilter{MinRating: 3, Exclude: []string{"a", "b"}, Limit: 10}
	second, err := adapter.FindEligible(ctx, reordered)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Rating, second[0].Rating)
	assert.Nil(t, second[1].Rating)
	assert.NoError(t, mock.ExpectationsWereMet(), "second lookup must be served from cache")

	t.Run("profiles live longer than lists", func(t *testing.T) {
		mock.ExpectQuery(`FROM "resi_profiles" WHERE \("id" = 'R1'\)`).
			WillReturnRows(sqlmock.NewRows(resiRowColumns).
				AddRow("R1", "Ada", "RESI", true, 4.9, 50, "approved", time.Now(), time.Now()))

		for i := 0; i < 2; i++ {
			p, err := adapter.GetByID(ctx, "R1")
			require.NoError(t, err)
			assert.Equal(t, "Ada", p.DisplayName)
		}
		assert.Equal(t, 300, cache.ttls["resi:R1"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entries fall through to the database", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "resi:R3", []byte("{not json"), 10))
		mock.ExpectQuery(`FROM "resi_profiles" WHERE \("id" = 'R3'\)`).
			WillReturnRows(sqlmock.NewRows(resiRowColumns))

		_, err := adapter.GetByID(ctx, "R3")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})
}

func TestCachedResiAdapter_ThresholdsDoNotShareEntries(t *testing.T) {
	ctx := context.Background()
	rating := 4.499
	inner := memory.NewResiRepository(&entities.ResiProfile{
		ID:                 "R1",
		Role:               entities.ActorRoleResi,
		IsActive:           true,
		Rating:             &rating,
		TotalReviews:       40,
		VerificationStatus: entities.VerificationStatusApproved,
	})
	adapter := database.NewCachedResiAdapter(inner, newFakeCache(), 30)

	got, err := adapter.FindEligible(ctx, repositories.ResiFilter{MinRating: 4.499, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = adapter.FindEligible(ctx, repositories.ResiFilter{MinRating: 4.5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCachedResiAdapter_ThresholdSweep(t *testing.T) {
	ctx := context.Background()
	profile := func(id string, rating float64) *entities.ResiProfile {
		return &entities.ResiProfile{
			ID:                 id,
			Role:               entities.ActorRoleResi,
			IsActive:           true,
			Rating:             &rating,
			TotalReviews:       100,
			VerificationStatus: entities.VerificationStatusApproved,
		}
	}
	adapter := database.NewCachedResiAdapter(memory.NewResiRepository(
		profile("R-48", 4.8),
		profile("R-42", 4.2),
		profile("R-35", 3.5),
	), newFakeCache(), 30)

	tests := []struct {
		minRating float64
		want      []string
	}{
		{minRating: 3.0, want: []string{"R-48", "R-42", "R-35"}},
		{minRating: 4.5, want: []string{"R-48"}},
		{minRating: 4.9, want: []string{}},
		{minRating: 3.0, want: []string{"R-48", "R-42", "R-35"}},
	}

	for _, tt := range tests {
		got, err := adapter.FindEligible(ctx, repositories.ResiFilter{MinRating: tt.minRating, Limit: 10})
		require.NoError(t, err)

		ids := make([]string, 0, len(got))
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, tt.want, ids, "minRating=%v", tt.minRating)
	}
}
