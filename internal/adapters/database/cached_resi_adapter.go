package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
)

// CachedResiAdapter wraps a ResiRepository with read-through caching.
// Eligibility lists are cached briefly so a rating change shows up within
// one TTL.
type CachedResiAdapter struct {
	adapter    repositories.ResiRepository
	cache      providers.CacheProvider
	profileTTL int
	listTTL    int
}

// NewCachedResiAdapter creates a new cached resi adapter. listTTL is in
// seconds; profiles are kept ten times longer.
func NewCachedResiAdapter(adapter repositories.ResiRepository, cache providers.CacheProvider, listTTL int) repositories.ResiRepository {
	if listTTL <= 0 {
		listTTL = 30
	}
	return &CachedResiAdapter{
		adapter:    adapter,
		cache:      cache,
		profileTTL: listTTL * 10,
		listTTL:    listTTL,
	}
}

func eligibleCacheKey(filter repositories.ResiFilter) string {
	exclude := append([]string(nil), filter.Exclude...)
	sort.Strings(exclude)
	minRating := strconv.FormatFloat(filter.MinRating, 'g', -1, 64)
	return fmt.Sprintf("resi:eligible:%s:%d:%s", minRating, filter.Limit, strings.Join(exclude, ","))
}

// GetByID retrieves a provider profile, from cache when possible
func (a *CachedResiAdapter) GetByID(ctx context.Context, id string) (*entities.ResiProfile, error) {
	key := entities.ResiCacheKey(id)

	var profile entities.ResiProfile
	if a.load(ctx, key, &profile) {
		return &profile, nil
	}

	fresh, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, fresh, a.profileTTL)
	return fresh, nil
}

// FindEligible returns the eligible pool, from cache when possible
func (a *CachedResiAdapter) FindEligible(ctx context.Context, filter repositories.ResiFilter) ([]*entities.ResiProfile, error) {
	key := eligibleCacheKey(filter)

	var profiles []*entities.ResiProfile
	if a.load(ctx, key, &profiles) {
		return profiles, nil
	}

	fresh, err := a.adapter.FindEligible(ctx, filter)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, fresh, a.listTTL)
	return fresh, nil
}

func (a *CachedResiAdapter) load(ctx context.Context, key string, dest interface{}) bool {
	data, err := a.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached resi data")
		return false
	}
	return true
}

func (a *CachedResiAdapter) store(ctx context.Context, key string, value interface{}, ttl int) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, data, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache resi data")
	}
}
