package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

// ResiRepository is an in-process ResiRepository seeded by the caller
type ResiRepository struct {
	mu       sync.RWMutex
	profiles map[string]entities.ResiProfile
}

// NewResiRepository creates a repository holding profiles
func NewResiRepository(profiles ...*entities.ResiProfile) *ResiRepository {
	r := &ResiRepository{profiles: make(map[string]entities.ResiProfile)}
	for _, p := range profiles {
		r.Put(p)
	}
	return r
}

var _ repositories.ResiRepository = (*ResiRepository)(nil)

// Put inserts or replaces a profile
func (r *ResiRepository) Put(p *entities.ResiProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = copyProfile(p)
}

// GetByID retrieves a provider profile by ID
func (r *ResiRepository) GetByID(ctx context.Context, id string) (*entities.ResiProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("resi with id %s not found", id))
	}
	out := copyProfile(&p)
	return &out, nil
}

// FindEligible applies the same eligibility and ordering as the SQL adapter
func (r *ResiRepository) FindEligible(ctx context.Context, filter repositories.ResiFilter) ([]*entities.ResiProfile, error) {
	excluded := make(map[string]struct{}, len(filter.Exclude))
	for _, id := range filter.Exclude {
		excluded[id] = struct{}{}
	}

	r.mu.RLock()
	out := make([]*entities.ResiProfile, 0)
	for _, p := range r.profiles {
		if p.Role != entities.ActorRoleResi || !p.IsActive || p.TotalReviews <= 0 {
			continue
		}
		if p.Rating != nil && *p.Rating < filter.MinRating {
			continue
		}
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		c := copyProfile(&p)
		out = append(out, &c)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].EffectiveRating(), out[j].EffectiveRating(); ri != rj {
			return ri > rj
		}
		if out[i].TotalReviews != out[j].TotalReviews {
			return out[i].TotalReviews > out[j].TotalReviews
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func copyProfile(p *entities.ResiProfile) entities.ResiProfile {
	c := *p
	if p.Rating != nil {
		v := *p.Rating
		c.Rating = &v
	}
	return c
}
