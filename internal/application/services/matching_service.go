package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

// MatchingAlgorithm is recorded on bookings pre-assigned by FindBestResi
const MatchingAlgorithm = "rating_reviews_v1"

// Matching defaults
const (
	DefaultMinRating      = 3.0
	DefaultCandidateLimit = 10
)

// Compatibility score weights. Reviews saturate at experienceCap.
const (
	ratingWeight     = 50.0
	experienceWeight = 30.0
	experienceCap    = 1000.0
	approvedBonus    = 20.0
)

// MatchOptions tunes a matching query
type MatchOptions struct {
	// MinRating overrides the configured minimum when set
	MinRating *float64
	Exclude   []string
	// MaxDistanceKm is accepted for forward compatibility and ignored
	// until proximity search exists.
	MaxDistanceKm *float64
}

// RankCriteria controls RankResis ordering
type RankCriteria struct {
	PrioritizeExperience bool
}

// ResiMatcher is the matching contract the booking service depends on
type ResiMatcher interface {
	FindBestResi(ctx context.Context, addressID string, scheduledAt time.Time, opts MatchOptions) (*entities.ResiProfile, error)
	FindResiCandidates(ctx context.Context, addressID string, scheduledAt time.Time, limit int, opts MatchOptions) ([]*entities.ResiProfile, error)
	CalculateCompatibilityScore(resi *entities.ResiProfile) int
}

// MatchingService selects and ranks providers for a booking
type MatchingService struct {
	resis            repositories.ResiRepository
	availability     providers.AvailabilityProvider
	metrics          *observability.Metrics
	defaultMinRating float64
	defaultLimit     int
}

// NewMatchingService creates a new matching service. Non-positive
// defaults fall back to a 3.0 minimum rating and ten candidates.
func NewMatchingService(
	resis repositories.ResiRepository,
	availability providers.AvailabilityProvider,
	metrics *observability.Metrics,
	defaultMinRating float64,
	defaultLimit int,
) *MatchingService {
	if defaultMinRating <= 0 {
		defaultMinRating = DefaultMinRating
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultCandidateLimit
	}
	return &MatchingService{
		resis:            resis,
		availability:     availability,
		metrics:          metrics,
		defaultMinRating: defaultMinRating,
		defaultLimit:     defaultLimit,
	}
}

// FindBestResi returns the top eligible provider, or nil when nobody
// qualifies. Location and time do not influence the choice yet.
func (s *MatchingService) FindBestResi(ctx context.Context, addressID string, scheduledAt time.Time, opts MatchOptions) (*entities.ResiProfile, error) {
	ctx, span := observability.StartSpan(ctx, "matching.FindBestResi")
	defer span.End()

	candidates, err := s.resis.FindEligible(ctx, s.filter(opts, 1))
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if len(candidates) == 0 {
		observability.RecordMatchingEmpty(ctx, s.metrics)
		observability.LoggerFromContext(ctx).Info().
			Str("address_id", addressID).
			Time("scheduled_at", scheduledAt).
			Msg("No eligible resi found")
		return nil, nil
	}

	return candidates[0], nil
}

// FindResiCandidates returns up to limit eligible providers, best first
func (s *MatchingService) FindResiCandidates(ctx context.Context, addressID string, scheduledAt time.Time, limit int, opts MatchOptions) ([]*entities.ResiProfile, error) {
	ctx, span := observability.StartSpan(ctx, "matching.FindResiCandidates")
	defer span.End()

	if limit <= 0 {
		limit = s.defaultLimit
	}

	candidates, err := s.resis.FindEligible(ctx, s.filter(opts, limit))
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if len(candidates) == 0 {
		observability.RecordMatchingEmpty(ctx, s.metrics)
		observability.LoggerFromContext(ctx).Info().
			Str("address_id", addressID).
			Time("scheduled_at", scheduledAt).
			Msg("No eligible resi candidates")
		return []*entities.ResiProfile{}, nil
	}

	return candidates, nil
}

// CalculateCompatibilityScore scores a provider
func (s *MatchingService) CalculateCompatibilityScore(resi *entities.ResiProfile) int {
	return CompatibilityScore(resi)
}

// RankResis orders providers without touching the input slice
func (s *MatchingService) RankResis(resis []*entities.ResiProfile, criteria RankCriteria) []*entities.ResiProfile {
	return RankResis(resis, criteria)
}

// ValidateResiAvailability reports whether the provider is free for the slot
func (s *MatchingService) ValidateResiAvailability(ctx context.Context, resiID string, scheduledAt time.Time, durationMinutes int) (bool, error) {
	if strings.TrimSpace(resiID) == "" {
		return false, apperrors.NewValidationError("resi id is required")
	}
	if s.availability == nil {
		return true, nil
	}
	return s.availability.IsAvailable(ctx, resiID, scheduledAt, durationMinutes)
}

// FindNearbyResis returns provider IDs within maxDistanceKm of the address
func (s *MatchingService) FindNearbyResis(ctx context.Context, addressID string, maxDistanceKm float64) ([]string, error) {
	if s.availability == nil {
		return []string{}, nil
	}
	ids, err := s.availability.FindNearby(ctx, addressID, maxDistanceKm)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to search nearby resis", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *MatchingService) filter(opts MatchOptions, limit int) repositories.ResiFilter {
	minRating := s.defaultMinRating
	if opts.MinRating != nil {
		minRating = *opts.MinRating
	}
	return repositories.ResiFilter{
		MinRating: minRating,
		Exclude:   opts.Exclude,
		Limit:     limit,
	}
}

// CompatibilityScore combines rating, experience and verification into
// an integer in [0, 100]. It depends only on the profile.
func CompatibilityScore(resi *entities.ResiProfile) int {
	if resi == nil {
		return 0
	}

	score := 0.0
	if resi.Rating != nil {
		rating := math.Max(0, math.Min(*resi.Rating, entities.MaxRating))
		score += ratingWeight * rating / entities.MaxRating
	}

	reviews := math.Max(0, float64(resi.TotalReviews))
	score += math.Min(experienceWeight*reviews/experienceCap, experienceWeight)

	if resi.VerificationStatus == entities.VerificationStatusApproved {
		score += approvedBonus
	}

	return int(math.Round(score))
}

// RankResis returns a sorted copy of resis. With PrioritizeExperience the
// review count leads, then rating, then compatibility score; otherwise
// rating leads.
func RankResis(resis []*entities.ResiProfile, criteria RankCriteria) []*entities.ResiProfile {
	ranked := make([]*entities.ResiProfile, len(resis))
	copy(ranked, resis)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if criteria.PrioritizeExperience && a.TotalReviews != b.TotalReviews {
			return a.TotalReviews > b.TotalReviews
		}
		if ra, rb := a.EffectiveRating(), b.EffectiveRating(); ra != rb {
			return ra > rb
		}
		if !criteria.PrioritizeExperience && a.TotalReviews != b.TotalReviews {
			return a.TotalReviews > b.TotalReviews
		}
		return CompatibilityScore(a) > CompatibilityScore(b)
	})

	return ranked
}
