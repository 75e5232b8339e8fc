package entities

import "time"

// VerificationStatus is the KYC state of a provider
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusApproved VerificationStatus = "approved"
	VerificationStatusRejected VerificationStatus = "rejected"
)

// ResiProfile is a service provider as seen by matching. Read-only here.
type ResiProfile struct {
	ID                 string             `json:"id" db:"id"`
	DisplayName        string             `json:"display_name" db:"display_name"`
	Role               ActorRole          `json:"role" db:"role"`
	IsActive           bool               `json:"is_active" db:"is_active"`
	Rating             *float64           `json:"rating,omitempty" db:"rating"`
	TotalReviews       int                `json:"total_reviews" db:"total_reviews"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// EffectiveRating returns the rating used for ordering; unrated providers
// rank as if rated 3.
func (r *ResiProfile) EffectiveRating() float64 {
	if r.Rating == nil {
		return DefaultResiRating
	}
	return *r.Rating
}

// DefaultResiRating stands in for a missing rating when ordering candidates
const DefaultResiRating = 3.0

// CandidateSummary is a matched provider decorated for display
type CandidateSummary struct {
	ResiID             string             `json:"resi_id"`
	DisplayName        string             `json:"display_name"`
	Rating             *float64           `json:"rating,omitempty"`
	TotalReviews       int                `json:"total_reviews"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CompatibilityScore int                `json:"compatibility_score"`
}

// RatingStats aggregates ratings across every rated booking
type RatingStats struct {
	// ResiRatings are client-given ratings of providers.
	ResiRatingCount   int     `json:"resi_rating_count"`
	ResiRatingAverage float64 `json:"resi_rating_average"`
	// ClientRatings are provider-given ratings of clients.
	ClientRatingCount   int     `json:"client_rating_count"`
	ClientRatingAverage float64 `json:"client_rating_average"`
}

// ResiCacheKey is the cache key holding a single resi profile
func ResiCacheKey(id string) string {
	return "resi:" + id
}
