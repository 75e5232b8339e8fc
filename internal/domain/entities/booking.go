package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
	BookingStatusDisputed   BookingStatus = "DISPUTED"
)

// AllBookingStatuses lists every status in declaration order.
var AllBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusDisputed,
}

// AllowedTransitions returns the statuses reachable from s in one step.
// Unknown statuses have no successors.
func (s BookingStatus) AllowedTransitions() []BookingStatus {
	switch s {
	case BookingStatusPending:
		return []BookingStatus{BookingStatusConfirmed, BookingStatusCancelled}
	case BookingStatusConfirmed:
		return []BookingStatus{BookingStatusInProgress, BookingStatusCancelled}
	case BookingStatusInProgress:
		return []BookingStatus{BookingStatusCompleted, BookingStatusDisputed}
	case BookingStatusCompleted:
		return []BookingStatus{BookingStatusDisputed}
	case BookingStatusCancelled:
		return nil
	case BookingStatusDisputed:
		return []BookingStatus{BookingStatusCompleted, BookingStatusCancelled}
	default:
		return nil
	}
}

// CanTransitionTo reports whether target is an allowed successor of s
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, next := range s.AllowedTransitions() {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s BookingStatus) IsTerminal() bool {
	return s.IsValid() && len(s.AllowedTransitions()) == 0
}

// IsValid reports whether s is one of the known statuses
func (s BookingStatus) IsValid() bool {
	for _, known := range AllBookingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Frequency is informational; it does not create recurring bookings.
type Frequency string

const (
	FrequencyOneTime  Frequency = "ONE_TIME"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// IsValid reports whether f is a known frequency
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Duration bounds for a booking, in minutes
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 240
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// Metadata keys written by the booking lifecycle
const (
	MetadataCancellationReason = "cancellationReason"
	MetadataCancelledAt        = "cancelledAt"
	MetadataDisputeReason      = "disputeReason"
	MetadataDisputedAt         = "disputedAt"
	MetadataMatchingAlgorithm  = "matchingAlgorithm"
	MetadataAssignedAt         = "assignedAt"
	MetadataNotes              = "notes"
)

// Booking represents one scheduled service request
type Booking struct {
	ID                       string        `json:"id" db:"id"`
	ClientID                 string        `json:"client_id" db:"client_id"`
	ResiID                   *string       `json:"resi_id,omitempty" db:"resi_id"`
	AddressID                string        `json:"address_id" db:"address_id"`
	ScheduledAt              time.Time     `json:"scheduled_at" db:"scheduled_at"`
	EstimatedDurationMinutes int           `json:"estimated_duration_minutes" db:"estimated_duration_minutes"`
	Frequency                Frequency     `json:"frequency" db:"frequency"`
	AgreedPayout             float64       `json:"agreed_payout" db:"agreed_payout"`
	ClientPrice              float64       `json:"client_price" db:"client_price"`
	Status                   BookingStatus `json:"status" db:"status"`
	CheckInAt                *time.Time    `json:"check_in_at,omitempty" db:"check_in_at"`
	CheckOutAt               *time.Time    `json:"check_out_at,omitempty" db:"check_out_at"`
	ResiRating               *int          `json:"resi_rating,omitempty" db:"resi_rating"`
	ResiReview               *string       `json:"resi_review,omitempty" db:"resi_review"`
	ClientRating             *int          `json:"client_rating,omitempty" db:"client_rating"`
	ClientReview             *string       `json:"client_review,omitempty" db:"client_review"`
	Metadata                 Metadata      `json:"metadata" db:"metadata"`
	CreatedAt                time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at" db:"updated_at"`

	// Resi is the assigned provider's profile, resolved on single reads.
	Resi *ResiProfile `json:"resi,omitempty" db:"-"`
}

// HasResi reports whether a provider is assigned
func (b *Booking) HasResi() bool {
	return b.ResiID != nil && *b.ResiID != ""
}

// IsParty reports whether actorID is the client or the assigned resi
func (b *Booking) IsParty(actorID string) bool {
	if actorID == "" {
		return false
	}
	return b.ClientID == actorID || (b.HasResi() && *b.ResiID == actorID)
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.ResiID = cloneString(b.ResiID)
	c.CheckInAt = cloneTime(b.CheckInAt)
	c.CheckOutAt = cloneTime(b.CheckOutAt)
	c.ResiRating = cloneInt(b.ResiRating)
	c.ResiReview = cloneString(b.ResiReview)
	c.ClientRating = cloneInt(b.ClientRating)
	c.ClientReview = cloneString(b.ClientReview)
	c.Metadata = b.Metadata.Merge(nil)
	if b.Resi != nil {
		r := *b.Resi
		c.Resi = &r
	}
	return &c
}

// BookingPatch is a partial update. Nil fields are left untouched and
// Metadata is merged key by key, never replaced.
type BookingPatch struct {
	ResiID                   *string
	AddressID                *string
	ScheduledAt              *time.Time
	EstimatedDurationMinutes *int
	Frequency                *Frequency
	AgreedPayout             *float64
	ClientPrice              *float64
	Status                   *BookingStatus
	CheckInAt                *time.Time
	CheckOutAt               *time.Time
	ResiRating               *int
	ResiReview               *string
	ClientRating             *int
	ClientReview             *string
	Metadata                 Metadata
}

// IsEmpty reports whether the patch changes nothing
func (p BookingPatch) IsEmpty() bool {
	return p.ResiID == nil && p.AddressID == nil && p.ScheduledAt == nil &&
		p.EstimatedDurationMinutes == nil && p.Frequency == nil &&
		p.AgreedPayout == nil && p.ClientPrice == nil && p.Status == nil &&
		p.CheckInAt == nil && p.CheckOutAt == nil &&
		p.ResiRating == nil && p.ResiReview == nil &&
		p.ClientRating == nil && p.ClientReview == nil &&
		len(p.Metadata) == 0
}

// ApplyTo writes the patch onto b. Check-in and check-out are never
// overwritten once set.
func (p BookingPatch) ApplyTo(b *Booking) {
	if p.ResiID != nil {
		b.ResiID = cloneString(p.ResiID)
	}
	if p.AddressID != nil {
		b.AddressID = *p.AddressID
	}
	if p.ScheduledAt != nil {
		b.ScheduledAt = *p.ScheduledAt
	}
	if p.EstimatedDurationMinutes != nil {
		b.EstimatedDurationMinutes = *p.EstimatedDurationMinutes
	}
	if p.Frequency != nil {
		b.Frequency = *p.Frequency
	}
	if p.AgreedPayout != nil {
		b.AgreedPayout = *p.AgreedPayout
	}
	if p.ClientPrice != nil {
		b.ClientPrice = *p.ClientPrice
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.CheckInAt != nil && b.CheckInAt == nil {
		b.CheckInAt = cloneTime(p.CheckInAt)
	}
	if p.CheckOutAt != nil && b.CheckOutAt == nil {
		b.CheckOutAt = cloneTime(p.CheckOutAt)
	}
	if p.ResiRating != nil {
		b.ResiRating = cloneInt(p.ResiRating)
	}
	if p.ResiReview != nil {
		b.ResiReview = cloneString(p.ResiReview)
	}
	if p.ClientRating != nil {
		b.ClientRating = cloneInt(p.ClientRating)
	}
	if p.ClientReview != nil {
		b.ClientReview = cloneString(p.ClientReview)
	}
	if len(p.Metadata) > 0 {
		b.Metadata = b.Metadata.Merge(p.Metadata)
	}
}

// Metadata holds free-form annotations stored as JSONB
type Metadata map[string]interface{}

// Merge returns a new map with other's keys layered over m's
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}

	out := Metadata{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	*m = out
	return nil
}

// HasAtMostTwoDecimals reports whether v is representable in cents
func HasAtMostTwoDecimals(v float64) bool {
	cents := v * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
