package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingEventType names a booking lifecycle event
type BookingEventType string

const (
	BookingEventCreated       BookingEventType = "booking.created"
	BookingEventResiAssigned  BookingEventType = "booking.resi_assigned"
	BookingEventConfirmed     BookingEventType = "booking.confirmed"
	BookingEventStarted       BookingEventType = "booking.started"
	BookingEventCompleted     BookingEventType = "booking.completed"
	BookingEventCancelled     BookingEventType = "booking.cancelled"
	BookingEventDisputed      BookingEventType = "booking.disputed"
	BookingEventRated         BookingEventType = "booking.rated"
	BookingEventStatusChanged BookingEventType = "booking.status_changed"
)

// BookingEventPayload is implemented only by the payload types in this file.
type BookingEventPayload interface {
	EventType() BookingEventType
	bookingID() string
}

// BookingCreated is emitted once a booking is persisted
type BookingCreated struct {
	BookingID   string    `json:"bookingId"`
	ClientID    string    `json:"clientId"`
	ResiID      *string   `json:"resiId,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// ResiAssigned is emitted when matching pre-assigned a provider at creation
type ResiAssigned struct {
	BookingID string `json:"bookingId"`
	ResiID    string `json:"resiId"`
}

// BookingConfirmed is emitted when the provider accepts
type BookingConfirmed struct {
	BookingID string `json:"bookingId"`
	ResiID    string `json:"resiId"`
	ClientID  string `json:"clientId"`
}

// BookingStarted is emitted on check-in
type BookingStarted struct {
	BookingID string `json:"bookingId"`
	ResiID    string `json:"resiId"`
	ClientID  string `json:"clientId"`
}

// BookingCompleted is emitted on check-out and triggers payout settlement
type BookingCompleted struct {
	BookingID    string  `json:"bookingId"`
	ResiID       string  `json:"resiId"`
	ClientID     string  `json:"clientId"`
	AgreedPayout float64 `json:"agreedPayout"`
}

// BookingCancelled is emitted on cancellation
type BookingCancelled struct {
	BookingID string  `json:"bookingId"`
	ResiID    *string `json:"resiId,omitempty"`
	ClientID  string  `json:"clientId"`
	Reason    *string `json:"reason,omitempty"`
}

// BookingDisputed is emitted when either party raises a dispute
type BookingDisputed struct {
	BookingID string  `json:"bookingId"`
	ResiID    *string `json:"resiId,omitempty"`
	ClientID  string  `json:"clientId"`
	Reason    string  `json:"reason"`
}

// BookingRated is emitted when either party leaves a rating
type BookingRated struct {
	BookingID string    `json:"bookingId"`
	Rating    int       `json:"rating"`
	UserRole  ActorRole `json:"userRole"`
}

// BookingStatusChanged is emitted by generic updates that move status
type BookingStatusChanged struct {
	BookingID string        `json:"bookingId"`
	OldStatus BookingStatus `json:"oldStatus"`
	NewStatus BookingStatus `json:"newStatus"`
}

func (BookingCreated) EventType() BookingEventType       { return BookingEventCreated }
func (ResiAssigned) EventType() BookingEventType         { return BookingEventResiAssigned }
func (BookingConfirmed) EventType() BookingEventType     { return BookingEventConfirmed }
func (BookingStarted) EventType() BookingEventType       { return BookingEventStarted }
func (BookingCompleted) EventType() BookingEventType     { return BookingEventCompleted }
func (BookingCancelled) EventType() BookingEventType     { return BookingEventCancelled }
func (BookingDisputed) EventType() BookingEventType      { return BookingEventDisputed }
func (BookingRated) EventType() BookingEventType         { return BookingEventRated }
func (BookingStatusChanged) EventType() BookingEventType { return BookingEventStatusChanged }

func (e BookingCreated) bookingID() string       { return e.BookingID }
func (e ResiAssigned) bookingID() string         { return e.BookingID }
func (e BookingConfirmed) bookingID() string     { return e.BookingID }
func (e BookingStarted) bookingID() string       { return e.BookingID }
func (e BookingCompleted) bookingID() string     { return e.BookingID }
func (e BookingCancelled) bookingID() string     { return e.BookingID }
func (e BookingDisputed) bookingID() string      { return e.BookingID }
func (e BookingRated) bookingID() string         { return e.BookingID }
func (e BookingStatusChanged) bookingID() string { return e.BookingID }

// BookingEvent is the envelope published to the event bus
type BookingEvent struct {
	ID         string              `json:"id"`
	Type       BookingEventType    `json:"type"`
	BookingID  string              `json:"booking_id"`
	OccurredAt time.Time           `json:"occurred_at"`
	Payload    BookingEventPayload `json:"payload"`
}

// NewBookingEvent wraps a payload in a new envelope
func NewBookingEvent(payload BookingEventPayload) *BookingEvent {
	return &BookingEvent{
		ID:         uuid.NewString(),
		Type:       payload.EventType(),
		BookingID:  payload.bookingID(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// UnmarshalJSON decodes the payload into its concrete type based on Type
func (e *BookingEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string           `json:"id"`
		Type       BookingEventType `json:"type"`
		BookingID  string           `json:"booking_id"`
		OccurredAt time.Time        `json:"occurred_at"`
		Payload    json.RawMessage  `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := decodePayload(raw.Type, raw.Payload)
	if err != nil {
		return err
	}

	e.ID = raw.ID
	e.Type = raw.Type
	e.BookingID = raw.BookingID
	e.OccurredAt = raw.OccurredAt
	e.Payload = payload
	return nil
}

func decodePayload(t BookingEventType, data json.RawMessage) (BookingEventPayload, error) {
	switch t {
	case BookingEventCreated:
		return decodeAs[BookingCreated](t, data)
	case BookingEventResiAssigned:
		return decodeAs[ResiAssigned](t, data)
	case BookingEventConfirmed:
		return decodeAs[BookingConfirmed](t, data)
	case BookingEventStarted:
		return decodeAs[BookingStarted](t, data)
	case BookingEventCompleted:
		return decodeAs[BookingCompleted](t, data)
	case BookingEventCancelled:
		return decodeAs[BookingCancelled](t, data)
	case BookingEventDisputed:
		return decodeAs[BookingDisputed](t, data)
	case BookingEventRated:
		return decodeAs[BookingRated](t, data)
	case BookingEventStatusChanged:
		return decodeAs[BookingStatusChanged](t, data)
	default:
		return nil, fmt.Errorf("unknown booking event type %q", t)
	}
}

func decodeAs[T BookingEventPayload](t BookingEventType, data json.RawMessage) (BookingEventPayload, error) {
	var payload T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
	}
	return payload, nil
}
