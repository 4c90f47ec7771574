package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle event types.
const (
	EventBookBorrowed         = "BookBorrowed"
	EventBookReturned         = "BookReturned"
	EventBookReserved         = "BookReserved"
	EventReservationCancelled = "ReservationCancelled"
	EventReservationExpired   = "ReservationExpired"
)

// Aggregate types.
const (
	AggregateBook = "book"
)

// LifecycleEvent is the audit record committed together with every
// lifecycle state change.
type LifecycleEvent struct {
	ID            int64     `json:"id" db:"id"`
	AggregateType string    `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   int64     `json:"aggregate_id" db:"aggregate_id"`
	EventType     string    `json:"event_type" db:"event_type"`
	EventData     string    `json:"event_data" db:"event_data"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// NewBookEvent builds an event for bookID with data marshaled as JSON.
func NewBookEvent(bookID int64, eventType string, data interface{}, at time.Time) (*LifecycleEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event data: %w", eventType, err)
	}
	return &LifecycleEvent{
		AggregateType: AggregateBook,
		AggregateID:   bookID,
		EventType:     eventType,
		EventData:     string(raw),
		CreatedAt:     at,
	}, nil
}

// BookBorrowedData is the payload of EventBookBorrowed.
type BookBorrowedData struct {
	TransactionID         int64     `json:"transaction_id"`
	BorrowerID            int64     `json:"borrower_id"`
	DueDate               time.Time `json:"due_date"`
	ConsumedReservationID int64     `json:"consumed_reservation_id,omitempty"`
}

// BookReturnedData is the payload of EventBookReturned.
type BookReturnedData struct {
	TransactionID int64     `json:"transaction_id"`
	BorrowerID    int64     `json:"borrower_id"`
	ReturnedDate  time.Time `json:"returned_date"`
}

// BookReservedData is the payload of EventBookReserved.
type BookReservedData struct {
	ReservationID  int64     `json:"reservation_id"`
	BorrowerID     int64     `json:"borrower_id"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// ReservationEndedData is the payload of EventReservationCancelled and EventReservationExpired.
type ReservationEndedData struct {
	ReservationID int64 `json:"reservation_id"`
	BorrowerID    int64 `json:"borrower_id"`
}

// Decode unmarshals the event payload into v.
func (e *LifecycleEvent) Decode(v interface{}) error {
	if err := json.Unmarshal([]byte(e.EventData), v); err != nil {
		return fmt.Errorf("decode %s event %d: %w", e.EventType, e.ID, err)
	}
	return nil
}
