// Package notification records in-app messages for borrowers and lets them
// read and acknowledge their own.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"libraryms/internal/domain"
	"libraryms/internal/store"
)

// Notification kinds.
const (
	KindDueDate              = "due_date"
	KindDueSoon              = "due_soon"
	KindOverdue              = "overdue"
	KindReservationAvailable = "reservation_available"
	KindReservationExpired   = "reservation_expired"
)

const dateLayout = "2006-01-02"

// Message is one notification to record.
type Message struct {
	UserID int64
	Kind   string
	Text   string
	// DedupeKey, when set, makes the message idempotent: a second Create
	// with the same key records nothing.
	DedupeKey string
}

// Recorder observes created notifications.
type Recorder interface {
	NotificationCreated(kind string)
}

// Sink persists notifications inside the caller's transaction.
type Sink struct {
	log      logrus.FieldLogger
	recorder Recorder
	now      func() time.Time
}

// NewSink returns a Sink. recorder may be nil.
func NewSink(log logrus.FieldLogger, recorder Recorder) *Sink {
	return &Sink{log: log, recorder: recorder, now: time.Now}
}

// Create records m in tx. It reports false when the dedupe key was already used.
func (s *Sink) Create(ctx context.Context, tx store.Tx, m Message) (bool, error) {
	n := &domain.Notification{
		UserID:    m.UserID,
		Kind:      m.Kind,
		Message:   m.Text,
		CreatedAt: s.now().UTC(),
	}
	if m.DedupeKey != "" {
		key := m.DedupeKey
		n.DedupeKey = &key
	}

	created, err := tx.CreateNotification(ctx, n)
	if err != nil {
		return false, fmt.Errorf("create %s notification: %w", m.Kind, err)
	}
	if !created {
		s.log.WithField("dedupe_key", m.DedupeKey).Debug("notification already sent")
		return false, nil
	}
	if s.recorder != nil {
		s.recorder.NotificationCreated(m.Kind)
	}
	s.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"kind":            n.Kind,
	}).Debug("notification created")
	return true, nil
}

// DedupeKey builds the daily idempotency key "<kind>:<entity>:<id>:<YYYY-MM-DD>".
func DedupeKey(kind, entity string, id int64, day time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", kind, entity, id, day.UTC().Format(dateLayout))
}

// FormatDate renders t the way notification texts show dates.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// DueDate is sent to a borrower when a loan starts.
func DueDate(userID int64, title string, due time.Time) Message {
	return Message{
		UserID: userID,
		Kind:   KindDueDate,
		Text:   fmt.Sprintf("You have borrowed '%s'. Please return it by %s.", title, FormatDate(due)),
	}
}

// ReservationAvailable tells a reserver that the book has no borrower.
func ReservationAvailable(r domain.Reservation, title string, now time.Time) Message {
	return Message{
		UserID:    r.BorrowerID,
		Kind:      KindReservationAvailable,
		Text:      fmt.Sprintf("Good news! The book '%s' you reserved is now available. Please borrow it before %s.", title, FormatDate(r.ExpirationDate)),
		DedupeKey: DedupeKey(KindReservationAvailable, "reservation", r.ID, now),
	}
}

// ReservationExpired tells a reserver that their claim lapsed.
func ReservationExpired(r domain.Reservation, title string, now time.Time) Message {
	return Message{
		UserID:    r.BorrowerID,
		Kind:      KindReservationExpired,
		Text:      fmt.Sprintf("Attention: Your reservation for %s has expired.", title),
		DedupeKey: DedupeKey(KindReservationExpired, "reservation", r.ID, now),
	}
}

// DueSoon reminds a borrower of an approaching due date.
func DueSoon(t domain.BorrowingTransaction, title string, now time.Time) Message {
	return Message{
		UserID:    t.BorrowerID,
		Kind:      KindDueSoon,
		Text:      fmt.Sprintf("Reminder: Your borrowed book '%s' is due on %s.", title, FormatDate(t.DueDate)),
		DedupeKey: DedupeKey(KindDueSoon, "transaction", t.ID, now),
	}
}

// Overdue tells a borrower their loan has passed its due date.
func Overdue(t domain.BorrowingTransaction, title string, now time.Time) Message {
	return Message{
		UserID:    t.BorrowerID,
		Kind:      KindOverdue,
		Text:      fmt.Sprintf("Attention: Your borrowed book '%s' is overdue, please return it.", title),
		DedupeKey: DedupeKey(KindOverdue, "transaction", t.ID, now),
	}
}
