package notification

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
	"libraryms/internal/store/memstore"
	"libraryms/internal/store/storetest"
)

type countingRecorder map[string]int

func (c countingRecorder) NotificationCreated(kind string) { c[kind]++ }

func TestDedupeKey(t *testing.T) {
	day := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "overdue:transaction:12:2026-03-02", DedupeKey(KindOverdue, "transaction", 12, day))
}

func TestMessages(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := domain.Reservation{ID: 4, BorrowerID: 2, ExpirationDate: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)}

	m := ReservationAvailable(r, "Dune", now)
	assert.Equal(t, int64(2), m.UserID)
	assert.Equal(t, "Good news! The book 'Dune' you reserved is now available. Please borrow it before 2026-04-10.", m.Text)
	assert.Equal(t, "reservation_available:reservation:4:2026-03-01", m.DedupeKey)

	assert.Equal(t, "Attention: Your reservation for Dune has expired.", ReservationExpired(r, "Dune", now).Text)

	bt := domain.BorrowingTransaction{ID: 9, BorrowerID: 3, DueDate: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "Reminder: Your borrowed book 'Dune' is due on 2026-03-03.", DueSoon(bt, "Dune", now).Text)
	assert.Equal(t, "Attention: Your borrowed book 'Dune' is overdue, please return it.", Overdue(bt, "Dune", now).Text)
	assert.Empty(t, DueDate(3, "Dune", bt.DueDate).DedupeKey)
}

func TestSink_Create(t *testing.T) {
	s := memstore.New(store.DefaultTxConfig())
	f := storetest.Seed(t, s)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rec := countingRecorder{}
	sink := NewSink(logger, rec)

	msg := Overdue(domain.BorrowingTransaction{ID: 1, BorrowerID: f.Borrower.ID}, "The Hobbit", time.Now())
	for i, want := range []bool{true, false} {
		require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			created, err := sink.Create(ctx, tx, msg)
			require.NoError(t, err)
			assert.Equal(t, want, created, "attempt %d", i)
			return nil
		}))
	}

	assert.Equal(t, 1, rec[KindOverdue])
	assert.Equal(t, "notification already sent", hook.LastEntry().Message)
}

func TestService_ListAndMarkAsRead(t *testing.T) {
	s := memstore.New(store.DefaultTxConfig())
	f := storetest.Seed(t, s)
	logger, _ := test.NewNullLogger()
	sink := NewSink(logger, nil)
	svc := NewService(s)

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := sink.Create(ctx, tx, DueDate(f.Borrower.ID, "The Hobbit", time.Now().Add(domain.LoanPeriod)))
		return err
	}))

	alice := domain.Principal{Role: domain.RoleBorrower, ID: f.Borrower.ID, Username: f.Borrower.Username}
	bob := domain.Principal{Role: domain.RoleBorrower, ID: f.Other.ID, Username: f.Other.Username}

	list, err := svc.List(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)

	empty, err := svc.List(context.Background(), bob)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.MarkAsRead(context.Background(), bob, list[0].ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	n, err := svc.MarkAsRead(context.Background(), alice, list[0].ID)
	require.NoError(t, err)
	assert.True(t, n.Read)

	_, err = svc.MarkAsRead(context.Background(), alice, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
