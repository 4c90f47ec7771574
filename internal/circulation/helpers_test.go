package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"libraryms/internal/domain"
	"libraryms/internal/notification"
	"libraryms/internal/store"
	"libraryms/internal/store/storetest"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type outcomes map[string]int

func (o outcomes) LifecycleOperation(op, outcome string) { o[op+"/"+outcome]++ }

type fixture struct {
	store  store.Store
	svc    Service
	clock  *fakeClock
	author domain.Principal
	alice  domain.Principal
	bob    domain.Principal
	books  []domain.Book
}

func borrowerPrincipal(b domain.Borrower) domain.Principal {
	return domain.Principal{Role: domain.RoleBorrower, ID: b.ID, Username: b.Username}
}

// newFixture seeds one author, two borrowers and nBooks books (at least one).
func newFixture(t *testing.T, s store.Store, nBooks int, opts ...Option) *fixture {
	t.Helper()
	seed := storetest.Seed(t, s)
	books := []domain.Book{seed.Book}
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i := 1; i < nBooks; i++ {
			b := domain.Book{
				ISBN:      fmt.Sprintf("97800000%05d", i),
				Title:     fmt.Sprintf("Volume %d", i),
				Category:  domain.CategoryFiction,
				AuthorID:  seed.Author.ID,
				CreatedAt: t0,
				UpdatedAt: t0,
			}
			if err := tx.CreateBook(ctx, &b); err != nil {
				return err
			}
			books = append(books, b)
		}
		return nil
	}))

	clock := &fakeClock{now: t0}
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		store:  s,
		svc:    NewService(s, notification.NewSink(logger, nil), logger, opts...),
		clock:  clock,
		author: domain.Principal{Role: domain.RoleAuthor, ID: seed.Author.ID, Username: seed.Author.Username},
		alice:  borrowerPrincipal(seed.Borrower),
		bob:    borrowerPrincipal(seed.Other),
		books:  books,
	}
}

func (f *fixture) addBorrower(t *testing.T, username string) domain.Principal {
	t.Helper()
	b := domain.Borrower{Username: username, PasswordHash: "h", Salt: "s", RegistrationDate: t0}
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateBorrower(ctx, &b)
	}))
	return borrowerPrincipal(b)
}

func (f *fixture) book(t *testing.T, id int64) *domain.Book {
	t.Helper()
	var b *domain.Book
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.GetBook(ctx, id)
		return err
	}))
	return b
}

func (f *fixture) reservations(t *testing.T, filter store.ReservationFilter) []domain.Reservation {
	t.Helper()
	var out []domain.Reservation
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListReservations(ctx, filter)
		return err
	}))
	return out
}

func (f *fixture) events(t *testing.T, bookID int64) []domain.LifecycleEvent {
	t.Helper()
	var out []domain.LifecycleEvent
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListEvents(ctx, store.EventFilter{AggregateID: bookID})
		return err
	}))
	return out
}

func (f *fixture) notifications(t *testing.T, userID int64) []domain.Notification {
	t.Helper()
	var out []domain.Notification
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListNotifications(ctx, userID)
		return err
	}))
	return out
}

func (f *fixture) activeLoans(t *testing.T, borrowerID int64) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.CountTransactions(ctx, store.TransactionFilter{BorrowerID: borrowerID, Status: store.LoanActive})
		return err
	}))
	return n
}
