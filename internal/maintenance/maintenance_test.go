package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/circulation"
	"libraryms/internal/domain"
	"libraryms/internal/notification"
	"libraryms/internal/store"
	"libraryms/internal/store/storetest"
	"libraryms/internal/store/testbackend"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type runs map[string]int

func (r runs) SweepRun(sweep string, processed int, _ time.Duration, success bool) {
	if success {
		r[sweep] += processed
	}
}

type fixture struct {
	store   store.Store
	clock   *clock
	engine  circulation.Service
	sweeper *Sweeper
	runs    runs
	seed    storetest.Fixture
	alice   domain.Principal
	bob     domain.Principal
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()
	seed := storetest.Seed(t, s)
	logger, _ := test.NewNullLogger()
	sink := notification.NewSink(logger, nil)
	c := &clock{now: t0}
	f := &fixture{
		store: s,
		clock: c,
		runs:  runs{},
		seed:  seed,
		alice: domain.Principal{Role: domain.RoleBorrower, ID: seed.Borrower.ID, Username: seed.Borrower.Username},
		bob:   domain.Principal{Role: domain.RoleBorrower, ID: seed.Other.ID, Username: seed.Other.Username},
	}
	f.engine = circulation.NewService(s, sink, logger, circulation.WithClock(c.Now))
	f.sweeper = NewSweeper(s, sink, logger, WithClock(c.Now), WithRecorder(f.runs))
	return f
}

func (f *fixture) book(t *testing.T) *domain.Book {
	t.Helper()
	var b *domain.Book
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.GetBook(ctx, f.seed.Book.ID)
		return err
	}))
	return b
}

func (f *fixture) reservations(t *testing.T) []domain.Reservation {
	t.Helper()
	var out []domain.Reservation
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListReservations(ctx, store.ReservationFilter{})
		return err
	}))
	return out
}

func (f *fixture) notifications(t *testing.T, userID int64, kind string) []domain.Notification {
	t.Helper()
	var out []domain.Notification
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListNotifications(ctx, userID)
		for _, n := range all {
			if n.Kind == kind {
				out = append(out, n)
			}
		}
		return err
	}))
	return out
}

// borrowAndReserve lends the book to alice and lets bob reserve it.
func (f *fixture) borrowAndReserve(t *testing.T) (*domain.BorrowingTransaction, *domain.Reservation) {
	t.Helper()
	ctx := context.Background()
	loan, err := f.engine.Borrow(ctx, f.alice, f.seed.Book.ID)
	require.NoError(t, err)
	r, err := f.engine.ReserveBook(ctx, f.bob, f.seed.Book.ID)
	require.NoError(t, err)
	require.Equal(t, loan.DueDate.Add(domain.ReservationGrace), r.ExpirationDate)
	return loan, r
}

func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, b := range testbackend.All() {
		t.Run(b.Name, func(t *testing.T) { fn(t, newFixture(t, b.Open(t))) })
	}
}

func TestExpireReservations_OneSecondPast(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		_, r := f.borrowAndReserve(t)
		f.clock.Set(r.ExpirationDate.Add(time.Second))

		res, err := f.sweeper.ExpireReservations(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Result{Sweep: SweepExpire, Processed: 1, Notified: 1}, res)

		assert.Empty(t, f.reservations(t))
		expired := f.notifications(t, f.bob.ID, notification.KindReservationExpired)
		require.Len(t, expired, 1)
		assert.Equal(t, "Attention: Your reservation for The Hobbit has expired.", expired[0].Message)

		book := f.book(t)
		assert.Nil(t, book.ReservedBy)
		assert.True(t, book.IsBorrowedBy(f.alice.ID))

		var events []domain.LifecycleEvent
		require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			var err error
			events, err = tx.ListEvents(ctx, store.EventFilter{EventType: domain.EventReservationExpired})
			return err
		}))
		assert.Len(t, events, 1)
		assert.Equal(t, 1, f.runs[SweepExpire])
	})
}

func TestExpireReservations_KeepsUnexpired(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		_, r := f.borrowAndReserve(t)
		f.clock.Set(r.ExpirationDate)

		res, err := f.sweeper.ExpireReservations(context.Background())
		require.NoError(t, err)
		assert.Zero(t, res.Processed)
		assert.Len(t, f.reservations(t), 1)
	})
}

func TestSweepsBeforeExpiry_KeepReturnedBookReserved(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		loan, r := f.borrowAndReserve(t)

		f.clock.Set(t0.Add(24 * time.Hour))
		_, err := f.engine.ReturnBook(ctx, f.alice, loan.ID)
		require.NoError(t, err)

		book := f.book(t)
		assert.Nil(t, book.BorrowedBy)
		assert.True(t, book.IsReservedBy(f.bob.ID))
		require.Len(t, f.notifications(t, f.bob.ID, notification.KindReservationAvailable), 1)

		// same day: the reminder is deduplicated
		results, err := f.sweeper.RunAll(ctx)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, Result{Sweep: SweepAvailable, Processed: 1, Notified: 0}, results[1])

		for _, at := range []time.Time{t0.Add(72 * time.Hour), r.ExpirationDate.Add(-time.Second)} {
			f.clock.Set(at)
			_, err := f.sweeper.RunAll(ctx)
			require.NoError(t, err)
			require.Len(t, f.reservations(t), 1)
			assert.True(t, f.book(t).IsReservedBy(f.bob.ID))
		}
		assert.Len(t, f.notifications(t, f.bob.ID, notification.KindReservationAvailable), 3)

		f.clock.Set(r.ExpirationDate.Add(time.Second))
		_, err = f.sweeper.RunAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, f.reservations(t))
		assert.Nil(t, f.book(t).ReservedBy)
	})
}

func TestNotifyDueSoonAndOverdue(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		loan, err := f.engine.Borrow(ctx, f.alice, f.seed.Book.ID)
		require.NoError(t, err)

		f.clock.Set(loan.DueDate.Add(-4 * 24 * time.Hour))
		res, err := f.sweeper.NotifyDueSoon(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Processed)

		f.clock.Set(loan.DueDate.Add(-2 * 24 * time.Hour))
		res, err = f.sweeper.NotifyDueSoon(ctx)
		require.NoError(t, err)
		assert.Equal(t, Result{Sweep: SweepDueSoon, Processed: 1, Notified: 1}, res)
		res, err = f.sweeper.NotifyDueSoon(ctx)
		require.NoError(t, err)
		assert.Equal(t, Result{Sweep: SweepDueSoon, Processed: 1, Notified: 0}, res)

		res, err = f.sweeper.NotifyOverdue(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Processed)

		f.clock.Set(loan.DueDate.Add(time.Hour))
		res, err = f.sweeper.NotifyDueSoon(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Processed)
		res, err = f.sweeper.NotifyOverdue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Notified)

		f.clock.Set(loan.DueDate.Add(25 * time.Hour))
		res, err = f.sweeper.NotifyOverdue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Notified)

		dueSoon := f.notifications(t, f.alice.ID, notification.KindDueSoon)
		require.Len(t, dueSoon, 1)
		assert.Equal(t, "Reminder: Your borrowed book 'The Hobbit' is due on "+notification.FormatDate(loan.DueDate)+".", dueSoon[0].Message)
		assert.Len(t, f.notifications(t, f.alice.ID, notification.KindOverdue), 2)

		_, err = f.engine.ReturnBook(ctx, f.alice, loan.ID)
		require.NoError(t, err)
		f.clock.Set(loan.DueDate.Add(49 * time.Hour))
		res, err = f.sweeper.NotifyOverdue(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Processed)
	})
}

func TestRun_UnknownSweep(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	_, err := f.sweeper.Run(context.Background(), "vacuum")
	assert.EqualError(t, err, `unknown sweep "vacuum"`)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sweeper.Run(ctx, SweepOverdue)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.runs[SweepOverdue])
}
