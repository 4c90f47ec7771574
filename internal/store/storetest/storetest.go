// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/domain"
	"libraryms/internal/store"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

// Fixture is the minimal graph most checks start from.
type Fixture struct {
	Author   domain.Author
	Borrower domain.Borrower
	Other    domain.Borrower
	Book     domain.Book
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Seed inserts one author, two borrowers and one book into s.
func Seed(t *testing.T, s store.Store) Fixture {
	t.Helper()
	var f Fixture
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		f.Author = domain.Author{Username: "tolkien", PasswordHash: "h", Salt: "s", Name: "J. R. R. Tolkien", CreatedAt: base}
		if err := tx.CreateAuthor(ctx, &f.Author); err != nil {
			return err
		}
		f.Borrower = domain.Borrower{Username: "alice", PasswordHash: "h", Salt: "s", RegistrationDate: base}
		if err := tx.CreateBorrower(ctx, &f.Borrower); err != nil {
			return err
		}
		f.Other = domain.Borrower{Username: "bob", PasswordHash: "h", Salt: "s", RegistrationDate: base}
		if err := tx.CreateBorrower(ctx, &f.Other); err != nil {
			return err
		}
		f.Book = domain.Book{
			ISBN:      "9780261102217",
			Title:     "The Hobbit",
			Category:  domain.CategoryFantasy,
			AuthorID:  f.Author.ID,
			CreatedAt: base,
			UpdatedAt: base,
		}
		return tx.CreateBook(ctx, &f.Book)
	})
	require.NoError(t, err)
	return f
}

// Run executes the shared checks against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTripBook", func(t *testing.T) { testRoundTripBook(t, newStore(t)) })
	t.Run("MissingRows", func(t *testing.T) { testMissingRows(t, newStore(t)) })
	t.Run("UniqueConstraints", func(t *testing.T) { testUniqueConstraints(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("TransactionFilters", func(t *testing.T) { testTransactionFilters(t, newStore(t)) })
	t.Run("ReservationFilters", func(t *testing.T) { testReservationFilters(t, newStore(t)) })
	t.Run("Reviews", func(t *testing.T) { testReviews(t, newStore(t)) })
	t.Run("NotificationDedupe", func(t *testing.T) { testNotificationDedupe(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("Reports", func(t *testing.T) { testReports(t, newStore(t)) })
}

func within(t *testing.T, s store.Store, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), fn))
}

func testRoundTripBook(t *testing.T, s store.Store) {
	f := Seed(t, s)
	pub := time.Date(1937, 9, 21, 0, 0, 0, 0, time.UTC)

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBook(ctx, f.Book.ID)
		require.NoError(t, err)
		assert.Nil(t, b.BorrowedBy)
		assert.Nil(t, b.ReservedBy)

		b.BorrowedBy = &f.Borrower.ID
		b.ReservedBy = &f.Other.ID
		b.PublicationDate = &pub
		b.AverageRating = 4.5
		return tx.UpdateBook(ctx, b)
	})

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBook(ctx, f.Book.ID)
		require.NoError(t, err)
		assert.True(t, b.IsBorrowedBy(f.Borrower.ID))
		assert.True(t, b.IsReservedBy(f.Other.ID))
		assert.Equal(t, domain.CategoryFantasy, b.Category)
		assert.InDelta(t, 4.5, b.AverageRating, 1e-9)
		require.NotNil(t, b.PublicationDate)
		assert.True(t, pub.Equal(*b.PublicationDate))

		books, err := tx.ListBooks(ctx, store.BookFilter{AuthorID: f.Author.ID})
		require.NoError(t, err)
		assert.Len(t, books, 1)

		books, err = tx.ListBooks(ctx, store.BookFilter{AuthorID: f.Author.ID + 100})
		require.NoError(t, err)
		assert.Empty(t, books)

		for _, q := range []string{"hobb", "HOBBIT", "9780261"} {
			books, err = tx.ListBooks(ctx, store.BookFilter{Query: q})
			require.NoError(t, err)
			assert.Len(t, books, 1, q)
		}
		books, err = tx.ListBooks(ctx, store.BookFilter{Query: "silmarillion"})
		require.NoError(t, err)
		assert.Empty(t, books)

		books, err = tx.ListBooks(ctx, store.BookFilter{Category: domain.CategoryMystery})
		require.NoError(t, err)
		assert.Empty(t, books)
		return nil
	})
}

func testMissingRows(t *testing.T, s store.Store) {
	within(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetBook(ctx, 404)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.LockBorrower(ctx, 404)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetBorrowerByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, tx.DeleteReservation(ctx, 404), store.ErrNotFound)
		assert.ErrorIs(t, tx.MarkNotificationRead(ctx, 404), store.ErrNotFound)
		return nil
	})
}

func testUniqueConstraints(t *testing.T, s store.Store) {
	f := Seed(t, s)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateBorrower(ctx, &domain.Borrower{Username: f.Borrower.Username, PasswordHash: "h", Salt: "s", RegistrationDate: base})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateBook(ctx, &domain.Book{
			ISBN: f.Book.ISBN, Title: "Copy", Category: domain.CategoryFiction,
			AuthorID: f.Author.ID, CreatedAt: base, UpdatedAt: base,
		})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testRollback(t *testing.T, s store.Store) {
	f := Seed(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBook(ctx, f.Book.ID)
		if err != nil {
			return err
		}
		b.BorrowedBy = &f.Borrower.ID
		if err := tx.UpdateBook(ctx, b); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBook(ctx, f.Book.ID)
		require.NoError(t, err)
		assert.Nil(t, b.BorrowedBy)
		return nil
	})
}

func testTransactionFilters(t *testing.T, s store.Store) {
	f := Seed(t, s)
	returnedAt := base.Add(48 * time.Hour)

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		active := &domain.BorrowingTransaction{BorrowerID: f.Borrower.ID, BookID: f.Book.ID, BorrowedDate: base, DueDate: base.Add(domain.LoanPeriod)}
		require.NoError(t, tx.CreateTransaction(ctx, active))
		closed := &domain.BorrowingTransaction{
			BorrowerID: f.Borrower.ID, BookID: f.Book.ID,
			BorrowedDate: base.Add(-40 * 24 * time.Hour), DueDate: base.Add(-10 * 24 * time.Hour),
		}
		require.NoError(t, tx.CreateTransaction(ctx, closed))
		closed.IsReturned = true
		closed.ReturnedDate = &returnedAt
		return tx.UpdateTransaction(ctx, closed)
	})

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.CountTransactions(ctx, store.TransactionFilter{BorrowerID: f.Borrower.ID, Status: store.LoanActive})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		returned, err := tx.ListTransactions(ctx, store.TransactionFilter{BorrowerID: f.Borrower.ID, Status: store.LoanReturned})
		require.NoError(t, err)
		require.Len(t, returned, 1)
		assert.True(t, returned[0].IsReturned)
		require.NotNil(t, returned[0].ReturnedDate)
		assert.True(t, returnedAt.Equal(*returned[0].ReturnedDate))

		due, err := tx.ListTransactions(ctx, store.TransactionFilter{
			Status:        store.LoanActive,
			DueAfter:      base,
			DueOnOrBefore: base.Add(domain.LoanPeriod),
		})
		require.NoError(t, err)
		assert.Len(t, due, 1)

		overdue, err := tx.ListTransactions(ctx, store.TransactionFilter{Status: store.LoanActive, DueOnOrBefore: base})
		require.NoError(t, err)
		assert.Empty(t, overdue)

		all, err := tx.ListTransactions(ctx, store.TransactionFilter{BookID: f.Book.ID})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		since, err := tx.ListTransactions(ctx, store.TransactionFilter{BorrowedSince: base})
		require.NoError(t, err)
		assert.Len(t, since, 1)
		return nil
	})
}

func testReservationFilters(t *testing.T, s store.Store) {
	f := Seed(t, s)
	expires := base.Add(domain.LoanPeriod + domain.ReservationGrace)

	var r domain.Reservation
	within(t, s, func(ctx context.Context, tx store.Tx) error {
		r = domain.Reservation{BorrowerID: f.Other.ID, BookID: f.Book.ID, ExpirationDate: expires, CreatedAt: base}
		return tx.CreateReservation(ctx, &r)
	})

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, expires.Equal(got.ExpirationDate))

		expired, err := tx.ListReservations(ctx, store.ReservationFilter{ExpiredBefore: expires})
		require.NoError(t, err)
		assert.Empty(t, expired)

		expired, err = tx.ListReservations(ctx, store.ReservationFilter{ExpiredBefore: expires.Add(time.Second)})
		require.NoError(t, err)
		assert.Len(t, expired, 1)

		available, err := tx.ListReservations(ctx, store.ReservationFilter{BookAvailable: true, ExpiresAfter: base})
		require.NoError(t, err)
		assert.Len(t, available, 1)

		b, err := tx.LockBook(ctx, f.Book.ID)
		require.NoError(t, err)
		b.BorrowedBy = &f.Borrower.ID
		require.NoError(t, tx.UpdateBook(ctx, b))

		available, err = tx.ListReservations(ctx, store.ReservationFilter{BookAvailable: true})
		require.NoError(t, err)
		assert.Empty(t, available)

		mine, err := tx.ListReservations(ctx, store.ReservationFilter{BorrowerID: f.Other.ID})
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		require.NoError(t, tx.DeleteReservation(ctx, r.ID))
		_, err = tx.GetReservation(ctx, r.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testReviews(t *testing.T, s store.Store) {
	f := Seed(t, s)

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		avg, err := tx.AverageRating(ctx, f.Book.ID)
		require.NoError(t, err)
		assert.Zero(t, avg)

		for i, b := range []domain.Borrower{f.Borrower, f.Other} {
			r := &domain.Review{BorrowerID: b.ID, BookID: f.Book.ID, Rating: 4 + i, CreatedAt: base, UpdatedAt: base}
			require.NoError(t, tx.CreateReview(ctx, r))
		}

		avg, err = tx.AverageRating(ctx, f.Book.ID)
		require.NoError(t, err)
		assert.InDelta(t, 4.5, avg, 1e-9)
		return nil
	})

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateReview(ctx, &domain.Review{BorrowerID: f.Borrower.ID, BookID: f.Book.ID, Rating: 1, CreatedAt: base, UpdatedAt: base})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		reviews, err := tx.ListReviews(ctx, store.ReviewFilter{BorrowerID: f.Borrower.ID})
		require.NoError(t, err)
		require.Len(t, reviews, 1)

		r := reviews[0]
		r.Rating = 2
		r.Message = "changed my mind"
		require.NoError(t, tx.UpdateReview(ctx, &r))

		avg, err := tx.AverageRating(ctx, f.Book.ID)
		require.NoError(t, err)
		assert.InDelta(t, 3.5, avg, 1e-9)

		require.NoError(t, tx.DeleteReview(ctx, r.ID))
		left, err := tx.ListReviews(ctx, store.ReviewFilter{BookID: f.Book.ID})
		require.NoError(t, err)
		assert.Len(t, left, 1)
		return nil
	})
}

func testNotificationDedupe(t *testing.T, s store.Store) {
	f := Seed(t, s)
	key := "due_soon:transaction:1:2026-03-01"

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		first := &domain.Notification{UserID: f.Borrower.ID, Kind: "due_soon", Message: "m", DedupeKey: &key, CreatedAt: base}
		created, err := tx.CreateNotification(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, first.ID)

		again := &domain.Notification{UserID: f.Borrower.ID, Kind: "due_soon", Message: "m", DedupeKey: &key, CreatedAt: base}
		created, err = tx.CreateNotification(ctx, again)
		require.NoError(t, err)
		assert.False(t, created)

		for i := 0; i < 2; i++ {
			created, err = tx.CreateNotification(ctx, &domain.Notification{UserID: f.Borrower.ID, Kind: "due_date", Message: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
			require.NoError(t, err)
			assert.True(t, created)
		}

		list, err := tx.ListNotifications(ctx, f.Borrower.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.True(t, list[0].CreatedAt.After(list[2].CreatedAt) || list[0].ID > list[2].ID)

		require.NoError(t, tx.MarkNotificationRead(ctx, first.ID))
		got, err := tx.GetNotification(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)

		other, err := tx.ListNotifications(ctx, f.Other.ID)
		require.NoError(t, err)
		assert.Empty(t, other)
		return nil
	})
}

func testEvents(t *testing.T, s store.Store) {
	f := Seed(t, s)

	within(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, typ := range []string{domain.EventBookBorrowed, domain.EventBookReturned} {
			e, err := domain.NewBookEvent(f.Book.ID, typ, map[string]int64{"borrower_id": f.Borrower.ID}, base)
			require.NoError(t, err)
			require.NoError(t, tx.AppendEvent(ctx, e))
			assert.NotZero(t, e.ID)
		}

		events, err := tx.ListEvents(ctx, store.EventFilter{AggregateID: f.Book.ID})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventBookBorrowed, events[0].EventType)
		assert.JSONEq(t, `{"borrower_id":1}`, events[0].EventData)

		returned, err := tx.ListEvents(ctx, store.EventFilter{EventType: domain.EventBookReturned})
		require.NoError(t, err)
		assert.Len(t, returned, 1)
		return nil
	})
}

func testReports(t *testing.T, s store.Store) {
	within(t, s, func(ctx context.Context, tx store.Tx) error {
		r := &domain.Report{ReportType: domain.ReportOverdue, Status: domain.ReportStatusPending, GeneratedBy: "cli", CreatedAt: base}
		require.NoError(t, tx.CreateReport(ctx, r))

		done := base.Add(time.Minute)
		r.Status = domain.ReportStatusCompleted
		r.FilePath = "/tmp/overdue.csv"
		r.CompletedAt = &done
		require.NoError(t, tx.UpdateReport(ctx, r))

		got, err := tx.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, done.Equal(*got.CompletedAt))

		list, err := tx.ListReports(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	})
}
