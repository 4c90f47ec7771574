package review

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
	"libraryms/internal/store/storetest"
	"libraryms/internal/store/testbackend"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store store.Store
	svc   Service
	seed  storetest.Fixture
	book  domain.Book
	users []domain.Principal
}

// newFixture seeds a book and n borrowers who have each borrowed it once.
func newFixture(t *testing.T, s store.Store, n int) *fixture {
	t.Helper()
	seed := storetest.Seed(t, s)
	f := &fixture{store: s, seed: seed, book: seed.Book}

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < n; i++ {
			b := domain.Borrower{Username: "reader" + string(rune('a'+i)), PasswordHash: "h", Salt: "s", RegistrationDate: t0}
			if err := tx.CreateBorrower(ctx, &b); err != nil {
				return err
			}
			loan := domain.BorrowingTransaction{BorrowerID: b.ID, BookID: seed.Book.ID, BorrowedDate: t0, DueDate: t0.Add(domain.LoanPeriod)}
			if err := tx.CreateTransaction(ctx, &loan); err != nil {
				return err
			}
			f.users = append(f.users, domain.Principal{Role: domain.RoleBorrower, ID: b.ID, Username: b.Username})
		}
		return nil
	}))

	logger, _ := test.NewNullLogger()
	f.svc = NewService(s, logger)
	return f
}

func (f *fixture) averageRating(t *testing.T) float64 {
	t.Helper()
	var avg float64
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBook(ctx, f.book.ID)
		if err != nil {
			return err
		}
		avg = b.AverageRating
		return nil
	}))
	return avg
}

func TestAverageRating(t *testing.T) {
	for _, b := range testbackend.All() {
		t.Run(b.Name, func(t *testing.T) {
			f := newFixture(t, b.Open(t), 3)
			ctx := context.Background()
			assert.Zero(t, f.averageRating(t))

			var created []*domain.Review
			for i, rating := range []int{4, 5, 3} {
				r, err := f.svc.Create(ctx, f.users[i], Draft{BookID: f.book.ID, Rating: rating, Message: "ok"})
				require.NoError(t, err)
				created = append(created, r)
			}
			assert.InDelta(t, 4.0, f.averageRating(t), 1e-9)

			one := 1
			_, err := f.svc.Update(ctx, f.users[1], created[1].ID, Patch{Rating: &one})
			require.NoError(t, err)
			assert.InDelta(t, 8.0/3.0, f.averageRating(t), 1e-9)

			for i, r := range created {
				require.NoError(t, f.svc.Delete(ctx, f.users[i], r.ID))
			}
			assert.Zero(t, f.averageRating(t))
		})
	}
}

func TestCreate_Rules(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t), 1)
	ctx := context.Background()
	stranger := domain.Principal{Role: domain.RoleBorrower, ID: f.seed.Other.ID}
	author := domain.Principal{Role: domain.RoleAuthor, ID: f.seed.Author.ID}

	_, err := f.svc.Create(ctx, author, Draft{BookID: f.book.ID, Rating: 3})
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	for _, rating := range []int{0, 6} {
		_, err = f.svc.Create(ctx, f.users[0], Draft{BookID: f.book.ID, Rating: rating})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	}

	_, err = f.svc.Create(ctx, f.users[0], Draft{BookID: 404, Rating: 3})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Create(ctx, stranger, Draft{BookID: f.book.ID, Rating: 3})
	assert.EqualError(t, err, failureReasonNotBorrowed)

	_, err = f.svc.Create(ctx, f.users[0], Draft{BookID: f.book.ID, Rating: 3})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.users[0], Draft{BookID: f.book.ID, Rating: 5})
	assert.EqualError(t, err, failureReasonAlreadyWritten)

	assert.InDelta(t, 3.0, f.averageRating(t), 1e-9)
}

func TestUpdateDelete_OwnerOnly(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t), 2)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.users[0], Draft{BookID: f.book.ID, Rating: 4, Message: "good"})
	require.NoError(t, err)

	msg := "vandalised"
	_, err = f.svc.Update(ctx, f.users[1], r.ID, Patch{Message: &msg})
	assert.EqualError(t, err, failureReasonNotOwner)
	assert.EqualError(t, f.svc.Delete(ctx, f.users[1], r.ID), failureReasonNotOwner)

	bad := 9
	_, err = f.svc.Update(ctx, f.users[0], r.ID, Patch{Rating: &bad})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	updated, err := f.svc.Update(ctx, f.users[0], r.ID, Patch{Message: &msg})
	require.NoError(t, err)
	assert.Equal(t, msg, updated.Message)
	assert.Equal(t, 4, updated.Rating)

	assert.True(t, apperr.Is(f.svc.Delete(ctx, f.users[0], 404), apperr.KindNotFound))
}

func TestListByBook(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t), 2)
	ctx := context.Background()
	for _, u := range f.users {
		_, err := f.svc.Create(ctx, u, Draft{BookID: f.book.ID, Rating: 5})
		require.NoError(t, err)
	}

	byBook, err := f.svc.ListByBook(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Len(t, byBook, 2)

	none, err := f.svc.ListByBook(ctx, f.book.ID+1)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
