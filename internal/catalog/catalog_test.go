package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
	"libraryms/internal/store/storetest"
	"libraryms/internal/store/testbackend"
)

type fixture struct {
	svc      Service
	seed     storetest.Fixture
	author   domain.Principal
	rival    domain.Principal
	borrower domain.Principal
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()
	seed := storetest.Seed(t, s)
	rival := domain.Author{Username: "pratchett", PasswordHash: "h", Salt: "s"}
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAuthor(ctx, &rival)
	}))
	logger, _ := test.NewNullLogger()
	return &fixture{
		svc:      NewService(s, logger),
		seed:     seed,
		author:   domain.Principal{Role: domain.RoleAuthor, ID: seed.Author.ID},
		rival:    domain.Principal{Role: domain.RoleAuthor, ID: rival.ID},
		borrower: domain.Principal{Role: domain.RoleBorrower, ID: seed.Borrower.ID},
	}
}

func TestAddBook(t *testing.T) {
	for _, b := range testbackend.All() {
		t.Run(b.Name, func(t *testing.T) {
			f := newFixture(t, b.Open(t))
			ctx := context.Background()

			book, err := f.svc.AddBook(ctx, f.rival, Draft{ISBN: "9780552166591", Title: "Guards! Guards!", Category: domain.CategoryFantasy})
			require.NoError(t, err)
			assert.Equal(t, f.rival.ID, book.AuthorID)
			assert.Nil(t, book.BorrowedBy)

			_, err = f.svc.AddBook(ctx, f.rival, Draft{ISBN: "9780552166591", Title: "Again", Category: domain.CategoryFantasy})
			assert.EqualError(t, err, failureReasonDuplicateISBN)

			_, err = f.svc.AddBook(ctx, f.borrower, Draft{ISBN: "1", Title: "x", Category: domain.CategoryFiction})
			assert.EqualError(t, err, failureReasonAuthorsOnly)
		})
	}
}

func TestAddBook_Validation(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	for name, d := range map[string]Draft{
		"missing isbn":     {Title: "x", Category: domain.CategoryFiction},
		"long isbn":        {ISBN: "97805521665910", Title: "x", Category: domain.CategoryFiction},
		"missing title":    {ISBN: "1", Category: domain.CategoryFiction},
		"unknown category": {ISBN: "1", Title: "x", Category: "poetry"},
	} {
		_, err := f.svc.AddBook(context.Background(), f.author, d)
		assert.True(t, apperr.Is(err, apperr.KindValidation), name)
	}
}

func TestListAndGet_Visibility(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	ctx := context.Background()
	_, err := f.svc.AddBook(ctx, f.rival, Draft{ISBN: "9780552166591", Title: "Guards! Guards!", Category: domain.CategoryFantasy})
	require.NoError(t, err)

	own, err := f.svc.ListBooks(ctx, f.author, Query{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, f.seed.Book.ID, own[0].ID)

	all, err := f.svc.ListBooks(ctx, f.borrower, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := f.svc.ListBooks(ctx, f.borrower, Query{Search: "guards"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Guards! Guards!", found[0].Title)

	_, err = f.svc.GetBook(ctx, f.rival, f.seed.Book.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	got, err := f.svc.GetBook(ctx, f.borrower, f.seed.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", got.Title)
}

func TestUpdateBook(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	ctx := context.Background()
	title := "The Hobbit, or There and Back Again"

	updated, err := f.svc.UpdateBook(ctx, f.author, f.seed.Book.ID, Patch{Title: &title}, true)
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, f.seed.Book.ISBN, updated.ISBN)

	_, err = f.svc.UpdateBook(ctx, f.author, f.seed.Book.ID, Patch{Title: &title}, false)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpdateBook(ctx, f.borrower, f.seed.Book.ID, Patch{Title: &title}, true)
	assert.EqualError(t, err, failureReasonNotOwner)

	_, err = f.svc.UpdateBook(ctx, f.rival, f.seed.Book.ID, Patch{Title: &title}, true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateBook_RejectsLifecycleFields(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	for _, body := range []string{
		`{"borrowed_by": 2}`,
		`{"reserved_by": null}`,
		`{"title": "x", "average_rating": 5}`,
	} {
		var patch Patch
		require.NoError(t, json.Unmarshal([]byte(body), &patch))
		_, err := f.svc.UpdateBook(context.Background(), f.author, f.seed.Book.ID, patch, true)
		assert.EqualError(t, err, failureReasonLifecycle, body)
	}

	book, err := f.svc.GetBook(context.Background(), f.author, f.seed.Book.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", book.Title)
}

func TestRemoveBook_Forbidden(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	ctx := context.Background()

	err := f.svc.RemoveBook(ctx, f.author, f.seed.Book.ID)
	assert.EqualError(t, err, failureReasonNoDelete)
	assert.True(t, apperr.Is(f.svc.RemoveBook(ctx, f.author, 404), apperr.KindNotFound))

	_, err = f.svc.GetBook(ctx, f.author, f.seed.Book.ID)
	assert.NoError(t, err)
}
