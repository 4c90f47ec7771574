// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
)

// service implements the Service interface.
type service struct {
	store store.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(st store.Store, log logrus.FieldLogger) Service {
	return &service{store: st, log: log.WithField("component", "catalog"), now: time.Now}
}

// AddBook creates a book owned by the calling author.
func (s *service) AddBook(ctx context.Context, p domain.Principal, d Draft) (*domain.Book, error) {
	if !p.IsAuthor() {
		return nil, apperr.PermissionDenied(failureReasonAuthorsOnly)
	}
	now := s.now().UTC()
	book := &domain.Book{
		ISBN:            d.ISBN,
		Title:           d.Title,
		Description:     d.Description,
		Category:        d.Category,
		PublicationDate: d.PublicationDate,
		AuthorID:        p.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateBook(book); err != nil {
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateBook(ctx, book)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Validation(failureReasonDuplicateISBN)
	}
	if err != nil {
		return nil, apperr.Store("add book", err)
	}

	s.log.WithFields(logrus.Fields{"book_id": book.ID, "author_id": p.ID}).Info("book added")
	return book, nil
}

// GetBook returns a book visible to p.
func (s *service) GetBook(ctx context.Context, p domain.Principal, id int64) (*domain.Book, error) {
	var book *domain.Book
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		book, err = s.visible(ctx, tx, p, id)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("get book", err)
	}
	return book, nil
}

// UpdateBook changes the editable fields of an author's own book.
func (s *service) UpdateBook(ctx context.Context, p domain.Principal, id int64, patch Patch, partial bool) (*domain.Book, error) {
	if !p.IsAuthor() {
		return nil, apperr.PermissionDenied(failureReasonNotOwner)
	}
	if !partial && (patch.ISBN == nil || patch.Title == nil || patch.Category == nil) {
		return nil, apperr.Validation("isbn, title and category are required.")
	}

	var book *domain.Book
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		book, err = s.visible(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if patch.touchesLifecycle() {
			return apperr.PermissionDenied(failureReasonLifecycle)
		}

		apply(book, patch)
		if err := validateBook(book); err != nil {
			return err
		}
		book.UpdatedAt = s.now().UTC()
		if err := tx.UpdateBook(ctx, book); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Validation(failureReasonDuplicateISBN)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("update book", err)
	}

	s.log.WithField("book_id", id).Info("book updated")
	return book, nil
}

func apply(b *domain.Book, p Patch) {
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.PublicationDate != nil {
		b.PublicationDate = p.PublicationDate
	}
}

// RemoveBook always refuses: books stay in the catalog for their history.
func (s *service) RemoveBook(ctx context.Context, p domain.Principal, id int64) error {
	if _, err := s.GetBook(ctx, p, id); err != nil {
		return err
	}
	return apperr.PermissionDenied(failureReasonNoDelete)
}

// ListBooks returns the books visible to p that match q.
func (s *service) ListBooks(ctx context.Context, p domain.Principal, q Query) ([]domain.Book, error) {
	f := store.BookFilter{Query: q.Search, Category: q.Category}
	if p.IsAuthor() {
		f.AuthorID = p.ID
	}

	var books []domain.Book
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		books, err = tx.ListBooks(ctx, f)
		return err
	})
	if err != nil {
		return nil, apperr.Store("list books", err)
	}
	return books, nil
}

// visible loads a book; authors only see their own.
func (s *service) visible(ctx context.Context, tx store.Tx, p domain.Principal, id int64) (*domain.Book, error) {
	book, err := tx.GetBook(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.IsAuthor() && book.AuthorID != p.ID) {
		return nil, apperr.NotFound("Book")
	}
	return book, err
}
