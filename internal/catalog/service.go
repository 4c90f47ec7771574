// internal/catalog/service.go

// Package catalog manages the books authors publish to the library.
package catalog

import (
	"context"

	"libraryms/internal/domain"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, p domain.Principal, d Draft) (*domain.Book, error)
	GetBook(ctx context.Context, p domain.Principal, id int64) (*domain.Book, error)
	// UpdateBook applies patch; with partial false every required field must be present.
	UpdateBook(ctx context.Context, p domain.Principal, id int64, patch Patch, partial bool) (*domain.Book, error)
	RemoveBook(ctx context.Context, p domain.Principal, id int64) error
	// ListBooks returns an author's own books, or every book for a borrower.
	ListBooks(ctx context.Context, p domain.Principal, q Query) ([]domain.Book, error)
}
