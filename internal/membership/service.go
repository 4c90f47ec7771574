// internal/membership/service.go

// Package membership registers authors and borrowers, authenticates them
// and manages their profiles.
package membership

import (
	"context"

	"libraryms/internal/domain"
)

// Service defines the interface for the membership service.
type Service interface {
	SignUp(ctx context.Context, req SignUp) (domain.Principal, error)
	// Authenticate checks a username and password against authors first, then borrowers.
	Authenticate(ctx context.Context, username, password string) (domain.Principal, error)
	GetAuthor(ctx context.Context, id int64) (*domain.Author, error)
	UpdateAuthor(ctx context.Context, p domain.Principal, id int64, patch AuthorPatch) (*domain.Author, error)
	GetBorrower(ctx context.Context, id int64) (*domain.Borrower, error)
	UpdateBorrower(ctx context.Context, p domain.Principal, id int64, patch BorrowerPatch) (*domain.Borrower, error)
}
