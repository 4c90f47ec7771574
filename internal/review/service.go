// Package review manages book reviews and keeps each book's average rating
// in step with them.
package review

import (
	"context"

	"libraryms/internal/domain"
)

// Draft is the content of a new review.
type Draft struct {
	BookID  int64  `json:"book"`
	Message string `json:"review_message"`
	Rating  int    `json:"rating"`
}

// Patch changes an existing review. Nil fields are left alone.
type Patch struct {
	Message *string `json:"review_message"`
	Rating  *int    `json:"rating"`
}

// Service defines the review operations.
type Service interface {
	Create(ctx context.Context, p domain.Principal, d Draft) (*domain.Review, error)
	Update(ctx context.Context, p domain.Principal, id int64, patch Patch) (*domain.Review, error)
	Delete(ctx context.Context, p domain.Principal, id int64) error
	Get(ctx context.Context, id int64) (*domain.Review, error)
	List(ctx context.Context) ([]domain.Review, error)
	ListByBook(ctx context.Context, bookID int64) ([]domain.Review, error)
}
