package review

import (
	"context"
	"time"

	"libraryms/internal/store"
)

// RecomputeAverageRating sets the book's average rating to the mean of all
// its reviews, or 0 when it has none. It must run in the transaction that
// changed the reviews.
func RecomputeAverageRating(ctx context.Context, tx store.Tx, bookID int64, now time.Time) (float64, error) {
	book, err := tx.LockBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	avg, err := tx.AverageRating(ctx, bookID)
	if err != nil {
		return 0, err
	}
	book.AverageRating = avg
	book.UpdatedAt = now
	if err := tx.UpdateBook(ctx, book); err != nil {
		return 0, err
	}
	return avg, nil
}
