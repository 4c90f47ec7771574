package review

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
)

const (
	minRating = 1
	maxRating = 5

	failureReasonBorrowersOnly  = "Only borrowers can write reviews."
	failureReasonNotBorrowed    = "You can only review books that you have borrowed."
	failureReasonAlreadyWritten = "You have already reviewed this book."
	failureReasonRatingRange    = "Ensure rating is between 1 and 5."
	failureReasonNotOwner       = "You can only change your own reviews."
)

type service struct {
	store store.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a new review service instance.
func NewService(st store.Store, log logrus.FieldLogger) Service {
	return &service{store: st, log: log.WithField("component", "review"), now: time.Now}
}

func validRating(r int) bool { return r >= minRating && r <= maxRating }

// Create records p's review of a book they have borrowed at least once.
func (s *service) Create(ctx context.Context, p domain.Principal, d Draft) (*domain.Review, error) {
	if !p.IsBorrower() {
		return nil, apperr.PermissionDenied(failureReasonBorrowersOnly)
	}
	if !validRating(d.Rating) {
		return nil, apperr.Validation(failureReasonRatingRange)
	}

	var created *domain.Review
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetBook(ctx, d.BookID); err != nil {
			return notFoundAs(err, "Book")
		}
		borrowed, err := tx.CountTransactions(ctx, store.TransactionFilter{BorrowerID: p.ID, BookID: d.BookID})
		if err != nil {
			return err
		}
		if borrowed == 0 {
			return apperr.Validation(failureReasonNotBorrowed)
		}

		now := s.now().UTC()
		created = &domain.Review{
			BorrowerID: p.ID,
			BookID:     d.BookID,
			Message:    d.Message,
			Rating:     d.Rating,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateReview(ctx, created); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Validation(failureReasonAlreadyWritten)
			}
			return err
		}
		_, err = RecomputeAverageRating(ctx, tx, d.BookID, now)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("create review", err)
	}

	s.log.WithFields(logrus.Fields{"review_id": created.ID, "book_id": created.BookID}).Info("review created")
	return created, nil
}

// Update changes p's own review.
func (s *service) Update(ctx context.Context, p domain.Principal, id int64, patch Patch) (*domain.Review, error) {
	if patch.Rating != nil && !validRating(*patch.Rating) {
		return nil, apperr.Validation(failureReasonRatingRange)
	}

	var updated *domain.Review
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := s.owned(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if patch.Message != nil {
			r.Message = *patch.Message
		}
		if patch.Rating != nil {
			r.Rating = *patch.Rating
		}
		now := s.now().UTC()
		r.UpdatedAt = now
		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}
		updated = r
		_, err = RecomputeAverageRating(ctx, tx, r.BookID, now)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("update review", err)
	}
	return updated, nil
}

// Delete removes p's own review.
func (s *service) Delete(ctx context.Context, p domain.Principal, id int64) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := s.owned(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteReview(ctx, r.ID); err != nil {
			return err
		}
		_, err = RecomputeAverageRating(ctx, tx, r.BookID, s.now().UTC())
		return err
	})
	return apperr.Wrap("delete review", err)
}

// Get returns one review.
func (s *service) Get(ctx context.Context, id int64) (*domain.Review, error) {
	var r *domain.Review
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = tx.GetReview(ctx, id)
		return notFoundAs(err, "Review")
	})
	if err != nil {
		return nil, apperr.Wrap("get review", err)
	}
	return r, nil
}

// List returns every review.
func (s *service) List(ctx context.Context) ([]domain.Review, error) {
	return s.list(ctx, store.ReviewFilter{})
}

// ListByBook returns the reviews of one book.
func (s *service) ListByBook(ctx context.Context, bookID int64) ([]domain.Review, error) {
	return s.list(ctx, store.ReviewFilter{BookID: bookID})
}

func (s *service) list(ctx context.Context, f store.ReviewFilter) ([]domain.Review, error) {
	var out []domain.Review
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListReviews(ctx, f)
		return err
	})
	if err != nil {
		return nil, apperr.Store("list reviews", err)
	}
	return out, nil
}

func (s *service) owned(ctx context.Context, tx store.Tx, p domain.Principal, id int64) (*domain.Review, error) {
	r, err := tx.GetReview(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Review")
	}
	if !p.IsBorrower() || r.BorrowerID != p.ID {
		return nil, apperr.PermissionDenied(failureReasonNotOwner)
	}
	return r, nil
}

func notFoundAs(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
