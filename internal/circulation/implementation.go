// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/notification"
	"libraryms/internal/store"
)

// service implements the Service interface.
type service struct {
	store    store.Store
	sink     *notification.Sink
	log      logrus.FieldLogger
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customises the service built by NewService.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *service) { s.recorder = r }
}

// NewService creates a new circulation service instance.
func NewService(st store.Store, sink *notification.Sink, log logrus.FieldLogger, opts ...Option) Service {
	s := &service{
		store:  st,
		sink:   sink,
		log:    log.WithField("component", "circulation"),
		tracer: otel.Tracer("libraryms/circulation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Borrow lends bookID to the principal. A reservation the principal holds on
// the book is consumed.
func (s *service) Borrow(ctx context.Context, p domain.Principal, bookID int64) (*domain.BorrowingTransaction, error) {
	ctx, span := s.start(ctx, opBorrow, p, attribute.Int64("book.id", bookID))
	defer span.End()

	if !p.IsBorrower() {
		return nil, s.finish(span, opBorrow, apperr.PermissionDenied(failureReasonBorrowersOnly))
	}

	var loan *domain.BorrowingTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		book, err := lockBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if _, err := tx.LockBorrower(ctx, p.ID); err != nil {
			return notFoundAs(err, "Borrower")
		}
		active, err := tx.CountTransactions(ctx, store.TransactionFilter{BorrowerID: p.ID, Status: store.LoanActive})
		if err != nil {
			return err
		}
		if err := decideBorrow(book, p.ID, active); err != nil {
			return err
		}

		now := s.now().UTC()
		var consumed int64
		if book.IsReservedBy(p.ID) {
			held, err := tx.ListReservations(ctx, store.ReservationFilter{BorrowerID: p.ID, BookID: book.ID})
			if err != nil {
				return err
			}
			for _, r := range held {
				if err := tx.DeleteReservation(ctx, r.ID); err != nil {
					return err
				}
				consumed = r.ID
			}
			book.ReservedBy = nil
		}

		loan = &domain.BorrowingTransaction{
			BorrowerID:   p.ID,
			BookID:       book.ID,
			BorrowedDate: now,
			DueDate:      now.Add(domain.LoanPeriod),
		}
		if err := tx.CreateTransaction(ctx, loan); err != nil {
			return err
		}

		borrowerID := p.ID
		book.BorrowedBy = &borrowerID
		book.UpdatedAt = now
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}

		if err := appendEvent(ctx, tx, book.ID, domain.EventBookBorrowed, domain.BookBorrowedData{
			TransactionID:         loan.ID,
			BorrowerID:            p.ID,
			DueDate:               loan.DueDate,
			ConsumedReservationID: consumed,
		}, now); err != nil {
			return err
		}
		_, err = s.sink.Create(ctx, tx, notification.DueDate(p.ID, book.Title, loan.DueDate))
		return err
	})
	if err != nil {
		return nil, s.finish(span, opBorrow, apperr.Wrap("borrow book", err))
	}

	span.SetAttributes(attribute.Int64("transaction.id", loan.ID))
	s.finish(span, opBorrow, nil)
	s.log.WithFields(logrus.Fields{
		"book_id":        bookID,
		"borrower_id":    p.ID,
		"transaction_id": loan.ID,
	}).Info("book borrowed")
	return loan, nil
}

// ReturnBook closes the principal's loan transactionID and frees the book.
// A waiting reserver is told the book is available.
func (s *service) ReturnBook(ctx context.Context, p domain.Principal, transactionID int64) (*domain.BorrowingTransaction, error) {
	ctx, span := s.start(ctx, opReturn, p, attribute.Int64("transaction.id", transactionID))
	defer span.End()

	if !p.IsBorrower() {
		return nil, s.finish(span, opReturn, apperr.PermissionDenied(failureReasonBorrowersOnly))
	}

	var loan *domain.BorrowingTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		first, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return notFoundAs(err, "Borrowing transaction")
		}
		book, err := lockBook(ctx, tx, first.BookID)
		if err != nil {
			return err
		}
		// Re-read under the book lock so a concurrent return is observed.
		loan, err = tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return notFoundAs(err, "Borrowing transaction")
		}
		if err := decideReturn(loan, p.ID); err != nil {
			return err
		}

		now := s.now().UTC()
		loan.IsReturned = true
		loan.ReturnedDate = &now
		if err := tx.UpdateTransaction(ctx, loan); err != nil {
			return err
		}

		if book.IsBorrowedBy(p.ID) {
			book.BorrowedBy = nil
		}
		book.UpdatedAt = now
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}

		if err := appendEvent(ctx, tx, book.ID, domain.EventBookReturned, domain.BookReturnedData{
			TransactionID: loan.ID,
			BorrowerID:    p.ID,
			ReturnedDate:  now,
		}, now); err != nil {
			return err
		}

		if book.ReservedBy == nil || book.BorrowedBy != nil {
			return nil
		}
		waiting, err := tx.ListReservations(ctx, store.ReservationFilter{
			BorrowerID:   *book.ReservedBy,
			BookID:       book.ID,
			ExpiresAfter: now,
		})
		if err != nil {
			return err
		}
		for _, r := range waiting {
			if _, err := s.sink.Create(ctx, tx, notification.ReservationAvailable(r, book.Title, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(span, opReturn, apperr.Wrap("return book", err))
	}

	s.finish(span, opReturn, nil)
	s.log.WithFields(logrus.Fields{
		"book_id":        loan.BookID,
		"borrower_id":    p.ID,
		"transaction_id": loan.ID,
	}).Info("book returned")
	return loan, nil
}

// ReserveBook places the principal in line for a borrowed book. The
// reservation expires ReservationGrace after the current loan's due date.
func (s *service) ReserveBook(ctx context.Context, p domain.Principal, bookID int64) (*domain.Reservation, error) {
	ctx, span := s.start(ctx, opReserve, p, attribute.Int64("book.id", bookID))
	defer span.End()

	if !p.IsBorrower() {
		return nil, s.finish(span, opReserve, apperr.PermissionDenied(failureReasonBorrowersOnly))
	}

	var reservation *domain.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		book, err := lockBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if _, err := tx.GetBorrower(ctx, p.ID); err != nil {
			return notFoundAs(err, "Borrower")
		}

		var activeLoan *domain.BorrowingTransaction
		if book.BorrowedBy != nil {
			loans, err := tx.ListTransactions(ctx, store.TransactionFilter{BookID: book.ID, Status: store.LoanActive})
			if err != nil {
				return err
			}
			if len(loans) > 0 {
				activeLoan = &loans[0]
			}
		}
		if err := decideReserve(book, p.ID, activeLoan); err != nil {
			return err
		}

		now := s.now().UTC()
		reservation = &domain.Reservation{
			BorrowerID:     p.ID,
			BookID:         book.ID,
			ExpirationDate: activeLoan.DueDate.Add(domain.ReservationGrace),
			CreatedAt:      now,
		}
		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return err
		}

		borrowerID := p.ID
		book.ReservedBy = &borrowerID
		book.UpdatedAt = now
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}

		return appendEvent(ctx, tx, book.ID, domain.EventBookReserved, domain.BookReservedData{
			ReservationID:  reservation.ID,
			BorrowerID:     p.ID,
			ExpirationDate: reservation.ExpirationDate,
		}, now)
	})
	if err != nil {
		return nil, s.finish(span, opReserve, apperr.Wrap("reserve book", err))
	}

	s.finish(span, opReserve, nil)
	s.log.WithFields(logrus.Fields{
		"book_id":        bookID,
		"borrower_id":    p.ID,
		"reservation_id": reservation.ID,
	}).Info("book reserved")
	return reservation, nil
}

// CancelReservation deletes the principal's reservation and releases the book.
func (s *service) CancelReservation(ctx context.Context, p domain.Principal, reservationID int64) error {
	ctx, span := s.start(ctx, opCancel, p, attribute.Int64("reservation.id", reservationID))
	defer span.End()

	if !p.IsBorrower() {
		return s.finish(span, opCancel, apperr.PermissionDenied(failureReasonBorrowersOnly))
	}

	var bookID int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return notFoundAs(err, "Reservation")
		}
		if err := decideCancel(r, p.ID); err != nil {
			return err
		}
		bookID = r.BookID

		book, err := lockBook(ctx, tx, r.BookID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if book.IsReservedBy(p.ID) {
			book.ReservedBy = nil
			book.UpdatedAt = now
			if err := tx.UpdateBook(ctx, book); err != nil {
				return err
			}
		}
		if err := tx.DeleteReservation(ctx, r.ID); err != nil {
			return notFoundAs(err, "Reservation")
		}

		return appendEvent(ctx, tx, book.ID, domain.EventReservationCancelled, domain.ReservationEndedData{
			ReservationID: r.ID,
			BorrowerID:    p.ID,
		}, now)
	})
	if err != nil {
		return s.finish(span, opCancel, apperr.Wrap("cancel reservation", err))
	}

	s.finish(span, opCancel, nil)
	s.log.WithFields(logrus.Fields{
		"book_id":        bookID,
		"borrower_id":    p.ID,
		"reservation_id": reservationID,
	}).Info("reservation cancelled")
	return nil
}

// ListBorrowings returns the principal's transactions narrowed by filter.
func (s *service) ListBorrowings(ctx context.Context, p domain.Principal, filter BorrowingFilter) ([]domain.BorrowingTransaction, error) {
	if !p.IsBorrower() {
		return nil, apperr.PermissionDenied(failureReasonBorrowersOnly)
	}

	f := store.TransactionFilter{BorrowerID: p.ID}
	switch filter {
	case FilterPrevious:
		f.Status = store.LoanReturned
	case FilterCurrent:
		f.Status = store.LoanActive
	case FilterDueDate:
		f.Status = store.LoanActive
		f.DueOnOrBefore = s.now().UTC().Add(DueDateWindow)
	}

	var out []domain.BorrowingTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, f)
		return err
	})
	if err != nil {
		return nil, apperr.Store("list borrowings", err)
	}
	return out, nil
}

// ListReservations returns the principal's own reservations.
func (s *service) ListReservations(ctx context.Context, p domain.Principal) ([]domain.Reservation, error) {
	if !p.IsBorrower() {
		return nil, apperr.PermissionDenied(failureReasonBorrowersOnly)
	}

	var out []domain.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListReservations(ctx, store.ReservationFilter{BorrowerID: p.ID})
		return err
	})
	if err != nil {
		return nil, apperr.Store("list reservations", err)
	}
	return out, nil
}

func (s *service) start(ctx context.Context, op string, p domain.Principal, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("principal.id", p.ID), attribute.String("principal.role", string(p.Role)))
	return s.tracer.Start(ctx, "circulation."+op, trace.WithAttributes(attrs...))
}

// finish records err on span and the recorder and returns it unchanged.
func (s *service) finish(span trace.Span, op string, err error) error {
	outcome := "ok"
	if err != nil {
		kind := apperr.KindOf(err)
		outcome = kind.String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry := s.log.WithField("operation", op).WithError(err)
		if kind == apperr.KindStore || kind == apperr.KindUnknown {
			entry.Error("lifecycle operation failed")
		} else {
			entry.Debug("lifecycle operation rejected")
		}
	}
	if s.recorder != nil {
		s.recorder.LifecycleOperation(op, outcome)
	}
	return err
}

func lockBook(ctx context.Context, tx store.Tx, id int64) (*domain.Book, error) {
	book, err := tx.LockBook(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Book")
	}
	return book, nil
}

// notFoundAs turns store.ErrNotFound into a NotFound error naming what.
func notFoundAs(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

func appendEvent(ctx context.Context, tx store.Tx, bookID int64, eventType string, data interface{}, at time.Time) error {
	e, err := domain.NewBookEvent(bookID, eventType, data, at)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, e)
}
