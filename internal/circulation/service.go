// internal/circulation/service.go
package circulation

import (
	"context"

	"libraryms/internal/domain"
)

// Service is the lifecycle engine. Every operation requires a borrower principal.
type Service interface {
	Borrow(ctx context.Context, p domain.Principal, bookID int64) (*domain.BorrowingTransaction, error)
	ReturnBook(ctx context.Context, p domain.Principal, transactionID int64) (*domain.BorrowingTransaction, error)
	ReserveBook(ctx context.Context, p domain.Principal, bookID int64) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, p domain.Principal, reservationID int64) error
	ListBorrowings(ctx context.Context, p domain.Principal, filter BorrowingFilter) ([]domain.BorrowingTransaction, error)
	ListReservations(ctx context.Context, p domain.Principal) ([]domain.Reservation, error)
}
