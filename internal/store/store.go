// Package store defines the transactional persistence boundary used by every
// library service. Implementations live in memstore and sqlstore.
package store

import (
	"context"
	"errors"
	"time"

	"libraryms/internal/domain"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned for transient serialization failures; WithinTx retries it.
	ErrConflict = errors.New("transaction conflict")
)

// TxFunc is the unit of work run by WithinTx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store opens transactions. fn either commits completely or leaves no trace.
type Store interface {
	WithinTx(ctx context.Context, fn TxFunc) error
	Close() error
}

// LoanStatus filters borrowing transactions by their returned flag.
type LoanStatus string

const (
	LoanAny      LoanStatus = ""
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// BookFilter selects books. Zero fields match everything.
type BookFilter struct {
	AuthorID int64
	// Query matches a case-insensitive substring of the title or the ISBN.
	Query string
	// Category selects one category.
	Category domain.Category
}

// TransactionFilter selects borrowing transactions. Zero fields match everything.
type TransactionFilter struct {
	BorrowerID    int64
	BookID        int64
	Status        LoanStatus
	DueOnOrBefore time.Time
	DueAfter      time.Time
	BorrowedSince time.Time
}

// ReservationFilter selects reservations. Zero fields match everything.
type ReservationFilter struct {
	BorrowerID    int64
	BookID        int64
	ExpiredBefore time.Time
	ExpiresAfter  time.Time
	// BookAvailable restricts to reservations whose book has no borrower.
	BookAvailable bool
}

// ReviewFilter selects reviews. Zero fields match everything.
type ReviewFilter struct {
	BookID     int64
	BorrowerID int64
}

// EventFilter selects lifecycle events. Zero fields match everything.
type EventFilter struct {
	AggregateID int64
	EventType   string
	Since       time.Time
}

// Tx is one open transaction. Get* return ErrNotFound for missing rows;
// Lock* additionally take a row lock where the backend supports it.
type Tx interface {
	CreateAuthor(ctx context.Context, a *domain.Author) error
	GetAuthor(ctx context.Context, id int64) (*domain.Author, error)
	GetAuthorByUsername(ctx context.Context, username string) (*domain.Author, error)
	UpdateAuthor(ctx context.Context, a *domain.Author) error

	CreateBorrower(ctx context.Context, b *domain.Borrower) error
	GetBorrower(ctx context.Context, id int64) (*domain.Borrower, error)
	GetBorrowerByUsername(ctx context.Context, username string) (*domain.Borrower, error)
	LockBorrower(ctx context.Context, id int64) (*domain.Borrower, error)
	UpdateBorrower(ctx context.Context, b *domain.Borrower) error

	CreateBook(ctx context.Context, b *domain.Book) error
	GetBook(ctx context.Context, id int64) (*domain.Book, error)
	LockBook(ctx context.Context, id int64) (*domain.Book, error)
	UpdateBook(ctx context.Context, b *domain.Book) error
	ListBooks(ctx context.Context, f BookFilter) ([]domain.Book, error)

	CreateTransaction(ctx context.Context, t *domain.BorrowingTransaction) error
	GetTransaction(ctx context.Context, id int64) (*domain.BorrowingTransaction, error)
	UpdateTransaction(ctx context.Context, t *domain.BorrowingTransaction) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]domain.BorrowingTransaction, error)
	CountTransactions(ctx context.Context, f TransactionFilter) (int, error)

	CreateReservation(ctx context.Context, r *domain.Reservation) error
	GetReservation(ctx context.Context, id int64) (*domain.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	ListReservations(ctx context.Context, f ReservationFilter) ([]domain.Reservation, error)

	CreateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id int64) (*domain.Review, error)
	UpdateReview(ctx context.Context, r *domain.Review) error
	DeleteReview(ctx context.Context, id int64) error
	ListReviews(ctx context.Context, f ReviewFilter) ([]domain.Review, error)
	// AverageRating returns the mean rating of bookID's reviews, or 0 when it has none.
	AverageRating(ctx context.Context, bookID int64) (float64, error)

	// CreateNotification inserts n. When n.DedupeKey is already present the
	// insert is skipped and created is false.
	CreateNotification(ctx context.Context, n *domain.Notification) (created bool, err error)
	GetNotification(ctx context.Context, id int64) (*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error)

	AppendEvent(ctx context.Context, e *domain.LifecycleEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]domain.LifecycleEvent, error)

	CreateReport(ctx context.Context, r *domain.Report) error
	GetReport(ctx context.Context, id int64) (*domain.Report, error)
	UpdateReport(ctx context.Context, r *domain.Report) error
	ListReports(ctx context.Context) ([]domain.Report, error)
}
