// internal/circulation/domain.go

// Package circulation implements the borrowing and reservation lifecycle of
// books: borrow, return, reserve and cancel, each as one store transaction.
package circulation

import (
	"time"

	"libraryms/internal/apperr"
)

// BorrowingFilter narrows a borrower's transaction listing.
type BorrowingFilter string

const (
	FilterAll      BorrowingFilter = ""
	FilterPrevious BorrowingFilter = "previous"
	FilterCurrent  BorrowingFilter = "current"
	FilterDueDate  BorrowingFilter = "due_date"
)

// DueDateWindow is how far ahead FilterDueDate looks.
const DueDateWindow = 7 * 24 * time.Hour

// ParseBorrowingFilter validates the "filter" query parameter.
func ParseBorrowingFilter(s string) (BorrowingFilter, error) {
	switch f := BorrowingFilter(s); f {
	case FilterAll, FilterPrevious, FilterCurrent, FilterDueDate:
		return f, nil
	}
	return "", apperr.Validation("Unknown filter, expected one of previous, current, due_date.")
}

// Recorder observes lifecycle operation outcomes.
type Recorder interface {
	LifecycleOperation(operation, outcome string)
}

// Operation names used for tracing, logging and metrics.
const (
	opBorrow  = "borrow"
	opReturn  = "return"
	opReserve = "reserve"
	opCancel  = "cancel_reservation"
)
