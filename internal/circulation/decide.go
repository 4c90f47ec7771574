package circulation

import (
	"libraryms/internal/apperr"
	"libraryms/internal/domain"
)

const (
	failureReasonBorrowersOnly       = "Only borrowers can perform this action."
	failureReasonAlreadyBorrowing    = "you are already borrowing this book"
	failureReasonBorrowedByOther     = "This book is currently borrowed by someone else."
	failureReasonReservedByOther     = "This book is currently reserved by someone else."
	failureReasonTooManyBooks        = "You cannot borrow more than 5 books at a time."
	failureReasonNotYourLoan         = "You can only return books you have borrowed."
	failureReasonAlreadyReturned     = "This book has already been returned."
	failureReasonNotBorrowed         = "Book is not currently borrowed, cannot be reserved."
	failureReasonAlreadyReserved     = "Book is already reserved by someone else."
	failureReasonReserveOwnLoan      = "You cannot reserve a book you are currently borrowing."
	failureReasonNoActiveTransaction = "No valid borrowing transaction found."
	failureReasonNotYourReservation  = "You do not have permission to cancel this reservation."
)

// decideBorrow checks whether borrowerID, holding active unreturned loans,
// may borrow book. Checks run in a fixed order and the first failure wins.
func decideBorrow(book *domain.Book, borrowerID int64, active int) error {
	switch {
	case book.IsBorrowedBy(borrowerID):
		return apperr.Validation(failureReasonAlreadyBorrowing)
	case book.BorrowedBy != nil:
		return apperr.PermissionDenied(failureReasonBorrowedByOther)
	case book.ReservedBy != nil && !book.IsReservedBy(borrowerID):
		return apperr.PermissionDenied(failureReasonReservedByOther)
	case active >= domain.MaxActiveBorrowings:
		return apperr.PermissionDenied(failureReasonTooManyBooks)
	}
	return nil
}

// decideReturn checks whether borrowerID may close loan.
func decideReturn(loan *domain.BorrowingTransaction, borrowerID int64) error {
	switch {
	case loan.BorrowerID != borrowerID:
		return apperr.PermissionDenied(failureReasonNotYourLoan)
	case loan.IsReturned:
		return apperr.Validation(failureReasonAlreadyReturned)
	}
	return nil
}

// decideReserve checks whether borrowerID may reserve book. activeLoan is the
// book's unreturned transaction, nil when there is none.
func decideReserve(book *domain.Book, borrowerID int64, activeLoan *domain.BorrowingTransaction) error {
	switch {
	case book.BorrowedBy == nil:
		return apperr.Validation(failureReasonNotBorrowed)
	case book.ReservedBy != nil:
		return apperr.Validation(failureReasonAlreadyReserved)
	case book.IsBorrowedBy(borrowerID):
		return apperr.Validation(failureReasonReserveOwnLoan)
	case activeLoan == nil:
		return apperr.Validation(failureReasonNoActiveTransaction)
	}
	return nil
}

// decideCancel checks whether borrowerID owns r.
func decideCancel(r *domain.Reservation, borrowerID int64) error {
	if r.BorrowerID != borrowerID {
		return apperr.PermissionDenied(failureReasonNotYourReservation)
	}
	return nil
}
