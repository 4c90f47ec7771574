package circulation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
)

func ptr(id int64) *int64 { return &id }

func assertRejected(t *testing.T, err error, kind apperr.Kind, reason string) {
	t.Helper()
	var appErr *apperr.Error
	if assert.ErrorAs(t, err, &appErr) {
		assert.Equal(t, kind, appErr.Kind)
		assert.Equal(t, reason, appErr.Reason)
	}
}

func Test_DecideBorrow(t *testing.T) {
	const me, other = int64(1), int64(2)

	cases := []struct {
		name   string
		book   domain.Book
		active int
		kind   apperr.Kind
		reason string
	}{
		{"available", domain.Book{}, 0, apperr.KindUnknown, ""},
		{"reserved by me", domain.Book{ReservedBy: ptr(me)}, 4, apperr.KindUnknown, ""},
		{"already mine", domain.Book{BorrowedBy: ptr(me)}, 1, apperr.KindValidation, failureReasonAlreadyBorrowing},
		{"borrowed by other", domain.Book{BorrowedBy: ptr(other)}, 0, apperr.KindPermissionDenied, failureReasonBorrowedByOther},
		{"borrowed and reserved by other", domain.Book{BorrowedBy: ptr(other), ReservedBy: ptr(other)}, 5, apperr.KindPermissionDenied, failureReasonBorrowedByOther},
		{"reserved by other", domain.Book{ReservedBy: ptr(other)}, 5, apperr.KindPermissionDenied, failureReasonReservedByOther},
		{"limit reached", domain.Book{}, domain.MaxActiveBorrowings, apperr.KindPermissionDenied, failureReasonTooManyBooks},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := decideBorrow(&tc.book, me, tc.active)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			assertRejected(t, err, tc.kind, tc.reason)
		})
	}
}

func Test_DecideReturn(t *testing.T) {
	assert.NoError(t, decideReturn(&domain.BorrowingTransaction{BorrowerID: 1}, 1))
	assertRejected(t, decideReturn(&domain.BorrowingTransaction{BorrowerID: 2}, 1), apperr.KindPermissionDenied, failureReasonNotYourLoan)
	assertRejected(t, decideReturn(&domain.BorrowingTransaction{BorrowerID: 1, IsReturned: true}, 1), apperr.KindValidation, failureReasonAlreadyReturned)
	// ownership is checked before the returned flag
	assertRejected(t, decideReturn(&domain.BorrowingTransaction{BorrowerID: 2, IsReturned: true}, 1), apperr.KindPermissionDenied, failureReasonNotYourLoan)
}

func Test_DecideReserve(t *testing.T) {
	const me, other = int64(1), int64(2)
	loan := &domain.BorrowingTransaction{BorrowerID: other}

	cases := []struct {
		name   string
		book   domain.Book
		loan   *domain.BorrowingTransaction
		reason string
	}{
		{"borrowed by other", domain.Book{BorrowedBy: ptr(other)}, loan, ""},
		{"not borrowed", domain.Book{}, nil, failureReasonNotBorrowed},
		{"not borrowed but reserved", domain.Book{ReservedBy: ptr(other)}, nil, failureReasonNotBorrowed},
		{"already reserved", domain.Book{BorrowedBy: ptr(other), ReservedBy: ptr(other)}, loan, failureReasonAlreadyReserved},
		{"reserved by me", domain.Book{BorrowedBy: ptr(other), ReservedBy: ptr(me)}, loan, failureReasonAlreadyReserved},
		{"my own loan", domain.Book{BorrowedBy: ptr(me)}, loan, failureReasonReserveOwnLoan},
		{"no transaction", domain.Book{BorrowedBy: ptr(other)}, nil, failureReasonNoActiveTransaction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := decideReserve(&tc.book, me, tc.loan)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			assertRejected(t, err, apperr.KindValidation, tc.reason)
		})
	}
}

func Test_DecideCancel(t *testing.T) {
	assert.NoError(t, decideCancel(&domain.Reservation{BorrowerID: 1}, 1))
	assertRejected(t, decideCancel(&domain.Reservation{BorrowerID: 2}, 1), apperr.KindPermissionDenied, failureReasonNotYourReservation)
}

func Test_ParseBorrowingFilter(t *testing.T) {
	for _, s := range []string{"", "previous", "current", "due_date"} {
		f, err := ParseBorrowingFilter(s)
		assert.NoError(t, err)
		assert.Equal(t, BorrowingFilter(s), f)
	}
	_, err := ParseBorrowingFilter("overdue")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
