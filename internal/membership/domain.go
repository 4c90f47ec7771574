// internal/membership/domain.go
package membership

import (
	"net/mail"
	"strings"
	"time"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
)

const (
	maxUsernameLen = 150
	minPasswordLen = 8

	failureReasonTaken = "A user with that username already exists."
	failureReasonLogin = "No active account found with the given credentials"
	failureReasonOwner = "You do not have permission to perform this action."
)

// SignUp registers an author or a borrower. The profile fields apply to
// authors only.
type SignUp struct {
	UserType    domain.Role `json:"user_type"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Biography   string      `json:"biography"`
	Nationality string      `json:"nationality"`
	DateOfBirth *time.Time  `json:"date_of_birth"`
}

func (s SignUp) validate() error {
	switch {
	case !s.UserType.Valid():
		return apperr.Validation(`user_type: "` + string(s.UserType) + `" is not a valid choice.`)
	case strings.TrimSpace(s.Username) == "":
		return apperr.Validation("username: This field is required.")
	case len(s.Username) > maxUsernameLen:
		return apperr.Validation("username: Ensure this field has no more than 150 characters.")
	case len(s.Password) < minPasswordLen:
		return apperr.Validation("password: Ensure this field has at least 8 characters.")
	}
	return validateEmail(s.Email)
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation("email: Enter a valid email address.")
	}
	return nil
}

// AuthorPatch changes an author's own profile.
type AuthorPatch struct {
	Email       *string    `json:"email"`
	Name        *string    `json:"name"`
	Biography   *string    `json:"biography"`
	Nationality *string    `json:"nationality"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// BorrowerPatch changes a borrower's own profile.
type BorrowerPatch struct {
	Email *string `json:"email"`
}
