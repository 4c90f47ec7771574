// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
)

// service implements the Service interface.
type service struct {
	store store.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a new membership service instance.
func NewService(st store.Store, log logrus.FieldLogger) Service {
	return &service{store: st, log: log.WithField("component", "membership"), now: time.Now}
}

// SignUp creates an author or a borrower. Usernames are unique across both.
func (s *service) SignUp(ctx context.Context, req SignUp) (domain.Principal, error) {
	if err := req.validate(); err != nil {
		return domain.Principal{}, err
	}

	passwordHash, salt, err := hashPassword(req.Password)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("failed to hash password: %w", err)
	}

	p := domain.Principal{Role: req.UserType, Username: req.Username}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		taken, err := usernameTaken(ctx, tx, req.Username)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Validation(failureReasonTaken)
		}

		now := s.now().UTC()
		switch req.UserType {
		case domain.RoleAuthor:
			a := &domain.Author{
				Username:     req.Username,
				Email:        req.Email,
				PasswordHash: passwordHash,
				Salt:         salt,
				Name:         req.Name,
				Biography:    req.Biography,
				Nationality:  req.Nationality,
				DateOfBirth:  req.DateOfBirth,
				CreatedAt:    now,
			}
			err = tx.CreateAuthor(ctx, a)
			p.ID = a.ID
		default:
			b := &domain.Borrower{
				Username:         req.Username,
				Email:            req.Email,
				PasswordHash:     passwordHash,
				Salt:             salt,
				RegistrationDate: now,
			}
			err = tx.CreateBorrower(ctx, b)
			p.ID = b.ID
		}
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Validation(failureReasonTaken)
		}
		return err
	})
	if err != nil {
		return domain.Principal{}, apperr.Wrap("sign up", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": p.ID, "role": p.Role}).Info("user signed up")
	return p, nil
}

func usernameTaken(ctx context.Context, tx store.Tx, username string) (bool, error) {
	if _, err := tx.GetAuthorByUsername(ctx, username); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if _, err := tx.GetBorrowerByUsername(ctx, username); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	return false, nil
}

// Authenticate verifies credentials and returns the matching principal.
func (s *service) Authenticate(ctx context.Context, username, password string) (domain.Principal, error) {
	type account struct {
		principal domain.Principal
		hash      string
		salt      string
	}

	var found *account
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAuthorByUsername(ctx, username)
		if err == nil {
			found = &account{domain.Principal{Role: domain.RoleAuthor, ID: a.ID, Username: a.Username}, a.PasswordHash, a.Salt}
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		b, err := tx.GetBorrowerByUsername(ctx, username)
		if err == nil {
			found = &account{domain.Principal{Role: domain.RoleBorrower, ID: b.ID, Username: b.Username}, b.PasswordHash, b.Salt}
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return domain.Principal{}, apperr.Store("authenticate", err)
	}
	if found == nil {
		return domain.Principal{}, apperr.Unauthorized(failureReasonLogin)
	}

	ok, err := verifyPassword(password, found.salt, found.hash)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		s.log.WithField("username", username).Warn("failed login attempt")
		return domain.Principal{}, apperr.Unauthorized(failureReasonLogin)
	}
	return found.principal, nil
}

// GetAuthor retrieves an author by ID.
func (s *service) GetAuthor(ctx context.Context, id int64) (*domain.Author, error) {
	var a *domain.Author
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.GetAuthor(ctx, id)
		return notFoundAs(err, "Author")
	})
	if err != nil {
		return nil, apperr.Wrap("get author", err)
	}
	return a, nil
}

// UpdateAuthor changes the caller's own author profile.
func (s *service) UpdateAuthor(ctx context.Context, p domain.Principal, id int64, patch AuthorPatch) (*domain.Author, error) {
	if patch.Email != nil {
		if err := validateEmail(*patch.Email); err != nil {
			return nil, err
		}
	}

	var a *domain.Author
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if a, err = tx.GetAuthor(ctx, id); err != nil {
			return notFoundAs(err, "Author")
		}
		if !p.IsAuthor() || p.ID != id {
			return apperr.PermissionDenied(failureReasonOwner)
		}
		if patch.Email != nil {
			a.Email = *patch.Email
		}
		if patch.Name != nil {
			a.Name = *patch.Name
		}
		if patch.Biography != nil {
			a.Biography = *patch.Biography
		}
		if patch.Nationality != nil {
			a.Nationality = *patch.Nationality
		}
		if patch.DateOfBirth != nil {
			a.DateOfBirth = patch.DateOfBirth
		}
		return tx.UpdateAuthor(ctx, a)
	})
	if err != nil {
		return nil, apperr.Wrap("update author", err)
	}
	return a, nil
}

// GetBorrower retrieves a borrower by ID.
func (s *service) GetBorrower(ctx context.Context, id int64) (*domain.Borrower, error) {
	var b *domain.Borrower
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.GetBorrower(ctx, id)
		return notFoundAs(err, "Borrower")
	})
	if err != nil {
		return nil, apperr.Wrap("get borrower", err)
	}
	return b, nil
}

// UpdateBorrower changes the caller's own borrower profile.
func (s *service) UpdateBorrower(ctx context.Context, p domain.Principal, id int64, patch BorrowerPatch) (*domain.Borrower, error) {
	if patch.Email != nil {
		if err := validateEmail(*patch.Email); err != nil {
			return nil, err
		}
	}

	var b *domain.Borrower
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = tx.GetBorrower(ctx, id); err != nil {
			return notFoundAs(err, "Borrower")
		}
		if !p.IsBorrower() || p.ID != id {
			return apperr.PermissionDenied(failureReasonOwner)
		}
		if patch.Email != nil {
			b.Email = *patch.Email
		}
		return tx.UpdateBorrower(ctx, b)
	})
	if err != nil {
		return nil, apperr.Wrap("update borrower", err)
	}
	return b, nil
}

func notFoundAs(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
