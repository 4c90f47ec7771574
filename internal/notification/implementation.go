package notification

import (
	"context"
	"errors"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
	"libraryms/internal/store"
)

type service struct {
	store store.Store
}

// NewService creates a new notification service instance.
func NewService(st store.Store) Service {
	return &service{store: st}
}

// List returns p's notifications, newest first. Authors have none.
func (s *service) List(ctx context.Context, p domain.Principal) ([]domain.Notification, error) {
	if !p.IsBorrower() {
		return []domain.Notification{}, nil
	}
	var out []domain.Notification
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListNotifications(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Store("list notifications", err)
	}
	return out, nil
}

// MarkAsRead flags one of p's notifications as read. Notifications of other
// users are reported as missing.
func (s *service) MarkAsRead(ctx context.Context, p domain.Principal, id int64) (*domain.Notification, error) {
	var n *domain.Notification
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.GetNotification(ctx, id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && (!p.IsBorrower() || n.UserID != p.ID)) {
			return apperr.NotFound("Notification")
		}
		if err != nil {
			return err
		}
		if err := tx.MarkNotificationRead(ctx, id); err != nil {
			return err
		}
		n.Read = true
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("mark notification read", err)
	}
	return n, nil
}
