package notification

import (
	"context"

	"libraryms/internal/domain"
)

// Service lets a borrower read their notifications.
type Service interface {
	List(ctx context.Context, p domain.Principal) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, p domain.Principal, id int64) (*domain.Notification, error)
}
