package repository

import (
	"context"

	"github.com/dj258255/tymee-sub001/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	// Create stores a. It reports inserted=false when an entry with the same EventID already exists.
	Create(ctx context.Context, a *domain.AuditLog) (inserted bool, err error)
	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]*domain.AuditLog, error)
}
