package repository

import (
	"context"
	"errors"

	"github.com/dj258255/tymee-sub001/internal/user/domain"
)

// ErrDuplicate is returned by Create when (provider, provider subject) already exists.
var ErrDuplicate = errors.New("user already exists")

// Repository defines persistence for users. Getters return nil, nil when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByProvider(ctx context.Context, provider, subject string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}
