package repository

import (
	"context"
	"sync"

	"github.com/dj258255/tymee-sub001/internal/user/domain"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[int64]domain.User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]domain.User)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *domain.User
	for _, u := range r.byID {
		if u.Email == email && (found == nil || u.ID < found.ID) {
			u := u
			found = &u
		}
	}
	return found, nil
}

func (r *MemoryRepository) GetByProvider(ctx context.Context, provider, subject string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Provider == provider && u.ProviderSubject == subject {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ID == u.ID || (existing.Provider == u.Provider && existing.ProviderSubject == u.ProviderSubject) {
			return ErrDuplicate
		}
	}
	r.byID[u.ID] = *u
	return nil
}
