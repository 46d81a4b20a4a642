package repository

import (
	"context"
	"sync"
	"time"

	"github.com/qcom/phoneauth/internal/models"
)

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]models.User),
	}
}

func (s *MemoryUserStore) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[phone]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryUserStore) Exists(_ context.Context, phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[phone]
	return ok, nil
}

func (s *MemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.PhoneNumber]; ok {
		return ErrUserExists
	}
	s.users[user.PhoneNumber] = *user
	return nil
}

func (s *MemoryUserStore) TouchLastLogin(_ context.Context, phone string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[phone]
	if !ok {
		return nil
	}
	u.LastLogin = &at
	u.UpdatedAt = at
	s.users[phone] = u
	return nil
}
