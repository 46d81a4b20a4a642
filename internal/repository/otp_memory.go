package repository

import (
	"context"
	"sync"
	"time"

	"github.com/qcom/phoneauth/internal/models"
)

// MemoryOTPStore keeps records in process. Used for local development and
// tests; a multi-instance deployment needs Redis or DynamoDB.
type MemoryOTPStore struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{
		records: make(map[string]models.OTPRecord),
	}
}

func (s *MemoryOTPStore) Upsert(_ context.Context, rec models.OTPRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Phone] = rec
	return nil
}

func (s *MemoryOTPStore) Get(_ context.Context, phone string) (*models.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[phone]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryOTPStore) Consume(ctx context.Context, phone string, match MatchFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[phone]
	if !ok || !match(&rec) {
		return false, nil
	}
	delete(s.records, phone)
	return true, nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, phone)
	return nil
}
