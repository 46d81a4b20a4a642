package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/phoneauth/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisOTPStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisOTPStore(client *redis.Client, logger *logrus.Logger) *RedisOTPStore {
	return &RedisOTPStore{
		client: client,
		logger: logger,
	}
}

func otpKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

// Upsert writes the record with a single SET, so concurrent issues resolve to
// the last write.
func (s *RedisOTPStore) Upsert(ctx context.Context, rec models.OTPRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP record: %w", err)
	}

	if err := s.client.Set(ctx, otpKey(rec.Phone), data, ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("phone", rec.Phone).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Get(ctx context.Context, phone string) (*models.OTPRecord, error) {
	data, err := s.client.Get(ctx, otpKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var rec models.OTPRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}
	return &rec, nil
}

// Consume runs GET, match and DEL under WATCH. If another client touches the
// key before EXEC, the transaction aborts and the caller sees false.
func (s *RedisOTPStore) Consume(ctx context.Context, phone string, match MatchFunc) (bool, error) {
	key := otpKey(phone)
	consumed := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var rec models.OTPRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal OTP record: %w", err)
		}
		if !match(&rec) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("phone", phone).Error("Failed to consume OTP in Redis")
		return false, fmt.Errorf("failed to consume OTP: %w", err)
	}
	return consumed, nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, otpKey(phone)).Err(); err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}
