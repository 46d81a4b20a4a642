package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/qcom/phoneauth/internal/apperror"
	"github.com/qcom/phoneauth/internal/clock"
	"github.com/qcom/phoneauth/internal/config"
	"github.com/qcom/phoneauth/internal/models"
	"github.com/qcom/phoneauth/internal/notify"
	"github.com/qcom/phoneauth/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// E.164: leading +, no leading zero, at most 15 digits.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidPhone reports whether phone is in E.164 format.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// DigitSource produces uniformly random decimal codes.
type DigitSource interface {
	Digits(n int) (string, error)
}

// CryptoDigits draws each digit from crypto/rand.
type CryptoDigits struct{}

func (CryptoDigits) Digits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + num.Int64()))
	}
	return b.String(), nil
}

type OTPService struct {
	store    repository.OTPStore
	notifier notify.Notifier
	clock    clock.Clock
	digits   DigitSource
	cfg      *config.OTPConfig
	logger   *logrus.Logger
}

func NewOTPService(
	store repository.OTPStore,
	notifier notify.Notifier,
	clk clock.Clock,
	digits DigitSource,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *OTPService {
	if digits == nil {
		digits = CryptoDigits{}
	}
	return &OTPService{
		store:    store,
		notifier: notifier,
		clock:    clk,
		digits:   digits,
		cfg:      cfg,
		logger:   logger,
	}
}

// Issue replaces any outstanding code for phone with a fresh one and
// delivers it. The returned code is for internal use and tests; it must
// never be written to an HTTP response.
//
// If delivery fails the new record stays in place and the error has kind
// DeliveryError.
func (s *OTPService) Issue(ctx context.Context, phone string) (string, error) {
	const op = "otp.Issue"

	if !ValidPhone(phone) {
		return "", apperror.New(apperror.InvalidPhone, op, "Invalid phone number format")
	}

	code, err := s.digits.Digits(s.cfg.Length)
	if err != nil {
		return "", apperror.Wrap(apperror.Internal, op, phone, fmt.Errorf("failed to generate OTP: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.HashCost)
	if err != nil {
		return "", apperror.Wrap(apperror.Internal, op, phone, fmt.Errorf("failed to hash OTP: %w", err))
	}

	rec := models.OTPRecord{
		Phone:     phone,
		CodeHash:  string(hash),
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.Upsert(ctx, rec, s.cfg.TTL); err != nil {
		s.logger.WithError(err).WithField("phone", phone).Error("Failed to store OTP")
		return "", apperror.Wrap(apperror.Internal, op, phone, err)
	}

	receipt, err := s.notifier.Send(ctx, phone, code)
	if err != nil {
		s.logger.WithError(err).WithField("phone", phone).Error("Failed to deliver OTP")
		e := apperror.Wrap(apperror.DeliveryError, op, phone, err)
		e.Msg = "Failed to send OTP"
		return "", e
	}

	s.logger.WithFields(logrus.Fields{
		"phone":      phone,
		"message_id": receipt.ID,
	}).Info("OTP issued")
	return code, nil
}

// Resend issues a new code, invalidating the previous one.
func (s *OTPService) Resend(ctx context.Context, phone string) (string, error) {
	return s.Issue(ctx, phone)
}

// Verify consumes the outstanding code for phone if code matches and has
// not expired. A false result leaves the stored record untouched.
func (s *OTPService) Verify(ctx context.Context, phone, code string) (bool, error) {
	const op = "otp.Verify"

	if err := s.checkInput(op, phone, code); err != nil {
		return false, err
	}

	now := s.clock.Now()
	ok, err := s.store.Consume(ctx, phone, func(rec *models.OTPRecord) bool {
		if rec.ExpiredAt(now, s.cfg.TTL) {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) == nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("phone", phone).Error("Failed to verify OTP")
		return false, apperror.Wrap(apperror.Internal, op, phone, err)
	}

	if !ok {
		s.logger.WithField("phone", phone).Info("OTP rejected")
	}
	return ok, nil
}

// Invalidate discards any outstanding code for phone.
func (s *OTPService) Invalidate(ctx context.Context, phone string) error {
	const op = "otp.Invalidate"

	if !ValidPhone(phone) {
		return apperror.New(apperror.InvalidPhone, op, "Invalid phone number format")
	}
	if err := s.store.Delete(ctx, phone); err != nil {
		return apperror.Wrap(apperror.Internal, op, phone, err)
	}
	return nil
}

// checkInput rejects a malformed phone or code before any store access.
func (s *OTPService) checkInput(op, phone, code string) error {
	if phone == "" || code == "" {
		return apperror.New(apperror.InvalidInput, op, "Phone and OTP are required")
	}
	if !ValidPhone(phone) {
		return apperror.New(apperror.InvalidPhone, op, "Invalid phone number format")
	}
	if !s.wellFormed(code) {
		return apperror.Newf(apperror.InvalidFormat, op, "OTP must be %d digits", s.cfg.Length)
	}
	return nil
}

func (s *OTPService) wellFormed(code string) bool {
	if len(code) != s.cfg.Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
