package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/qcom/phoneauth/internal/clock"
	"github.com/qcom/phoneauth/internal/config"
	"github.com/qcom/phoneauth/internal/notify"
	"github.com/qcom/phoneauth/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPhone  = "+15551230000"
	testSecret = "0123456789abcdef0123456789abcdef"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// recordingNotifier remembers the last code sent to each phone.
type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
	err   error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: make(map[string]string)}
}

func (n *recordingNotifier) Send(_ context.Context, phone, code string) (*notify.DeliveryReceipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends++
	if n.err != nil {
		return nil, n.err
	}
	n.codes[phone] = code
	return &notify.DeliveryReceipt{ID: "test", Status: "sent"}, nil
}

func (n *recordingNotifier) last(phone string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[phone]
}

// sequenceDigits hands out fixed codes in order.
type sequenceDigits struct {
	mu    sync.Mutex
	codes []string
}

func (d *sequenceDigits) Digits(n int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		return "", errors.New("no codes left")
	}
	code := d.codes[0]
	d.codes = d.codes[1:]
	return code, nil
}

func otpConfig() *config.OTPConfig {
	return &config.OTPConfig{Length: 6, TTL: 5 * time.Minute, HashCost: bcrypt.MinCost}
}

type fixture struct {
	clock    *clock.Fake
	store    repository.OTPStore
	users    *repository.MemoryUserStore
	notifier *recordingNotifier
	otp      *OTPService
	jwt      *JWTService
	auth     *AuthService
}

func newFixture(t *testing.T, store repository.OTPStore) *fixture {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryOTPStore()
	}
	f := &fixture{
		clock:    clock.NewFake(epoch),
		store:    store,
		users:    repository.NewMemoryUserStore(),
		notifier: newRecordingNotifier(),
	}
	logger := quietLogger()
	f.otp = NewOTPService(f.store, f.notifier, f.clock, nil, otpConfig(), logger)

	jwtSvc, err := NewJWTService(&config.JWTConfig{
		SecretKey:     testSecret,
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	}, f.clock, logger)
	if err != nil {
		t.Fatalf("NewJWTService: %v", err)
	}
	f.jwt = jwtSvc
	f.auth = NewAuthService(f.otp, f.jwt, f.users, f.clock, logger)
	return f
}
