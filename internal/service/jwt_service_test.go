package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qcom/phoneauth/internal/apperror"
	"github.com/qcom/phoneauth/internal/clock"
	"github.com/qcom/phoneauth/internal/config"
	"github.com/qcom/phoneauth/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: "user-1", PhoneNumber: testPhone, Role: models.RoleUser, IsActive: true}
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	for _, secret := range []string{"", "too-short"} {
		_, err := NewJWTService(&config.JWTConfig{SecretKey: secret}, clock.New(), quietLogger())
		if !apperror.IsKind(err, apperror.ConfigError) {
			t.Fatalf("secret %q: err = %v, want CONFIG_ERROR", secret, err)
		}
	}
}

func TestJWTService_RoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	pair, err := f.jwt.GenerateTokenPair(testUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 900 {
		t.Fatalf("pair = %+v", pair)
	}

	access, err := f.jwt.VerifyToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken(access): %v", err)
	}
	if access.Subject != "user-1" || access.Role != models.RoleUser || access.Type != TokenTypeAccess {
		t.Fatalf("access claims = %+v", access)
	}
	if !access.ExpiresAt.Time.Equal(epoch.Add(15 * time.Minute)) {
		t.Fatalf("access exp = %v", access.ExpiresAt.Time)
	}

	refresh, err := f.jwt.VerifyToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyToken(refresh): %v", err)
	}
	if refresh.Type != TokenTypeRefresh || refresh.Phone != testPhone {
		t.Fatalf("refresh claims = %+v", refresh)
	}
	if access.ID == "" || access.ID == refresh.ID {
		t.Fatal("each token should carry its own jti")
	}
}

func TestJWTService_RejectsOtherSecret(t *testing.T) {
	f := newFixture(t, nil)
	other, _ := NewJWTService(&config.JWTConfig{
		SecretKey:    strings.Repeat("x", 32),
		AccessExpiry: time.Minute,
	}, f.clock, quietLogger())

	token, _ := other.GenerateAccessToken(testUser())
	_, err := f.jwt.VerifyToken(token)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestJWTService_RejectsExpired(t *testing.T) {
	f := newFixture(t, nil)

	token, _ := f.jwt.GenerateAccessToken(testUser())
	f.clock.Advance(16 * time.Minute)

	_, err := f.jwt.VerifyToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if apperror.KindOf(err).Status() != 401 {
		t.Fatalf("status = %d, want 401", apperror.KindOf(err).Status())
	}
}

func TestJWTService_RejectsNoneAlgorithm(t *testing.T) {
	f := newFixture(t, nil)

	claims := &Claims{Role: "admin", Type: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := f.jwt.VerifyToken(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestJWTService_DecodeSkipsVerification(t *testing.T) {
	f := newFixture(t, nil)

	token, _ := f.jwt.GenerateAccessToken(testUser())
	f.clock.Advance(time.Hour)

	claims, err := f.jwt.DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := f.jwt.DecodeToken("not-a-token"); err == nil {
		t.Fatal("garbage should not decode")
	}
}
