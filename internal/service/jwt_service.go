package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/qcom/phoneauth/internal/apperror"
	"github.com/qcom/phoneauth/internal/clock"
	"github.com/qcom/phoneauth/internal/config"
	"github.com/qcom/phoneauth/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrTokenExpired is returned by VerifyToken for a well-signed token past its exp.
	ErrTokenExpired = apperror.New(apperror.Expired, "jwt.Verify", "Token has expired")
	// ErrInvalidSignature covers every other verification failure.
	ErrInvalidSignature = apperror.New(apperror.InvalidSignature, "jwt.Verify", "Invalid token")
)

type JWTService struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	clock         clock.Clock
	parser        *jwt.Parser
	logger        *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, clk clock.Clock, logger *logrus.Logger) (*JWTService, error) {
	const op = "jwt.New"

	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) == 0 {
		return nil, apperror.New(apperror.ConfigError, op, "JWT secret key is not configured")
	}
	if len(secretKey) < 32 {
		return nil, apperror.New(apperror.ConfigError, op, "secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:     secretKey,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		clock:         clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
		logger: logger,
	}, nil
}

// Claims identify the user by ID (sub) and carry the phone so a refresh can
// reload the account.
type Claims struct {
	Phone string `json:"phone"`
	Role  string `json:"role"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

func (s *JWTService) sign(user *models.User, tokenType string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := &Claims{
		Phone: user.PhoneNumber,
		Role:  user.Role,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).WithField("type", tokenType).Error("Failed to sign token")
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *JWTService) GenerateAccessToken(user *models.User) (string, error) {
	return s.sign(user, TokenTypeAccess, s.accessExpiry)
}

func (s *JWTService) GenerateRefreshToken(user *models.User) (string, error) {
	return s.sign(user, TokenTypeRefresh, s.refreshExpiry)
}

func (s *JWTService) GenerateTokenPair(user *models.User) (*models.TokenPair, error) {
	access, err := s.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}

// VerifyToken checks signature, algorithm and expiry. It returns
// ErrTokenExpired or ErrInvalidSignature on failure.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		s.logger.WithError(err).Debug("Token verification failed")
		return nil, ErrInvalidSignature
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// DecodeToken reads claims without checking the signature. Never use the
// result for an authorization decision.
func (s *JWTService) DecodeToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, apperror.Wrap(apperror.InvalidFormat, "jwt.Decode", "", err)
	}
	return claims, nil
}
