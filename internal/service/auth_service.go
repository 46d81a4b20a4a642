package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/qcom/phoneauth/internal/apperror"
	"github.com/qcom/phoneauth/internal/clock"
	"github.com/qcom/phoneauth/internal/models"
	"github.com/qcom/phoneauth/internal/repository"
	"github.com/sirupsen/logrus"
)

type RegisterInput struct {
	Phone string
	OTP   string
	Name  string
	Email string
}

// AuthResult is returned by every flow that ends authenticated.
type AuthResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

// AuthService combines OTP verification, the user directory and token
// issuance into the registration and login flows. A code consumed by
// Verify stays consumed even when a later step fails; those failures are
// returned as errors and no tokens are minted.
type AuthService struct {
	otp    *OTPService
	jwt    *JWTService
	users  repository.UserStore
	clock  clock.Clock
	logger *logrus.Logger
}

func NewAuthService(otp *OTPService, jwt *JWTService, users repository.UserStore, clk clock.Clock, logger *logrus.Logger) *AuthService {
	return &AuthService{
		otp:    otp,
		jwt:    jwt,
		users:  users,
		clock:  clk,
		logger: logger,
	}
}

// SendLoginOTP issues a code only to registered phones.
func (s *AuthService) SendLoginOTP(ctx context.Context, phone string) error {
	const op = "auth.SendLoginOTP"

	if !ValidPhone(phone) {
		return apperror.New(apperror.InvalidPhone, op, "Invalid phone number format")
	}
	exists, err := s.users.Exists(ctx, phone)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, phone, err)
	}
	if !exists {
		return apperror.New(apperror.NotFound, op, "User not found")
	}

	_, err = s.otp.Issue(ctx, phone)
	return err
}

// SendRegistrationOTP issues a code only to phones with no account.
func (s *AuthService) SendRegistrationOTP(ctx context.Context, phone string) error {
	const op = "auth.SendRegistrationOTP"

	if !ValidPhone(phone) {
		return apperror.New(apperror.InvalidPhone, op, "Invalid phone number format")
	}
	exists, err := s.users.Exists(ctx, phone)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, phone, err)
	}
	if exists {
		return apperror.New(apperror.Conflict, op, "User already exists")
	}

	_, err = s.otp.Issue(ctx, phone)
	return err
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	const op = "auth.Register"

	if err := s.otp.checkInput(op, in.Phone, in.OTP); err != nil {
		return nil, err
	}
	if err := s.ensureAbsent(ctx, op, in.Phone); err != nil {
		return nil, err
	}

	ok, err := s.otp.Verify(ctx, in.Phone, in.OTP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.Unauthorized, op, "Invalid OTP")
	}

	// Another registration may have completed while the code was pending.
	if err := s.ensureAbsent(ctx, op, in.Phone); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &models.User{
		ID:          uuid.NewString(),
		PhoneNumber: in.Phone,
		Role:        models.RoleUser,
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		IsActive:    true,
		LastLogin:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperror.New(apperror.Conflict, op, "User already exists")
		}
		s.logger.WithError(err).WithField("phone", in.Phone).Error("Failed to create user after OTP verification")
		return nil, apperror.Wrap(apperror.Internal, op, in.Phone, err)
	}

	tokens, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, in.Phone, err)
	}

	s.logger.WithFields(logrus.Fields{
		"phone":   in.Phone,
		"user_id": user.ID,
	}).Info("User registered")
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) Login(ctx context.Context, phone, code string) (*AuthResult, error) {
	const op = "auth.Login"

	if err := s.otp.checkInput(op, phone, code); err != nil {
		return nil, err
	}
	user, err := s.activeUser(ctx, op, phone)
	if err != nil {
		return nil, err
	}

	ok, err := s.otp.Verify(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.Unauthorized, op, "Invalid OTP")
	}

	now := s.clock.Now()
	if err := s.users.TouchLastLogin(ctx, phone, now); err != nil {
		s.logger.WithError(err).WithField("phone", phone).Warn("Failed to update last login")
	} else {
		user.LastLogin = &now
	}

	tokens, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, phone, err)
	}

	s.logger.WithFields(logrus.Fields{
		"phone":   phone,
		"user_id": user.ID,
	}).Info("User logged in")
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new pair. Nothing is
// revoked; the old refresh token stays valid until it expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	const op = "auth.Refresh"

	if refreshToken == "" {
		return nil, apperror.New(apperror.Unauthorized, op, "Refresh token is required")
	}
	claims, err := s.jwt.VerifyToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, apperror.New(apperror.Unauthorized, op, "Token is not a refresh token")
	}

	user, err := s.activeUser(ctx, op, claims.Phone)
	if err != nil {
		return nil, err
	}
	if user.ID != claims.Subject {
		return nil, apperror.New(apperror.Unauthorized, op, "Token subject does not match user")
	}

	tokens, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, claims.Phone, err)
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) ensureAbsent(ctx context.Context, op, phone string) error {
	if !ValidPhone(phone) {
		return apperror.New(apperror.InvalidPhone, op, "Invalid phone number format")
	}
	exists, err := s.users.Exists(ctx, phone)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op, phone, err)
	}
	if exists {
		return apperror.New(apperror.Conflict, op, "User already exists")
	}
	return nil
}

func (s *AuthService) activeUser(ctx context.Context, op, phone string) (*models.User, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op, phone, err)
	}
	if user == nil {
		return nil, apperror.New(apperror.NotFound, op, "User not found")
	}
	if !user.IsActive {
		return nil, apperror.New(apperror.Forbidden, op, "Account is disabled")
	}
	return user, nil
}
