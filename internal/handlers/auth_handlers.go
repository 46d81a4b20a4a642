package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/qcom/phoneauth/internal/apperror"
	"github.com/qcom/phoneauth/internal/config"
	"github.com/qcom/phoneauth/internal/middleware"
	"github.com/qcom/phoneauth/internal/response"
	"github.com/qcom/phoneauth/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	authService *service.AuthService
	validate    *validator.Validate
	cfg         *config.Config
	logger      *logrus.Logger
}

func NewAuthHandlers(authService *service.AuthService, cfg *config.Config, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		cfg:         cfg,
		logger:      logger,
	}
}

type SendOTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

type RegisterRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	OTP   string `json:"otp" validate:"required,numeric"`
	Name  string `json:"name" validate:"omitempty,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	OTP   string `json:"otp" validate:"required,numeric"`
}

type UserResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type RegisterResponse struct {
	AccessToken string       `json:"accessToken"`
	User        UserResponse `json:"user"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
}

func (h *AuthHandlers) SendLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	if err := h.authService.SendLoginOTP(r.Context(), req.Phone); err != nil {
		h.respondWithError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, "OTP sent successfully", nil)
}

func (h *AuthHandlers) SendRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	if err := h.authService.SendRegistrationOTP(r.Context(), req.Phone); err != nil {
		h.respondWithError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, "OTP sent successfully", nil)
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Phone: req.Phone,
		OTP:   req.OTP,
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.setRefreshCookie(w, result.Tokens.RefreshToken)
	response.JSON(w, http.StatusCreated, "User registered successfully", RegisterResponse{
		AccessToken: result.Tokens.AccessToken,
		User: UserResponse{
			ID:   result.User.ID,
			Role: result.User.Role,
		},
	})
}

func (h *AuthHandlers) VerifyOTPLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Phone, req.OTP)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.setRefreshCookie(w, result.Tokens.RefreshToken)
	response.JSON(w, http.StatusOK, "Login successful", LoginResponse{
		AccessToken: result.Tokens.AccessToken,
		Role:        result.User.Role,
	})
}

func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(h.cfg.Cookie.Name); err == nil {
		token = cookie.Value
	}

	result, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		if k := apperror.KindOf(err); k == apperror.Expired || k == apperror.InvalidSignature || k == apperror.Unauthorized {
			h.clearRefreshCookie(w)
		}
		h.respondWithError(w, err)
		return
	}

	h.setRefreshCookie(w, result.Tokens.RefreshToken)
	response.JSON(w, http.StatusOK, "Token refreshed", LoginResponse{
		AccessToken: result.Tokens.AccessToken,
		Role:        result.User.Role,
	})
}

// Logout only clears the refresh cookie. Access tokens stay valid until
// they expire.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	response.JSON(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, apperror.New(apperror.Unauthorized, "handlers.Me", "Invalid token"))
		return
	}
	response.JSON(w, http.StatusOK, "OK", UserResponse{
		ID:   claims.Subject,
		Role: claims.Role,
	})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *AuthHandlers) decode(r *http.Request, dst interface{}) error {
	const op = "handlers.decode"

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.New(apperror.InvalidInput, op, "Invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperror.Wrap(apperror.Internal, op, "", err)
		}
		return validationError(op, verrs)
	}
	return nil
}

// validationError picks the kind of the first failed field and lists a
// message for every field.
func validationError(op string, verrs validator.ValidationErrors) error {
	kind := apperror.InvalidFormat
	details := make([]string, 0, len(verrs))
	for i, fe := range verrs {
		field := strings.ToLower(fe.Field())
		var msg string
		var k apperror.Kind
		switch fe.Tag() {
		case "required":
			k, msg = apperror.InvalidInput, fmt.Sprintf("%s is required", field)
		case "e164":
			k, msg = apperror.InvalidPhone, fmt.Sprintf("%s must be a valid E.164 phone number", field)
		case "numeric":
			k, msg = apperror.InvalidFormat, fmt.Sprintf("%s must contain digits only", field)
		case "email":
			k, msg = apperror.InvalidFormat, fmt.Sprintf("%s must be a valid email address", field)
		default:
			k, msg = apperror.InvalidFormat, fmt.Sprintf("%s is invalid", field)
		}
		if i == 0 {
			kind = k
		}
		details = append(details, msg)
	}

	e := apperror.New(kind, op, "Validation failed")
	e.Details = details
	return e
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	fields := logrus.Fields{"kind": apperror.KindOf(err).String()}
	if errors.As(err, &appErr) && appErr.Phone != "" {
		fields["phone"] = appErr.Phone
	}

	if apperror.KindOf(err).Status() >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(fields).Error("Request failed")
	} else {
		h.logger.WithError(err).WithFields(fields).Debug("Request rejected")
	}
	response.Error(w, err, !h.cfg.IsProduction())
}

func (h *AuthHandlers) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.Cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.cfg.Cookie.SameSite,
	})
}

func (h *AuthHandlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.cfg.Cookie.SameSite,
	})
}
