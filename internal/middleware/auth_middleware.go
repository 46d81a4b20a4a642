package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/qcom/phoneauth/internal/apperror"
	"github.com/qcom/phoneauth/internal/response"
	"github.com/qcom/phoneauth/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the access-token claims set by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok
}

type AuthMiddleware struct {
	jwtService *service.JWTService
	withStack  bool
	logger     *logrus.Logger
}

func NewAuthMiddleware(jwtService *service.JWTService, withStack bool, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		withStack:  withStack,
		logger:     logger,
	}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "middleware.RequireAuth"

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.unauthorized(w, apperror.New(apperror.Unauthorized, op, "Missing authorization header"))
			return
		}

		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			m.unauthorized(w, apperror.New(apperror.Unauthorized, op, "Invalid authorization header format"))
			return
		}

		claims, err := m.jwtService.VerifyToken(tokenString)
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			m.unauthorized(w, err)
			return
		}

		if claims.Type != service.TokenTypeAccess {
			m.unauthorized(w, apperror.New(apperror.Unauthorized, op, "Invalid token type"))
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, err error) {
	response.Error(w, err, m.withStack)
}
