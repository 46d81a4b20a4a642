package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/qcom/phoneauth/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts the auth routes. CORS wraps the whole router so
// preflight requests are answered before route matching.
func NewRouter(
	authHandlers *AuthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigins []string,
	logger *logrus.Logger,
) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", Health).Methods(http.MethodGet)

	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/send-otp-login", authHandlers.SendLoginOTP).Methods(http.MethodPost)
	auth.HandleFunc("/send-otp-create-account", authHandlers.SendRegistrationOTP).Methods(http.MethodPost)
	auth.HandleFunc("/register", authHandlers.Register).Methods(http.MethodPost)
	auth.HandleFunc("/verify-otp-login", authHandlers.VerifyOTPLogin).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", authHandlers.RefreshToken).Methods(http.MethodPost)
	auth.HandleFunc("/logout", authHandlers.Logout).Methods(http.MethodGet)

	protected := auth.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/me", authHandlers.Me).Methods(http.MethodGet)

	return middleware.CORSMiddleware(allowedOrigins)(router)
}
