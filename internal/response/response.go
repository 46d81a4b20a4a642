// Package response writes the JSON envelopes shared by handlers and middleware.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/qcom/phoneauth/internal/apperror"
)

type Envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
	Timestamp  string      `json:"timestamp"`
	Stack      string      `json:"stack,omitempty"`
}

func write(w http.ResponseWriter, env Envelope) {
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	json.NewEncoder(w).Encode(env)
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, Envelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// Error writes the failure envelope for err, using its apperror kind for
// the status. The full error chain is attached as stack only when
// withStack is set.
func Error(w http.ResponseWriter, err error, withStack bool) {
	kind := apperror.KindOf(err)
	env := Envelope{
		StatusCode: kind.Status(),
		Message:    "Internal server error",
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		env.Message = appErr.Message()
		env.Errors = appErr.Details
	}
	if len(env.Errors) == 0 {
		env.Errors = []string{env.Message}
	}
	if withStack {
		env.Stack = err.Error()
	}
	write(w, env)
}
