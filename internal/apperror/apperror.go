// Package apperror defines the error kinds shared by the services and the
// HTTP layer. Callers branch on Kind instead of matching error strings.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can react without inspecting messages.
type Kind int

const (
	// Internal is an unexpected storage or runtime failure.
	Internal Kind = iota
	// InvalidInput means a required field is missing.
	InvalidInput
	// InvalidPhone means the phone number is not E.164.
	InvalidPhone
	// InvalidFormat means a field has the wrong shape (e.g. OTP length).
	InvalidFormat
	// Unauthorized means an OTP or token was rejected.
	Unauthorized
	// Expired means a token is past its expiry.
	Expired
	// InvalidSignature means a token failed signature or structural checks.
	InvalidSignature
	// Forbidden means the identity exists but may not authenticate.
	Forbidden
	// NotFound means the identity does not exist.
	NotFound
	// Conflict means the identity already exists.
	Conflict
	// DeliveryError means the notifier could not deliver a code.
	DeliveryError
	// ConfigError means required configuration is missing. Fatal at startup.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "INVALID_INPUT"
	case InvalidPhone:
		return "INVALID_PHONE"
	case InvalidFormat:
		return "INVALID_FORMAT"
	case Unauthorized:
		return "UNAUTHORIZED"
	case Expired:
		return "TOKEN_EXPIRED"
	case InvalidSignature:
		return "INVALID_SIGNATURE"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case DeliveryError:
		return "DELIVERY_ERROR"
	case ConfigError:
		return "CONFIG_ERROR"
	default:
		return "INTERNAL"
	}
}

// Status maps a kind to the HTTP status the API answers with.
func (k Kind) Status() int {
	switch k {
	case InvalidInput, InvalidPhone, InvalidFormat:
		return http.StatusBadRequest
	case Unauthorized, Expired, InvalidSignature:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind plus the operation and phone it happened on.
type Error struct {
	Kind  Kind
	Op    string
	Phone string
	Msg   string
	// Details are client-facing hints, e.g. per-field validation messages.
	Details []string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		if e.Err != nil {
			msg = e.Err.Error()
		} else {
			msg = e.Kind.String()
		}
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, &Error{Kind: NotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// Message is the client-facing text. Wrapped causes are not exposed.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Kind == Internal {
		return "Internal server error"
	}
	return e.Kind.String()
}

// New builds an Error with a client-facing message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches kind, op and phone context to err.
func Wrap(kind Kind, op, phone string, err error) *Error {
	return &Error{Kind: kind, Op: op, Phone: phone, Err: err}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
