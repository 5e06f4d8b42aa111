package chat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Error kinds surfaced to connections.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized for this room")
	ErrValidation     = errors.New("invalid request")
	ErrRateLimited    = errors.New("too many messages")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal server error")
)

// Store errors.
var (
	ErrRecordNotFound = errors.New("store: record not found")
	ErrDuplicateEntry = errors.New("store: duplicate entry")
)

// Error is a user-safe failure with a kind that errors.Is can match.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorPayload is the uniform error shape sent to clients.
type ErrorPayload struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToPayload never leaks the text of untyped errors.
func ToPayload(err error) ErrorPayload {
	var e *Error
	if !errors.As(err, &e) || errors.Is(err, ErrInternal) {
		return ErrorPayload{Code: http.StatusInternalServerError, Message: "Internal server error"}
	}
	return ErrorPayload{Code: StatusCode(err), Message: e.Message}
}

func validationError(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return newError(ErrValidation, "%s is required", fe.Field())
		case "max":
			return newError(ErrValidation, "%s must be at most %s long", fe.Field(), fe.Param())
		case "min":
			return newError(ErrValidation, "%s must contain at least %s item(s)", fe.Field(), fe.Param())
		case "oneof":
			return newError(ErrValidation, "%s must be one of: %s", fe.Field(), fe.Param())
		default:
			return newError(ErrValidation, "%s is invalid", fe.Field())
		}
	}
	return newError(ErrValidation, "malformed payload")
}
