package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors carry the exact wording shown to API clients.
var (
	ErrTodoNotFound       = errors.New("Todo not found")
	ErrForbidden          = errors.New("Access denied")
	ErrEmailTaken         = errors.New("Email already registered")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrUnauthorized       = errors.New("Could not validate credentials")
	ErrAPIKeyRequired     = errors.New("API key required")
	ErrInvalidAPIKey      = errors.New("Invalid API key")
	ErrAIRateLimited      = errors.New("API rate limit exceeded")
)

// ValidationError reports input that failed a field rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AIServiceError wraps an unexpected failure of the AI provider.
type AIServiceError struct {
	Err error
}

func (e *AIServiceError) Error() string {
	return "AI service error: " + e.Err.Error()
}

func (e *AIServiceError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a service error to the status code API clients see.
func HTTPStatus(err error) int {
	var validation *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTodoNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrAPIKeyRequired),
		errors.Is(err, ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmailTaken):
		return http.StatusBadRequest
	case errors.Is(err, ErrAIRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the detail text safe to show for err. Unexpected errors
// are hidden behind a generic message.
func PublicMessage(err error) string {
	var validation *ValidationError
	var ai *AIServiceError
	switch {
	case errors.As(err, &validation), errors.As(err, &ai):
		return err.Error()
	case HTTPStatus(err) == http.StatusInternalServerError:
		return "Internal server error"
	}
	for _, sentinel := range []error{
		ErrTodoNotFound, ErrForbidden, ErrEmailTaken, ErrInvalidCredentials,
		ErrUnauthorized, ErrAPIKeyRequired, ErrInvalidAPIKey, ErrAIRateLimited,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
