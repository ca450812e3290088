package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	jsonwriter "github.com/dgellow/auth-relay/internal/json"
)

// ErrorCode is the machine-readable `error` value of a relay failure
type ErrorCode string

// Relay error codes
const (
	ErrConfigMissing          ErrorCode = "config_missing"
	ErrInvalidRedirect        ErrorCode = "invalid_redirect"
	ErrUnsupportedClient      ErrorCode = "unsupported_client"
	ErrMissingCode            ErrorCode = "missing_code"
	ErrMissingState           ErrorCode = "missing_state"
	ErrInvalidState           ErrorCode = "invalid_state"
	ErrUpstreamExchangeFailed ErrorCode = "upstream_exchange_failed"
	ErrUnauthenticated        ErrorCode = "unauthenticated"
	ErrInvalidToken           ErrorCode = "invalid_token"
	ErrTokenExpired           ErrorCode = "token_expired"
)

// Error is a relay failure with the HTTP status it maps to
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func statusFor(code ErrorCode) int {
	switch code {
	case ErrConfigMissing:
		return http.StatusInternalServerError
	case ErrUnauthenticated, ErrInvalidToken, ErrTokenExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// NewError builds an Error with the status implied by its code
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Status: statusFor(code), Message: message}
}

// unauthorizedMessage is shared by every 401 so callers cannot tell an
// expired token from a forged one
const unauthorizedMessage = "authentication required"

// WriteError writes err as a JSON error body. 401 responses are collapsed
// to a single code and message.
func WriteError(w http.ResponseWriter, err error) {
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		jsonwriter.WriteInternalServerError(w, "internal error")
		return
	}
	if relayErr.Status == http.StatusUnauthorized {
		jsonwriter.WriteUnauthorized(w, unauthorizedMessage)
		return
	}
	jsonwriter.WriteError(w, relayErr.Status, string(relayErr.Code), relayErr.Message)
}

// RedirectWithError sends the provider's error back to a client surface
func RedirectWithError(w http.ResponseWriter, r *http.Request, target, code, description, state string) {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	if state != "" {
		q.Set("state", state)
	}
	http.Redirect(w, r, AppendQuery(target, q), http.StatusFound)
}
