package roleAuth

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation reports a malformed request, such as an empty role.
	ErrValidation = errors.New("validation failed")
	// ErrRoleNotGranted is returned when the requested role is unknown or
	// not in the caller's granted set.
	ErrRoleNotGranted = errors.New("role not granted")
	// ErrUserNotFound is returned when the caller's subject has no
	// directory record.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionStore wraps session store failures.
	ErrSessionStore = errors.New("session store unavailable")
	// ErrSigning wraps token signing failures.
	ErrSigning = errors.New("token signing failed")

	ErrUnauthorized     = errors.New("unauthorized")
	ErrMalformedToken   = errors.New("malformed token")
	ErrExpiredToken     = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrSessionRevoked is returned for a correctly signed token whose
	// session is gone or no longer matches the token.
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrAccessDenied     = errors.New("access denied")
	ErrResourceNotFound = errors.New("resource not found")

	// ErrSwitchInProgress is returned while another role switch for the
	// same subject holds the lock. Retry later.
	ErrSwitchInProgress = errors.New("role switch in progress")
	ErrRateLimited      = errors.New("rate limited")
	// ErrVersionConflict is returned when the user record changed between
	// read and save.
	ErrVersionConflict = errors.New("user record version conflict")
	// ErrDirectory wraps user directory failures.
	ErrDirectory      = errors.New("user directory unavailable")
	ErrEngineNotReady = errors.New("engine not initialized")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Error codes returned by Classify.
const (
	CodeValidation         = "validation_failed"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeTokenExpired       = "token_expired"
	CodeInvalidToken       = "invalid_token"
	CodeSessionRevoked     = "session_revoked"
	CodeRoleNotGranted     = "role_not_granted"
	CodeAccessDenied       = "access_denied"
	CodeNotFound           = "not_found"
	CodeUserNotFound       = "user_not_found"
	CodeSwitchInProgress   = "switch_in_progress"
	CodeVersionConflict    = "version_conflict"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"
)

// Classify maps an error to a stable client code and HTTP status. Errors
// that are not sentinels of this package map to a generic 500.
func Classify(err error) (code string, status int) {
	switch {
	case err == nil:
		return "", http.StatusOK
	case errors.Is(err, ErrValidation):
		return CodeValidation, http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials, http.StatusUnauthorized
	case errors.Is(err, ErrExpiredToken):
		return CodeTokenExpired, http.StatusUnauthorized
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrSignatureInvalid):
		return CodeInvalidToken, http.StatusUnauthorized
	case errors.Is(err, ErrSessionRevoked):
		return CodeSessionRevoked, http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized, http.StatusUnauthorized
	case errors.Is(err, ErrRoleNotGranted):
		return CodeRoleNotGranted, http.StatusForbidden
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied, http.StatusForbidden
	case errors.Is(err, ErrResourceNotFound):
		return CodeNotFound, http.StatusNotFound
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound, http.StatusNotFound
	case errors.Is(err, ErrSwitchInProgress):
		return CodeSwitchInProgress, http.StatusConflict
	case errors.Is(err, ErrVersionConflict):
		return CodeVersionConflict, http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited, http.StatusTooManyRequests
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}
