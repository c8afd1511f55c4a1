// Package response renders the JSON envelope shared by every handler.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	roleAuth "github.com/MrEthical07/roleAuth"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the wire shape of every response body.
type Envelope struct {
	Status  string            `json:"status"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`

	// HTTPStatus is not serialized.
	HTTPStatus int `json:"-"`
}

var messages = map[string]string{
	roleAuth.CodeValidation:         "The request is invalid.",
	roleAuth.CodeUnauthorized:       "Authentication required.",
	roleAuth.CodeInvalidCredentials: "Invalid email or password.",
	roleAuth.CodeTokenExpired:       "Session token expired.",
	roleAuth.CodeInvalidToken:       "Session token is invalid.",
	roleAuth.CodeSessionRevoked:     "Session is no longer valid.",
	roleAuth.CodeRoleNotGranted:     "Role is not granted to this user.",
	roleAuth.CodeAccessDenied:       "You do not have access to this resource.",
	roleAuth.CodeNotFound:           "Resource not found.",
	roleAuth.CodeUserNotFound:       "User not found.",
	roleAuth.CodeSwitchInProgress:   "A role switch is already in progress.",
	roleAuth.CodeVersionConflict:    "The user record changed, retry.",
	roleAuth.CodeRateLimited:        "Too many requests.",
	roleAuth.CodeInternal:           "Internal server error.",
}

// Success wraps data in a 200 envelope.
func Success(data any) *Envelope {
	return &Envelope{Status: StatusSuccess, Data: data, HTTPStatus: http.StatusOK}
}

// Failure builds an error envelope with the canned message for code.
func Failure(status int, code string) *Envelope {
	msg, ok := messages[code]
	if !ok {
		msg = http.StatusText(status)
	}
	return &Envelope{Status: StatusError, Code: code, Message: msg, HTTPStatus: status}
}

// FromError classifies err. Infrastructure errors become a bare 500; their
// text never reaches the client.
func FromError(err error) *Envelope {
	code, status := roleAuth.Classify(err)
	env := Failure(status, code)
	var fe *FieldError
	if errors.As(err, &fe) {
		env.Errors = map[string]string{fe.Field: fe.Reason}
	}
	return env
}

// FieldError attaches a per-field reason to a validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

func (e *FieldError) Unwrap() error { return roleAuth.ErrValidation }

// Write serializes env with its HTTP status.
func Write(w http.ResponseWriter, env *Envelope) {
	status := env.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteError is Write(w, FromError(err)).
func WriteError(w http.ResponseWriter, err error) {
	Write(w, FromError(err))
}
