package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{roleAuth.ErrAccessDenied, http.StatusForbidden, roleAuth.CodeAccessDenied},
		{roleAuth.ErrResourceNotFound, http.StatusNotFound, roleAuth.CodeNotFound},
		{fmt.Errorf("%w: token", roleAuth.ErrSessionRevoked), http.StatusUnauthorized, roleAuth.CodeSessionRevoked},
		{roleAuth.ErrSwitchInProgress, http.StatusConflict, roleAuth.CodeSwitchInProgress},
		{roleAuth.ErrRateLimited, http.StatusTooManyRequests, roleAuth.CodeRateLimited},
	}
	for _, tt := range tests {
		env := FromError(tt.err)
		assert.Equal(t, StatusError, env.Status)
		assert.Equal(t, tt.status, env.HTTPStatus)
		assert.Equal(t, tt.code, env.Code)
		assert.NotEmpty(t, env.Message)
	}
}

func TestFromErrorHidesInfrastructureDetail(t *testing.T) {
	env := FromError(errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, env.HTTPStatus)
	assert.Equal(t, roleAuth.CodeInternal, env.Code)
	assert.NotContains(t, env.Message, "10.0.0.3")
}

func TestFieldErrorIsValidation(t *testing.T) {
	env := FromError(&FieldError{Field: "role", Reason: "required"})
	assert.Equal(t, http.StatusBadRequest, env.HTTPStatus)
	assert.Equal(t, map[string]string{"role": "required"}, env.Errors)
}

func TestWriteEncodesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Success(map[string]string{"activeRole": "BA"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, map[string]any{"activeRole": "BA"}, body["data"])
	assert.NotContains(t, body, "HTTPStatus")
	assert.NotContains(t, body, "errors")

	rec = httptest.NewRecorder()
	WriteError(rec, roleAuth.ErrAccessDenied)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "access_denied", body["code"])
}
