package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/policy"
	"github.com/MrEthical07/roleAuth/resource"
	"github.com/MrEthical07/roleAuth/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	tokens map[string]*roleAuth.Principal
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*roleAuth.Principal, error) {
	p, ok := f.tokens[token]
	if !ok {
		return nil, roleAuth.ErrSessionRevoked
	}
	return p, nil
}

type recordingReporter struct {
	codes     []string
	resources []string
}

func (r *recordingReporter) ReportDenied(_ context.Context, _ *roleAuth.Principal, resource, code string) {
	r.codes = append(r.codes, code)
	r.resources = append(r.resources, resource)
}

func newAuth() *fakeAuth {
	return &fakeAuth{tokens: map[string]*roleAuth.Principal{
		"pm-token": {Subject: "u@x.com", Active: role.PM, Granted: role.NewSet(role.PM, role.BA), SessionID: "j1"},
		"ba-token": {Subject: "u@x.com", Active: role.BA, Granted: role.NewSet(role.PM, role.BA), SessionID: "j2"},
	}}
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := roleAuth.PrincipalFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Role", p.Active.String())
		w.WriteHeader(http.StatusOK)
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthenticate(t *testing.T) {
	h := Authenticate(newAuth())(okHandler(t))

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, roleAuth.CodeUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, roleAuth.CodeUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, roleAuth.CodeUnauthorized},
		{"revoked", "Bearer old-token", http.StatusUnauthorized, roleAuth.CodeSessionRevoked},
		{"valid", "Bearer pm-token", http.StatusOK, ""},
		{"lower-case scheme", "bearer ba-token", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decode(t, rec)["code"])
			}
		})
	}
}

func TestAuthenticateNilEngine(t *testing.T) {
	rec := httptest.NewRecorder()
	Authenticate(nil)(okHandler(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	rep := &recordingReporter{}
	h := Authenticate(newAuth())(RequireRole([]role.Role{role.BA}, WithReporter(rep))(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/specs", nil)
	req.Header.Set("Authorization", "Bearer pm-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])
	assert.Equal(t, []string{roleAuth.CodeAccessDenied}, rep.codes)

	req.Header.Set("Authorization", "Bearer ba-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BA", rec.Header().Get("X-Role"))
}

func TestRequireGateWithoutPrincipal(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireGate(policy.Roles(role.PM), nil)(okHandler(t)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireGateOwnership(t *testing.T) {
	docs := resource.NewMemory(
		resource.Resource{ID: "1", CreatedBy: "u@x.com"},
		resource.Resource{ID: "2", CreatedBy: "v@x.com"},
	)
	rep := &recordingReporter{}
	gate := policy.Roles(role.PM).Owned(docs)

	mux := http.NewServeMux()
	mux.Handle("GET /documents/{id}",
		Authenticate(newAuth())(RequireGate(gate, PathValue("id"), WithReporter(rep))(okHandler(t))))

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer pm-token")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/documents/1").Code)
	assert.Equal(t, http.StatusForbidden, do("/documents/2").Code)
	rec := do("/documents/3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, roleAuth.CodeNotFound, decode(t, rec)["code"])
	assert.Equal(t, []string{"2", "3"}, rep.resources)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer  abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	_, ok = bearerToken("Bear")
	assert.False(t, ok)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{remote: "192.0.2.1", want: "192.0.2.1"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		assert.Equal(t, tt.want, ClientIP(r), tt.remote)
	}
}
