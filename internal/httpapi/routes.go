// Package httpapi mounts the session endpoints and an ownership-gated
// sample resource on an http.ServeMux.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/middleware"
	"github.com/MrEthical07/roleAuth/policy"
	"github.com/MrEthical07/roleAuth/resource"
	"github.com/MrEthical07/roleAuth/response"
	"github.com/MrEthical07/roleAuth/role"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

// Handler serves the session API.
type Handler struct {
	engine *roleAuth.Engine
	docs   resource.Loader
	log    *zap.Logger
}

func New(engine *roleAuth.Engine, docs resource.Loader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: engine, docs: docs, log: log}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	authn := middleware.Authenticate(h.engine)
	report := middleware.WithReporter(h.engine)

	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /login", h.login)
	mux.Handle("GET /me", authn(http.HandlerFunc(h.me)))
	mux.Handle("POST /session/role", authn(http.HandlerFunc(h.switchRole)))
	mux.Handle("POST /logout", authn(http.HandlerFunc(h.logout)))
	mux.Handle("POST /logout/all", authn(http.HandlerFunc(h.logoutAll)))

	if h.docs != nil {
		docGate := policy.Roles(role.PM, role.BA, role.Manager).Owned(h.docs)
		mux.Handle("GET /documents/{id}", authn(
			middleware.RequireGate(docGate, middleware.PathValue("id"), report)(http.HandlerFunc(h.document)),
		))
	}
	mux.Handle("GET /admin/sessions/{subject}", authn(
		middleware.RequireRole([]role.Role{role.Admin}, report)(http.HandlerFunc(h.sessions)),
	))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	latency, err := h.engine.Ping(r.Context())
	if err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		env := response.FromError(err)
		env.HTTPStatus = http.StatusServiceUnavailable
		response.Write(w, env)
		return
	}
	response.Write(w, response.Success(map[string]string{
		"sessionStore": "ok",
		"latency":      latency.String(),
	}))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body roleAuth.LoginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		response.WriteError(w, err)
		return
	}

	ctx := roleAuth.WithClientIP(r.Context(), middleware.ClientIP(r))
	info, err := h.engine.Login(ctx, body.Email, body.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	response.Write(w, response.Success(info))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := roleAuth.PrincipalFromContext(r.Context())
	response.Write(w, response.Success(map[string]any{
		"subject":      p.Subject,
		"activeRole":   p.Active.String(),
		"grantedRoles": roleAuth.GrantedRoleNames(p),
		"sessionId":    p.SessionID,
		"expiresAt":    p.ExpiresAt,
	}))
}

func (h *Handler) switchRole(w http.ResponseWriter, r *http.Request) {
	p, _ := roleAuth.PrincipalFromContext(r.Context())

	var body roleAuth.SwitchRoleRequest
	if err := decodeJSON(w, r, &body); err != nil {
		response.WriteError(w, err)
		return
	}
	if body.Role == "" {
		response.WriteError(w, &response.FieldError{Field: "role", Reason: "required"})
		return
	}

	info, err := h.engine.SwitchRole(r.Context(), body, p)
	if err != nil {
		h.writeError(w, "switch role", err)
		return
	}
	response.Write(w, response.Success(info))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := roleAuth.PrincipalFromContext(r.Context())
	if err := h.engine.Logout(r.Context(), p); err != nil {
		h.writeError(w, "logout", err)
		return
	}
	response.Write(w, response.Success(nil))
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := roleAuth.PrincipalFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), p.Subject)
	if err != nil {
		h.writeError(w, "logout all", err)
		return
	}
	response.Write(w, response.Success(map[string]int{"sessions": n}))
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			err = roleAuth.ErrResourceNotFound
		}
		h.writeError(w, "document", err)
		return
	}
	response.Write(w, response.Success(map[string]string{
		"id":        doc.ID,
		"createdBy": doc.CreatedBy,
	}))
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.ActiveSessions(r.Context(), r.PathValue("subject"))
	if err != nil {
		h.writeError(w, "sessions", err)
		return
	}
	response.Write(w, response.Success(map[string][]string{"sessions": ids}))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	env := response.FromError(err)
	if env.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error(op+" failed", zap.Error(err))
	}
	response.Write(w, env)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &response.FieldError{Field: "body", Reason: "invalid JSON"}
	}
	return nil
}
