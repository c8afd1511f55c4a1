package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/response"
)

// Authenticator is satisfied by *roleAuth.Engine.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*roleAuth.Principal, error)
}

// Authenticate verifies the bearer token and stores the principal on the
// request context. Failures are answered with a 401 envelope.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				response.WriteError(w, roleAuth.ErrUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				response.WriteError(w, roleAuth.ErrUnauthorized)
				return
			}

			ctx := roleAuth.WithClientIP(r.Context(), ClientIP(r))
			p, err := auth.Authenticate(ctx, token)
			if err != nil {
				response.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(roleAuth.WithPrincipal(ctx, p)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP is the host part of r.RemoteAddr. Forwarding headers are not
// trusted; put a proxy-aware handler in front to rewrite RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
