package storefront

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Storefront/internal/session"
	"Storefront/pkg/kit"
)

const (
	clientCookie = "sf_client"
	tokenCookie  = "sf_token"

	defaultResolveTimeout = 2 * time.Second
)

type clientKey struct{}

func clientFrom(ctx context.Context) *Client {
	c, _ := ctx.Value(clientKey{}).(*Client)
	return c
}

// withClient binds the request to its browser's client context, issuing a
// client cookie on first visit, and settles a still-resolving session from
// the token cookie.
func (s *Server) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if ck, err := r.Cookie(clientCookie); err == nil {
			if u, err := uuid.Parse(ck.Value); err == nil {
				id = u.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, s.cookie(clientCookie, id, s.CookieMaxAge))
		}

		c, err := s.Clients.Get(r.Context(), id)
		if err != nil {
			s.Log.Error("client state unavailable", zap.String("client", id), zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable", nil)
			return
		}

		token := ""
		if ck, err := r.Cookie(tokenCookie); err == nil {
			token = ck.Value
		}
		if c.Gate.Snapshot().State == session.Resolving {
			ctx, cancel := context.WithTimeout(r.Context(), s.resolveTimeout())
			if err := c.Gate.Resolve(ctx, token); err != nil {
				s.Log.Warn("session resolve failed", zap.String("client", id), zap.Error(err))
			}
			cancel()
		}

		ctx := context.WithValue(r.Context(), clientKey{}, c)
		ctx = session.WithGate(ctx, c.Gate)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.MaxAge = int(maxAge.Seconds())
	}
	return ck
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	ck := s.cookie(name, "", 0)
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

func (s *Server) resolveTimeout() time.Duration {
	if s.ResolveTimeout > 0 {
		return s.ResolveTimeout
	}
	return defaultResolveTimeout
}
