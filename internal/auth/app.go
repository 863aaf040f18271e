package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"Storefront/pkg/kit"
)

type HTTPDeps = kit.RouterDeps

const (
	loginLimitPerMin    = 5
	registerLimitPerMin = 3
	limitWindow         = 60 * time.Second
)

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := kit.NewRouter(deps)
	setupRoutes(r, s)
	return r
}

func setupRoutes(r *chi.Mux, s *Server) {
	loginLimiter := kit.NewIPRateLimiter(loginLimitPerMin, limitWindow)
	registerLimiter := kit.NewIPRateLimiter(registerLimitPerMin, limitWindow)

	r.Route("/auth", func(rr chi.Router) {
		rr.With(loginLimiter.Middleware).Post("/login", s.handleLogin)
		rr.With(loginLimiter.Middleware).Post("/federated", s.handleFederated)
		rr.With(registerLimiter.Middleware).Post("/register", s.handleRegister)
		rr.Get("/whoami", s.handleWhoAmI)
		rr.Post("/logout", s.handleLogout)
	})
	r.Get("/admins/{uid}", s.handleAdmin)

	r.Get("/healthz", kit.Healthz)
	r.Get("/readyz", s.handleReady)
}
