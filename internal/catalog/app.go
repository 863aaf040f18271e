package catalog

import (
	"net/http"

	"Storefront/pkg/kit"
)

type HTTPDeps = kit.RouterDeps

// NewHandler serves the catalog routes behind the shared middleware stack.
func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := kit.NewRouter(deps)
	r.Mount("/", s.Routes())
	return r
}
