package storefront

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

type HTTPDeps = kit.RouterDeps

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	var reg prometheus.Registerer
	if deps.Registry != nil {
		reg = deps.Registry
	}
	s.mutations = kit.NewCounterVec(reg, "storefront_store_mutations_total",
		"Committed cart and wishlist mutations by slot and operation", "slot", "op")

	r := kit.NewRouter(deps)
	r.Mount("/", s.Routes())
	return r
}
