package session

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

type ctxKey struct{}

// WithGate attaches the client's gate to ctx for Guard to find.
func WithGate(ctx context.Context, g *Gate) context.Context {
	return context.WithValue(ctx, ctxKey{}, g)
}

func GateFrom(ctx context.Context) (*Gate, bool) {
	g, ok := ctx.Value(ctxKey{}).(*Gate)
	return g, ok && g != nil
}

// Guard admits a request only for an authenticated client holding the
// elevated role. A client that is still resolving is given up to wait to
// settle; if it does not, the request is answered 503 rather than decided.
// Everyone else is redirected to "/".
func Guard(wait time.Duration, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g, ok := GateFrom(r.Context())
			if !ok {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}

			snap := g.Snapshot()
			if !snap.Settled() {
				ctx, cancel := context.WithTimeout(r.Context(), wait)
				snap, _ = g.Wait(ctx)
				cancel()
			}

			switch {
			case snap.Admitted():
				next.ServeHTTP(w, r)
			case !snap.Settled():
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(wait.Seconds()))))
				kit.WriteError(w, r, http.StatusServiceUnavailable, "session resolving", nil)
			default:
				log.Info("admin route denied",
					zap.String("path", r.URL.Path),
					zap.Stringer("state", snap.State),
					zap.Bool("elevated", snap.Elevated),
				)
				http.Redirect(w, r, "/", http.StatusFound)
			}
		})
	}
}
