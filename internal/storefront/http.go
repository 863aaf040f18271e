package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/directory"
	"Storefront/internal/identity"
	"Storefront/internal/persist"
	"Storefront/internal/session"
	"Storefront/internal/wishlist"
	"Storefront/pkg/kit"
)

const (
	degradedHeader = "X-Catalog-Degraded"

	signInLimitPerMin = 10
	signInWindow      = 60 * time.Second
)

// Probe is one dependency checked by /readyz.
type Probe struct {
	Name string
	Ping func(ctx context.Context) error
}

type Server struct {
	Log       *zap.Logger
	Directory *directory.Directory
	Clients   *Registry
	Probes    []Probe

	GuardWait      time.Duration
	ResolveTimeout time.Duration
	CookieMaxAge   time.Duration
	SecureCookies  bool

	mutations *prometheus.CounterVec
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	signInLimiter := kit.NewIPRateLimiter(signInLimitPerMin, signInWindow)

	r.Get("/healthz", kit.Healthz)
	r.Get("/readyz", s.ready)

	r.Get("/products", s.listProducts)
	r.Get("/products/{id}", s.getProduct)

	r.Group(func(cr chi.Router) {
		cr.Use(s.withClient)

		cr.Get("/cart", s.getCart)
		cr.Post("/cart/items", s.addCartItem)
		cr.Patch("/cart/items/{id}", s.updateCartItem)
		cr.Delete("/cart/items/{id}", s.removeCartItem)

		cr.Get("/wishlist", s.getWishlist)
		cr.Post("/wishlist/items", s.addWishlistItem)
		cr.Delete("/wishlist/items/{id}", s.removeWishlistItem)
		cr.Post("/wishlist/items/{id}/move", s.moveWishlistItem)
		cr.Post("/wishlist/move-all", s.moveAllWishlistItems)

		cr.Get("/session", s.getSession)
		cr.With(signInLimiter.Middleware).Post("/session/login", s.login)
		cr.With(signInLimiter.Middleware).Post("/session/google", s.loginFederated)
		cr.Post("/session/logout", s.logout)

		cr.Route("/admin", func(ar chi.Router) {
			ar.Use(session.Guard(s.GuardWait, s.Log))
			ar.Get("/products", s.adminListProducts)
			ar.Post("/products", s.adminCreateProduct)
			ar.Put("/products/{id}", s.adminUpdateProduct)
			ar.Delete("/products/{id}", s.adminDeleteProduct)
		})
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, p := range s.Probes {
		if err := p.Ping(ctx); err != nil {
			s.Log.Warn("readyz failed: "+p.Name, zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, p.Name+" not ready", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// products

// listProducts answers GET /products?q=&sort=. q filters on title,
// category and description; sort is one of the directory sort orders.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	order, err := directory.ParseSortOrder(q.Get("sort"))
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), map[string]any{
			"allowed": []directory.SortOrder{directory.SortPriceAsc, directory.SortPriceDesc, directory.SortRating, directory.SortPopularity},
		})
		return
	}

	products, err := s.Directory.List(r.Context())
	if err != nil {
		w.Header().Set(degradedHeader, "1")
	}
	kit.WriteJSON(w, http.StatusOK, directory.Search(products, q.Get("q"), order))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Directory.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "product not found", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

// cart

type itemReq struct {
	ID json.Number `json:"id"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, clientFrom(r.Context()).Cart.Snapshot())
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := s.productFromBody(w, r)
	if !ok {
		return
	}
	id, _ := strconv.ParseInt(p.ID, 10, 64)

	c := clientFrom(r.Context())
	err := c.Cart.Add(r.Context(), cart.Line{ID: id, Title: p.Title, UnitPrice: p.Price, Image: p.Image})
	if !s.stored(w, r, persist.SlotCart, "add", err) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, c.Cart.Snapshot())
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}
	var req quantityReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}

	c := clientFrom(r.Context())
	err := c.Cart.UpdateQuantity(r.Context(), id, req.Quantity)
	if errors.Is(err, cart.ErrInvalidQuantity) {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, err.Error(), map[string]any{"min": 1})
		return
	}
	if !s.stored(w, r, persist.SlotCart, "update_quantity", err) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, c.Cart.Snapshot())
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	c := clientFrom(r.Context())
	if !s.stored(w, r, persist.SlotCart, "remove", c.Cart.Remove(r.Context(), id)) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, c.Cart.Snapshot())
}

// wishlist

func (s *Server) getWishlist(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, clientFrom(r.Context()).Wishlist.Snapshot())
}

func (s *Server) addWishlistItem(w http.ResponseWriter, r *http.Request) {
	p, ok := s.productFromBody(w, r)
	if !ok {
		return
	}
	id, _ := strconv.ParseInt(p.ID, 10, 64)

	c := clientFrom(r.Context())
	err := c.Wishlist.Add(r.Context(), wishlist.Entry{ID: id, Title: p.Title, UnitPrice: p.Price, Image: p.Image})
	if !s.stored(w, r, persist.SlotWishlist, "add", err) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, c.Wishlist.Snapshot())
}

func (s *Server) removeWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	c := clientFrom(r.Context())
	if !s.stored(w, r, persist.SlotWishlist, "remove", c.Wishlist.Remove(r.Context(), id)) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, c.Wishlist.Snapshot())
}

type movedResp struct {
	Moved    int               `json:"moved"`
	Cart     cart.Snapshot     `json:"cart"`
	Wishlist wishlist.Snapshot `json:"wishlist"`
}

func (s *Server) moveWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	c := clientFrom(r.Context())
	found, err := c.MoveToCart(r.Context(), id)
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "not on wishlist", nil)
		return
	}
	if !s.stored(w, r, persist.SlotWishlist, "move", err) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, movedResp{Moved: 1, Cart: c.Cart.Snapshot(), Wishlist: c.Wishlist.Snapshot()})
}

func (s *Server) moveAllWishlistItems(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())
	n, err := c.MoveAllToCart(r.Context())
	if !s.stored(w, r, persist.SlotWishlist, "move_all", err) {
		return
	}
	kit.WriteJSON(w, http.StatusOK, movedResp{Moved: n, Cart: c.Cart.Snapshot(), Wishlist: c.Wishlist.Snapshot()})
}

// productFromBody reads {"id": ...} and fetches that product so stored
// lines carry the catalog's title and price rather than the caller's.
func (s *Server) productFromBody(w http.ResponseWriter, r *http.Request) (directory.Product, bool) {
	var req itemReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return directory.Product{}, false
	}
	if _, err := strconv.ParseInt(req.ID.String(), 10, 64); err != nil {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, "id must be an integer", nil)
		return directory.Product{}, false
	}

	p, ok := s.Directory.Get(r.Context(), req.ID.String())
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "product not found", nil)
		return directory.Product{}, false
	}
	if _, err := strconv.ParseInt(p.ID, 10, 64); err != nil {
		s.Log.Error("catalog returned non-numeric id", zap.String("id", p.ID))
		kit.WriteError(w, r, http.StatusBadGateway, "catalog error", nil)
		return directory.Product{}, false
	}
	return p, true
}

func lineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "id must be an integer", nil)
		return 0, false
	}
	return id, true
}

// stored reports whether a store mutation committed, answering 503 when the
// bridge refused the write.
func (s *Server) stored(w http.ResponseWriter, r *http.Request, slot, op string, err error) bool {
	if err != nil {
		s.Log.Error("store write failed", zap.String("slot", slot), zap.String("op", op), zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable", nil)
		return false
	}
	s.mutations.WithLabelValues(slot, op).Inc()
	return true
}

// session

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedReq struct {
	IDToken string `json:"id_token"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, clientFrom(r.Context()).Gate.Snapshot())
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "email/password required", nil)
		return
	}

	snap, err := clientFrom(r.Context()).Gate.SignInElevated(r.Context(), req.Email, req.Password)
	s.signedIn(w, r, snap, err)
}

func (s *Server) loginFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}
	if req.IDToken == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "id_token required", nil)
		return
	}

	snap, err := clientFrom(r.Context()).Gate.SignInFederated(r.Context(), req.IDToken)
	s.signedIn(w, r, snap, err)
}

func (s *Server) signedIn(w http.ResponseWriter, r *http.Request, snap session.Snapshot, err error) {
	if err != nil {
		s.providerError(w, r, err)
		return
	}
	if snap.Identity != nil {
		http.SetCookie(w, s.cookie(tokenCookie, snap.Identity.Token, 0))
	}
	kit.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := clientFrom(r.Context()).Gate.SignOut(r.Context()); err != nil {
		s.providerError(w, r, err)
		return
	}
	s.clearCookie(w, tokenCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) providerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		kit.WriteError(w, r, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, identity.ErrRateLimited):
		kit.WriteError(w, r, http.StatusTooManyRequests, err.Error(), nil)
	case errors.Is(err, identity.ErrConflict):
		kit.WriteError(w, r, http.StatusConflict, err.Error(), nil)
	default:
		s.Log.Error("identity provider failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "identity provider unavailable", nil)
	}
}

// admin

func (s *Server) adminListProducts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "1" {
		if _, err := s.Directory.List(r.Context()); err != nil {
			w.Header().Set(degradedHeader, "1")
		}
	}
	kit.WriteJSON(w, http.StatusOK, s.Directory.Cached())
}

func (s *Server) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req directory.NewProduct
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}

	p, err := s.Directory.Create(r.Context(), req)
	if err != nil {
		s.catalogError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req directory.ProductPatch
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}

	p, err := s.Directory.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.catalogError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.Directory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.catalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) catalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidProduct):
		kit.WriteError(w, r, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, directory.ErrCatalogNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "product not found", nil)
	default:
		kit.WriteError(w, r, http.StatusBadGateway, "catalog error", nil)
	}
}
