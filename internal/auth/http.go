package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

const (
	minPasswordLen  = 8
	defaultTokenTTL = time.Hour
)

type Server struct {
	Log       *zap.Logger
	Store     UserStore
	JWT       *TokenMaker
	Revoked   *Revocations
	Roles     RoleSource
	Federated FederatedVerifier
	TokenTTL  time.Duration
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedReq struct {
	IDToken string `json:"id_token"`
}

type userResp struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type tokenResp struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        userResp  `json:"user"`
}

func toUserResp(u User) userResp {
	return userResp{ID: u.ID, Email: u.Email, Role: u.Role}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.Log.Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.Password = normalizePassword(req.Password)

	if req.Email == "" || req.Password == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "email/password required", nil)
		return
	}
	if len(req.Password) < minPasswordLen {
		kit.WriteError(w, r, http.StatusBadRequest, "password too short", map[string]any{"min_len": minPasswordLen})
		return
	}

	id := "u_" + uuid.NewString()

	err := s.Store.Create(r.Context(), req.Email, req.Password, RoleUser, id)
	if errors.Is(err, ErrEmailExists) {
		kit.WriteError(w, r, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		s.Log.Error("register failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	kit.WriteJSON(w, http.StatusCreated, userResp{ID: id, Email: req.Email, Role: RoleUser})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.Password = normalizePassword(req.Password)

	if req.Email == "" || req.Password == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "email/password required", nil)
		return
	}

	u, err := s.Store.Verify(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		kit.WriteError(w, r, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if err != nil {
		s.Log.Error("login failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	s.issue(w, r, u)
}

func (s *Server) handleFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.BadJSON(w, r, err)
		return
	}
	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.IDToken == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "id_token required", nil)
		return
	}

	if s.Federated == nil {
		kit.WriteError(w, r, http.StatusNotImplemented, ErrFederatedDisabled.Error(), nil)
		return
	}

	fid, err := s.Federated.Verify(r.Context(), req.IDToken)
	switch {
	case errors.Is(err, ErrFederatedDisabled):
		kit.WriteError(w, r, http.StatusNotImplemented, err.Error(), nil)
		return
	case err != nil:
		s.Log.Info("federated credential rejected", zap.Error(err))
		kit.WriteError(w, r, http.StatusUnauthorized, "invalid credentials", nil)
		return
	case fid.Email == "":
		kit.WriteError(w, r, http.StatusUnauthorized, "federated account has no email", nil)
		return
	}

	u, err := s.Store.UpsertFederated(r.Context(), fid.UID, fid.Email)
	if errors.Is(err, ErrEmailExists) {
		kit.WriteError(w, r, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		s.Log.Error("federated upsert failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	s.issue(w, r, u)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, u User) {
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	tok, exp, err := s.JWT.New(u, ttl)
	if err != nil {
		s.Log.Error("token issue", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	kit.WriteJSON(w, http.StatusOK, tokenResp{AccessToken: tok, ExpiresAt: exp, User: toUserResp(u)})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	kit.WriteJSON(w, http.StatusOK, userResp{ID: claims.UserID, Email: claims.Email, Role: claims.Role})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	s.Revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdmin answers whether uid holds the administrative role. Callers may
// only ask about themselves.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	uid := chi.URLParam(r, "uid")
	if uid != claims.UserID {
		kit.WriteError(w, r, http.StatusForbidden, "forbidden", nil)
		return
	}

	isAdmin, err := s.Roles.IsAdmin(r.Context(), uid)
	if err != nil {
		s.Log.Error("role lookup failed", zap.String("uid", uid), zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "role lookup failed", nil)
		return
	}

	kit.WriteJSON(w, http.StatusOK, map[string]bool{"isAdmin": isAdmin})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (Claims, bool) {
	raw, ok := kit.BearerToken(r)
	if !ok {
		kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
		return Claims{}, false
	}

	claims, err := s.JWT.Parse(raw)
	if err != nil || s.Revoked.Revoked(claims.ID) {
		kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
		return Claims{}, false
	}
	return claims, true
}
