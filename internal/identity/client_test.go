package identity_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"Storefront/internal/auth"
	"Storefront/internal/identity"
	"Storefront/internal/session"
)

func newAuthTS(t *testing.T) *httptest.Server {
	t.Helper()

	store := auth.NewMemStore()
	ctx := context.Background()
	if err := auth.EnsureAdmin(ctx, store, "admin@example.com", "admin-password", "u_admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if err := store.Create(ctx, "user@example.com", "password123", auth.RoleUser, "u_user"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s := &auth.Server{
		Log:     zap.NewNop(),
		Store:   store,
		JWT:     auth.NewTokenMaker("test-secret-test-secret-test-secret"),
		Revoked: auth.NewRevocations(),
		Roles:   auth.StoreRoles{Store: store},
	}
	ts := httptest.NewServer(auth.NewHandler(s, auth.HTTPDeps{Log: zap.NewNop(), Service: "auth"}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_SignInVerifyRoleSignOut(t *testing.T) {
	ts := newAuthTS(t)
	c := identity.NewClient(ts.URL, 2*time.Second)
	ctx := context.Background()

	id, err := c.SignInWithPassword(ctx, "admin@example.com", "admin-password")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if id.UID != "u_admin" || id.Token == "" {
		t.Fatalf("id=%+v", id)
	}

	got, err := c.Verify(ctx, id.Token)
	if err != nil || got.UID != "u_admin" {
		t.Fatalf("Verify: id=%+v err=%v", got, err)
	}

	elevated, err := c.IsElevated(ctx, id)
	if err != nil || !elevated {
		t.Fatalf("IsElevated: %v %v", elevated, err)
	}

	if err := c.SignOut(ctx, id); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := c.Verify(ctx, id.Token); !errors.Is(err, session.ErrUnauthenticated) {
		t.Fatalf("Verify after sign-out: %v", err)
	}
	if err := c.SignOut(ctx, id); err != nil {
		t.Fatalf("second SignOut: %v", err)
	}
}

func TestClient_RegularUserNotElevated(t *testing.T) {
	ts := newAuthTS(t)
	c := identity.NewClient(ts.URL, 2*time.Second)
	ctx := context.Background()

	id, err := c.SignInWithPassword(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if elevated, err := c.IsElevated(ctx, id); err != nil || elevated {
		t.Fatalf("IsElevated: %v %v", elevated, err)
	}
}

func TestClient_Errors(t *testing.T) {
	ts := newAuthTS(t)
	c := identity.NewClient(ts.URL, 2*time.Second)
	ctx := context.Background()

	if _, err := c.SignInWithPassword(ctx, "admin@example.com", "nope-nope"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("bad password: %v", err)
	}
	if _, err := c.SignInFederated(ctx, "whatever"); !errors.Is(err, identity.ErrUnavailable) {
		t.Fatalf("federated without verifier: %v", err)
	}

	down := identity.NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	if _, err := down.Verify(ctx, "tok"); !errors.Is(err, identity.ErrUnavailable) {
		t.Fatalf("down: %v", err)
	}
}
