package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"Storefront/internal/auth"
)

const testSecret = "test-secret-test-secret-test-secret"

type fakeVerifier map[string]auth.FederatedIdentity

func (f fakeVerifier) Verify(_ context.Context, idToken string) (auth.FederatedIdentity, error) {
	id, ok := f[idToken]
	if !ok {
		return auth.FederatedIdentity{}, auth.ErrFederatedRejected
	}
	return id, nil
}

func newAuthTS(t *testing.T) (*httptest.Server, *auth.MemStore) {
	t.Helper()

	store := auth.NewMemStore()
	if err := auth.EnsureAdmin(context.Background(), store, "admin@example.com", "admin-password", "u_admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	s := &auth.Server{
		Log:     zap.NewNop(),
		Store:   store,
		JWT:     auth.NewTokenMaker(testSecret),
		Revoked: auth.NewRevocations(),
		Roles:   auth.StoreRoles{Store: store},
		Federated: fakeVerifier{
			"google-ok": {UID: "g_123", Email: "Shopper@Example.com"},
		},
	}

	ts := httptest.NewServer(auth.NewHandler(s, auth.HTTPDeps{Log: zap.NewNop(), Service: "auth"}))
	t.Cleanup(ts.Close)
	return ts, store
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func login(t *testing.T, base, email, password string) tokenBody {
	t.Helper()

	resp, raw := doJSON(t, http.MethodPost, base+"/auth/login", map[string]string{"email": email, "password": password}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d body=%s", resp.StatusCode, raw)
	}
	var tb tokenBody
	if err := json.Unmarshal(raw, &tb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tb.AccessToken == "" {
		t.Fatalf("empty token")
	}
	return tb
}

func isAdmin(t *testing.T, base, uid, token string) (int, bool) {
	t.Helper()

	resp, raw := doJSON(t, http.MethodGet, base+"/admins/"+uid, nil, token)
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, false
	}
	var body struct {
		IsAdmin bool `json:"isAdmin"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, body.IsAdmin
}

func TestRegisterLoginWhoAmI(t *testing.T) {
	ts, _ := newAuthTS(t)

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/auth/register", map[string]string{
		"email": "user@example.com", "password": "password123",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", resp.StatusCode, raw)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/auth/register", map[string]string{
		"email": "USER@example.com", "password": "password123",
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status=%d", resp.StatusCode)
	}

	tb := login(t, ts.URL, "user@example.com", "password123")
	if tb.User.Role != auth.RoleUser {
		t.Fatalf("role=%q", tb.User.Role)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/auth/whoami", nil, tb.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("whoami status=%d body=%s", resp.StatusCode, raw)
	}
	var who struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	_ = json.Unmarshal(raw, &who)
	if who.ID != tb.User.ID || who.Email != "user@example.com" {
		t.Fatalf("whoami=%+v", who)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	ts, _ := newAuthTS(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/login", map[string]string{
		"email": "admin@example.com", "password": "nope-nope",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestLogin_RejectsUnknownFields(t *testing.T) {
	ts, _ := newAuthTS(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/login", map[string]string{
		"email": "admin@example.com", "password": "admin-password", "role": "admin",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	ts, _ := newAuthTS(t)
	tb := login(t, ts.URL, "admin@example.com", "admin-password")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/logout", nil, tb.AccessToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status=%d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/auth/whoami", nil, tb.AccessToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("whoami after logout status=%d", resp.StatusCode)
	}
}

func TestAdmins_RoleLookup(t *testing.T) {
	ts, _ := newAuthTS(t)

	admin := login(t, ts.URL, "admin@example.com", "admin-password")
	if code, ok := isAdmin(t, ts.URL, admin.User.ID, admin.AccessToken); code != http.StatusOK || !ok {
		t.Fatalf("admin: code=%d isAdmin=%v", code, ok)
	}

	doJSON(t, http.MethodPost, ts.URL+"/auth/register", map[string]string{
		"email": "user@example.com", "password": "password123",
	}, "")
	user := login(t, ts.URL, "user@example.com", "password123")
	if code, ok := isAdmin(t, ts.URL, user.User.ID, user.AccessToken); code != http.StatusOK || ok {
		t.Fatalf("user: code=%d isAdmin=%v", code, ok)
	}

	if code, _ := isAdmin(t, ts.URL, admin.User.ID, user.AccessToken); code != http.StatusForbidden {
		t.Fatalf("asking about someone else: code=%d", code)
	}
	if code, _ := isAdmin(t, ts.URL, admin.User.ID, ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous: code=%d", code)
	}
}

func TestFederated_UpsertsAndIssuesToken(t *testing.T) {
	ts, store := newAuthTS(t)

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/auth/federated", map[string]string{"id_token": "google-ok"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("federated status=%d body=%s", resp.StatusCode, raw)
	}
	var tb tokenBody
	_ = json.Unmarshal(raw, &tb)
	if tb.User.ID != "g_123" || tb.User.Email != "shopper@example.com" || tb.User.Role != auth.RoleUser {
		t.Fatalf("user=%+v", tb.User)
	}

	u, err := store.ByID(context.Background(), "g_123")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if _, err := store.Verify(context.Background(), u.Email, ""); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("federated account accepted a password: %v", err)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/auth/federated", map[string]string{"id_token": "forged"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged status=%d", resp.StatusCode)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	ts, _ := newAuthTS(t)

	var last int
	for i := 0; i < 6; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/login", map[string]string{
			"email": "admin@example.com", "password": "wrong-password",
		}, "")
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("6th attempt status=%d", last)
	}
}
