package kit

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestListeners_SubscribeNotifyCancel(t *testing.T) {
	var l Listeners[int]
	var got []string

	cancelA := l.Subscribe(func(v int) { got = append(got, "a") })
	l.Subscribe(func(v int) { got = append(got, "b") })

	l.Notify(1)
	cancelA()
	cancelA()
	l.Notify(2)

	if strings.Join(got, ",") != "a,b,b" {
		t.Fatalf("got=%v", got)
	}
	if l.Len() != 1 {
		t.Fatalf("len=%d", l.Len())
	}
}

func TestListeners_CancelInsideCallback(t *testing.T) {
	var l Listeners[string]
	calls := 0

	var cancel func()
	cancel = l.Subscribe(func(string) {
		calls++
		cancel()
	})

	l.Notify("x")
	l.Notify("y")
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestIPRateLimiter_Window(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatalf("first two hits denied")
	}
	if l.Allow("1.1.1.1") {
		t.Fatalf("third hit allowed")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatalf("other ip denied")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("1.1.1.1") {
		t.Fatalf("hit after window denied")
	}
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve("10.0.0.1, 10.0.0.9"); rec.Code != http.StatusNoContent {
		t.Fatalf("first code=%d", rec.Code)
	}
	rec := serve("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("second code=%d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	cases := []struct {
		name string
		in   string
		ok   bool
		err  error
	}{
		{name: "valid", in: `{"name":"x"}`, ok: true},
		{name: "unknown field", in: `{"name":"x","extra":1}`},
		{name: "trailing object", in: `{"name":"x"}{"name":"y"}`, err: ErrTrailingData},
		{name: "empty", in: ``},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.in))
			var b body
			err := DecodeJSON(httptest.NewRecorder(), req, &b)
			if tc.ok != (err == nil) {
				t.Fatalf("err=%v", err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Fatalf("err=%v want=%v", err, tc.err)
			}
		})
	}
}

func TestMetricsAuth(t *testing.T) {
	h := MetricsAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tc := range []struct {
		authz string
		want  int
	}{
		{"", http.StatusForbidden},
		{"Bearer nope", http.StatusForbidden},
		{"Bearer s3cret", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if tc.authz != "" {
			req.Header.Set("Authorization", tc.authz)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("authz=%q code=%d want=%d", tc.authz, rec.Code, tc.want)
		}
	}

	closed := MetricsAuth("")(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	closed.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("empty token code=%d", rec.Code)
	}
}

func TestNewCounterVec_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCounterVec(reg, "test_ops_total", "ops", "op")
	c.WithLabelValues("add").Inc()

	if got := testutil.ToFloat64(c.WithLabelValues("add")); got != 1 {
		t.Fatalf("count=%v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "test_ops_total"); err != nil || n != 1 {
		t.Fatalf("gathered=%d err=%v", n, err)
	}

	NewCounterVec(nil, "test_ops_total", "ops", "op").WithLabelValues("x").Inc()
}

func TestNewRouter_ServesMetricsBehindToken(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRouter(RouterDeps{Service: "svc", Registry: reg, MetricsEnabled: true, MetricsToken: "tok"})
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ping code=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("metrics without token code=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",path="/ping",service="svc",status="204"} 1`) {
		t.Fatalf("request not counted:\n%s", rec.Body.String())
	}
}

func TestNewRouter_WithoutRegistryHasNoMetrics(t *testing.T) {
	r := NewRouter(RouterDeps{MetricsEnabled: true})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}
}
