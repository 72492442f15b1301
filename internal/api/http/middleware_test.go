package apihttp

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/api/feed":         "/api/feed",
		"/api/feed/health":  "/api/feed/health",
		"/api/movies/603":   "/api/movies/{id}",
		"/api/movies/":      "/other",
		"/ws/suggest":       "/ws/suggest",
		"/wp-admin/install": "/other",
	}
	for path, want := range cases {
		if got := normalizeRoute(path); got != want {
			t.Fatalf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestClientLimiterIsPerClient(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newClientLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("10.0.0.1") || limiter.allow("10.0.0.1") {
		t.Fatalf("expected one request per second for the first client")
	}
	if !limiter.allow("10.0.0.2") {
		t.Fatalf("expected an independent bucket for the second client")
	}

	now = now.Add(time.Second)
	if !limiter.allow("10.0.0.1") {
		t.Fatalf("expected the bucket to refill")
	}

	now = now.Add(limiter.idleTTL + time.Second)
	limiter.allow("10.0.0.3")
	if got := limiter.size(); got != 1 {
		t.Fatalf("expected idle buckets swept, got %d", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/genres", nil))
	if seen == "" || rec.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected minted id echoed, got %q and %q", seen, rec.Header().Get(requestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/genres", nil)
	req.Header.Set(requestIDHeader, "trace-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "trace-42" || rec.Header().Get(requestIDHeader) != "trace-42" {
		t.Fatalf("expected incoming id reused, got %q", seen)
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	handler := recoveryMiddleware(discardLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestClientIPIgnoresForwardedHeadersFromUntrustedPeers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	if got := (clientResolver{}).clientIP(req); got != "192.0.2.7" {
		t.Fatalf("expected the peer address, got %q", got)
	}
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	clients := clientResolver{trusted: trusted}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.66, 203.0.113.9 , 10.0.0.5")
	if got := clients.clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected the rightmost untrusted hop, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "203.0.113.20")
	if got := clients.clientIP(req); got != "203.0.113.20" {
		t.Fatalf("expected X-Real-IP from a trusted proxy, got %q", got)
	}

	req.RemoteAddr = "192.0.2.1:80"
	req.Header.Set("X-Real-IP", "not-an-ip")
	if got := clients.clientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected the peer when no usable header remains, got %q", got)
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("expected an invalid prefix to be rejected")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Fatalf("expected a hostname to be rejected")
	}
	prefixes, err := ParseTrustedProxies([]string{"", "::1"})
	if err != nil || len(prefixes) != 1 || prefixes[0] != netip.MustParsePrefix("::1/128") {
		t.Fatalf("unexpected prefixes %v, err %v", prefixes, err)
	}
}

func TestRateLimitIgnoresRotatedForwardedFor(t *testing.T) {
	handler := rateLimitMiddleware(1, 1, clientResolver{}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
		req.RemoteAddr = "192.0.2.50:40000"
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		} else if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	if allowed != 1 {
		t.Fatalf("expected a single request through for one peer, got %d", allowed)
	}
}
