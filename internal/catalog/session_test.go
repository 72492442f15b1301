package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestCheckSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := CheckSession("", now); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := CheckSession("opaque", now); err != nil {
		t.Fatalf("expected opaque token to pass, got %v", err)
	}
	if err := CheckSession(signedToken(t, now.Add(time.Hour)), now); err != nil {
		t.Fatalf("expected live token to pass, got %v", err)
	}
	if err := CheckSession(signedToken(t, now.Add(-time.Minute)), now); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestWatchlistExpiredTokenSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	backend := NewBackend(BackendConfig{
		BaseURL: server.URL,
		Token:   signedToken(t, time.Now().Add(-time.Hour)),
		Retry:   fastRetry(),
	})

	if _, err := backend.WatchlistList(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no request with an expired token, got %d", calls.Load())
	}
}
