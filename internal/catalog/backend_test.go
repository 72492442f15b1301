package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cineverse/discovery/internal/domain"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestBackend(t *testing.T, handler http.HandlerFunc, cfg BackendConfig) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	if cfg.Retry == nil {
		cfg.Retry = fastRetry()
	}
	return NewBackend(cfg)
}

func TestBackendSearchSendsQueryAndDecodesPage(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/movies/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "star wars" {
			t.Errorf("expected trimmed query, got %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected page 2, got %q", got)
		}
		_, _ = w.Write([]byte(`{"page":2,"total_pages":5,"results":[{"id":11,"title":"Star Wars"}]}`))
	}, BackendConfig{})

	page, err := backend.Search(context.Background(), "  star wars ", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Page != 2 || page.TotalPages != 5 || len(page.Results) != 1 || page.Results[0].ID != 11 {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestBackendSearchRejectsEmptyQuery(t *testing.T) {
	var calls atomic.Int32
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, BackendConfig{})

	if _, err := backend.Search(context.Background(), "   ", 1); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no request for empty query")
	}
}

func TestBackendListByCategoryRoutes(t *testing.T) {
	seen := make(chan string, 4)
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL.RequestURI()
		_, _ = w.Write([]byte(`{"results":[{"id":1}]}`))
	}, BackendConfig{})

	cases := map[string]string{
		"trending":         "/api/movies/trending",
		"latest":           "/api/movies/latest?page=1",
		"action_adventure": "/api/movies/genre/action_adventure?page=1",
	}
	for key, want := range cases {
		if _, err := backend.ListByCategory(context.Background(), key, 0); err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if got := <-seen; got != want {
			t.Fatalf("%s: expected %s, got %s", key, want, got)
		}
	}

	if _, err := backend.ListByCategory(context.Background(), "western", 1); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestBackendStatusErrorCarriesMessage(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "movie not found"})
	}, BackendConfig{})

	_, err := backend.Details(context.Background(), 99)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Message != "movie not found" {
		t.Fatalf("unexpected status error: %#v", statusErr)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected 404 to match ErrNotFound")
	}
}

func TestBackendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":3,"title":"C"}]`))
	}, BackendConfig{})

	items, err := backend.ListByCategory(context.Background(), "drama", 1)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(items) != 1 || calls.Load() != 3 {
		t.Fatalf("expected 3 calls and 1 item, got %d calls, %d items", calls.Load(), len(items))
	}
}

func TestBackendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, BackendConfig{})

	if _, err := backend.Search(context.Background(), "x", 1); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt for 400, got %d", calls.Load())
	}
}

func TestBackendCachesCategoryLists(t *testing.T) {
	var calls atomic.Int32
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"results":[{"id":1,"genre_ids":[18]},{"id":2}]}`))
	}, BackendConfig{Cache: NewMemoryCache(10)})

	first, err := backend.ListByCategory(context.Background(), "drama", 1)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := backend.ListByCategory(context.Background(), "Drama", 1)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected cached second call, got %d requests", calls.Load())
	}
	if len(first) != len(second) || second[0].GenreIDs[0] != 18 {
		t.Fatalf("cached list differs: %#v vs %#v", first, second)
	}
	if second[1].HasGenreShape() {
		t.Fatalf("absent genre fields must stay absent through the cache: %#v", second[1])
	}
}

func TestBackendSendsBearerToken(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer opaque-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}, BackendConfig{Token: "opaque-token"})

	if _, err := backend.Reviews(context.Background(), 5); err != nil {
		t.Fatalf("reviews: %v", err)
	}
}

func TestBackendDetailsFillsMissingID(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Heat","overview":"x"}`))
	}, BackendConfig{})

	details, err := backend.Details(context.Background(), 949)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.ID != 949 || details.DisplayTitle() != "Heat" {
		t.Fatalf("unexpected details: %#v", details)
	}
	if _, err := backend.Details(context.Background(), 0); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestBackendWatchlistRoundTrip(t *testing.T) {
	var posted domain.WatchlistEntry
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/user/watchlist":
			_ = json.NewDecoder(r.Body).Decode(&posted)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/api/user/watchlist":
			_, _ = w.Write([]byte(`{"watchlist":[{"tmdbId":7,"title":"Heat","poster":"/h.jpg"}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/user/watchlist/7":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}, BackendConfig{Token: "opaque-token"})

	ctx := context.Background()
	entry := domain.WatchlistEntryFor(domain.MovieSummary{ID: 7, Title: "Heat", PosterPath: "/h.jpg"})
	if err := backend.WatchlistAdd(ctx, entry); err != nil {
		t.Fatalf("add: %v", err)
	}
	if posted.TMDBID != 7 || posted.Title != "Heat" || posted.Poster != "/h.jpg" {
		t.Fatalf("unexpected payload: %#v", posted)
	}
	items, err := backend.WatchlistList(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != 7 || items[0].PosterPath != "/h.jpg" {
		t.Fatalf("unexpected items: %#v", items)
	}
	if err := backend.WatchlistRemove(ctx, 7); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestBackendWatchlistUnauthorizedIsSessionExpired(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, BackendConfig{Token: "opaque-token"})

	err := backend.WatchlistRemove(context.Background(), 3)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
