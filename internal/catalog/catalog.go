package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cineverse/discovery/internal/domain"
)

var (
	ErrInvalidQuery    = errors.New("invalid query")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidID       = errors.New("invalid movie id")
	ErrNotFound        = errors.New("not found")
)

// Client is the catalog surface the suggest engine, the feed aggregator and the
// details loader depend on.
type Client interface {
	Search(ctx context.Context, query string, page int) (domain.MoviePage, error)
	ListByCategory(ctx context.Context, key string, page int) ([]domain.MovieSummary, error)
	Details(ctx context.Context, id int) (domain.MovieDetails, error)
	Reviews(ctx context.Context, id int) ([]domain.Review, error)
}

// StatusError is returned for non-2xx catalog responses.
type StatusError struct {
	Operation  string
	StatusCode int
	Message    string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Retryable reports whether the response is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// CategoryPath resolves a category key to its backend route.
func CategoryPath(key string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	switch normalized {
	case domain.CategoryTrending:
		return "/api/movies/trending", nil
	case domain.CategoryLatest:
		return "/api/movies/latest", nil
	case "", domain.GenreAll:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}
	if _, ok := domain.LookupGenre(normalized); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}
	return "/api/movies/genre/" + normalized, nil
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
