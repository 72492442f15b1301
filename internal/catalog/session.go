package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cineverse/discovery/internal/domain"
)

var (
	ErrNoSession      = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired")
)

// CheckSession inspects the exp claim of a bearer token without verifying its
// signature; the backend remains the authority. Opaque (non-JWT) tokens pass.
func CheckSession(token string, now time.Time) error {
	if token == "" {
		return ErrNoSession
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return ErrSessionExpired
	}
	return nil
}

func (b *Backend) ensureSession() error {
	return CheckSession(b.currentToken(), b.now())
}

// WatchlistList returns the caller's saved titles.
func (b *Backend) WatchlistList(ctx context.Context) ([]domain.MovieSummary, error) {
	if err := b.ensureSession(); err != nil {
		return nil, err
	}
	body, err := b.do(ctx, "watchlist_list", http.MethodGet, "/api/user/watchlist", nil, nil)
	if err != nil {
		return nil, sessionError(err)
	}
	return domain.DecodeMovieList(body)
}

func (b *Backend) WatchlistAdd(ctx context.Context, entry domain.WatchlistEntry) error {
	if entry.TMDBID <= 0 {
		return ErrInvalidID
	}
	if err := b.ensureSession(); err != nil {
		return err
	}
	_, err := b.do(ctx, "watchlist_add", http.MethodPost, "/api/user/watchlist", nil, entry)
	return sessionError(err)
}

func (b *Backend) WatchlistRemove(ctx context.Context, id int) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if err := b.ensureSession(); err != nil {
		return err
	}
	_, err := b.do(ctx, "watchlist_remove", http.MethodDelete, "/api/user/watchlist/"+strconv.Itoa(id), nil, nil)
	return sessionError(err)
}

// sessionError maps a 401 from the backend onto ErrSessionExpired.
func sessionError(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		return errors.Join(ErrSessionExpired, err)
	}
	return err
}
