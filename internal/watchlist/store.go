package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/domain"
)

// ErrPending is returned when another change for the same movie has not settled yet.
var ErrPending = errors.New("watchlist change already in progress")

// Remote persists the watchlist. catalog.Backend implements it.
type Remote interface {
	WatchlistList(ctx context.Context) ([]domain.MovieSummary, error)
	WatchlistAdd(ctx context.Context, entry domain.WatchlistEntry) error
	WatchlistRemove(ctx context.Context, id int) error
}

// Store applies changes locally first and rolls them back if the remote
// rejects them.
type Store struct {
	remote Remote
	logger *slog.Logger

	mu      sync.Mutex
	items   []domain.MovieSummary
	pending map[int]struct{}
}

func NewStore(remote Remote, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		remote:  remote,
		logger:  logger,
		items:   []domain.MovieSummary{},
		pending: make(map[int]struct{}),
	}
}

// Load replaces the local list with the remote one.
func (s *Store) Load(ctx context.Context) error {
	items, err := s.remote.WatchlistList(ctx)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	loaded := make([]domain.MovieSummary, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		id := item.IdentityKey()
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		loaded = append(loaded, item.Clone())
	}

	s.mu.Lock()
	s.items = loaded
	s.mu.Unlock()
	return nil
}

func (s *Store) Add(ctx context.Context, movie domain.MovieSummary) error {
	id := movie.IdentityKey()
	if id == 0 {
		return catalog.ErrInvalidID
	}

	s.mu.Lock()
	if _, busy := s.pending[id]; busy {
		s.mu.Unlock()
		return ErrPending
	}
	if s.indexLocked(id) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.items = append(s.items, movie.Clone())
	s.pending[id] = struct{}{}
	s.mu.Unlock()

	err := s.remote.WatchlistAdd(ctx, domain.WatchlistEntryFor(movie))

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	if err != nil {
		if index := s.indexLocked(id); index >= 0 {
			s.items = append(s.items[:index], s.items[index+1:]...)
		}
		s.logger.Warn("watchlist add rolled back", slog.Int("movie_id", id), slog.String("error", err.Error()))
		return fmt.Errorf("add %d to watchlist: %w", id, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id int) error {
	if id <= 0 {
		return catalog.ErrInvalidID
	}

	s.mu.Lock()
	if _, busy := s.pending[id]; busy {
		s.mu.Unlock()
		return ErrPending
	}
	index := s.indexLocked(id)
	if index < 0 {
		s.mu.Unlock()
		return nil
	}
	removed := s.items[index]
	s.items = append(s.items[:index:index], s.items[index+1:]...)
	s.pending[id] = struct{}{}
	s.mu.Unlock()

	err := s.remote.WatchlistRemove(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	if err != nil {
		restoreAt := min(index, len(s.items))
		restored := make([]domain.MovieSummary, 0, len(s.items)+1)
		restored = append(restored, s.items[:restoreAt]...)
		restored = append(restored, removed)
		restored = append(restored, s.items[restoreAt:]...)
		s.items = restored
		s.logger.Warn("watchlist remove rolled back", slog.Int("movie_id", id), slog.String("error", err.Error()))
		return fmt.Errorf("remove %d from watchlist: %w", id, err)
	}
	return nil
}

// Toggle adds the movie when absent and removes it otherwise.
func (s *Store) Toggle(ctx context.Context, movie domain.MovieSummary) (bool, error) {
	if s.Contains(movie.IdentityKey()) {
		return false, s.Remove(ctx, movie.IdentityKey())
	}
	return true, s.Add(ctx, movie)
}

func (s *Store) Contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

func (s *Store) Items() []domain.MovieSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneMovies(s.items)
}

func (s *Store) indexLocked(id int) int {
	for i, item := range s.items {
		if item.IdentityKey() == id {
			return i
		}
	}
	return -1
}
