package watchlist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/domain"
)

type fakeRemote struct {
	mu        sync.Mutex
	list      []domain.MovieSummary
	listErr   error
	addErr    error
	removeErr error
	added     []domain.WatchlistEntry
	removed   []int
	gate      chan struct{}
	entered   chan struct{}
}

func (f *fakeRemote) wait() {
	if f.gate == nil {
		return
	}
	f.entered <- struct{}{}
	<-f.gate
}

func (f *fakeRemote) WatchlistList(context.Context) ([]domain.MovieSummary, error) {
	return f.list, f.listErr
}

func (f *fakeRemote) WatchlistAdd(_ context.Context, entry domain.WatchlistEntry) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, entry)
	return f.addErr
}

func (f *fakeRemote) WatchlistRemove(_ context.Context, id int) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.removeErr
}

func TestAddIsVisibleBeforeRemoteSettles(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{}), entered: make(chan struct{})}
	store := NewStore(remote, nil)

	done := make(chan error, 1)
	go func() {
		done <- store.Add(context.Background(), domain.MovieSummary{ID: 7, Title: "Alien", PosterPath: "/a.jpg"})
	}()

	<-remote.entered
	if !store.Contains(7) {
		t.Fatalf("expected optimistic insert while the request is pending")
	}
	if err := store.Add(context.Background(), domain.MovieSummary{ID: 7}); !errors.Is(err, ErrPending) {
		t.Fatalf("expected ErrPending for a concurrent change, got %v", err)
	}
	close(remote.gate)
	if err := <-done; err != nil {
		t.Fatalf("add: %v", err)
	}

	if len(remote.added) != 1 || remote.added[0].TMDBID != 7 || remote.added[0].Poster != "/a.jpg" {
		t.Fatalf("unexpected remote payload: %#v", remote.added)
	}
}

func TestAddRollsBackOnFailure(t *testing.T) {
	remote := &fakeRemote{addErr: catalog.ErrSessionExpired}
	store := NewStore(remote, nil)

	err := store.Add(context.Background(), domain.MovieSummary{ID: 7})
	if !errors.Is(err, catalog.ErrSessionExpired) {
		t.Fatalf("expected session error, got %v", err)
	}
	if store.Contains(7) || len(store.Items()) != 0 {
		t.Fatalf("expected rollback, got %#v", store.Items())
	}
}

func TestRemoveRollsBackToOriginalPosition(t *testing.T) {
	remote := &fakeRemote{list: []domain.MovieSummary{{ID: 1}, {ID: 2}, {ID: 3}}}
	store := NewStore(remote, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	remote.removeErr = errors.New("502")
	if err := store.Remove(context.Background(), 2); err == nil {
		t.Fatalf("expected remove failure")
	}
	items := store.Items()
	if len(items) != 3 || items[1].ID != 2 {
		t.Fatalf("expected item 2 restored in place, got %#v", items)
	}

	remote.removeErr = nil
	if err := store.Remove(context.Background(), 2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if store.Contains(2) || len(store.Items()) != 2 {
		t.Fatalf("expected item 2 removed, got %#v", store.Items())
	}
}

func TestLoadDropsDuplicatesAndMissingIDs(t *testing.T) {
	remote := &fakeRemote{list: []domain.MovieSummary{{ID: 4}, {Title: "ghost"}, {ID: 4}, {ID: 5}}}
	store := NewStore(remote, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if items := store.Items(); len(items) != 2 {
		t.Fatalf("expected 2 items, got %#v", items)
	}

	remote.listErr = errors.New("down")
	if err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if len(store.Items()) != 2 {
		t.Fatalf("failed load must keep the previous list")
	}
}

func TestToggle(t *testing.T) {
	remote := &fakeRemote{}
	store := NewStore(remote, nil)
	movie := domain.MovieSummary{ID: 11}

	added, err := store.Toggle(context.Background(), movie)
	if err != nil || !added || !store.Contains(11) {
		t.Fatalf("expected add, got added=%v err=%v", added, err)
	}
	added, err = store.Toggle(context.Background(), movie)
	if err != nil || added || store.Contains(11) {
		t.Fatalf("expected remove, got added=%v err=%v", added, err)
	}
	if _, err := store.Toggle(context.Background(), domain.MovieSummary{}); !errors.Is(err, catalog.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
