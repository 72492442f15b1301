package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/feed"
	"cineverse/discovery/internal/suggest"
	"cineverse/discovery/internal/watchlist"
)

type manualTimer struct {
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) suggest.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

// fireLast runs the newest live timer on the calling goroutine.
func (s *manualScheduler) fireLast(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	var timer *manualTimer
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].stopped {
			timer = s.timers[i]
			break
		}
	}
	s.mu.Unlock()
	if timer == nil {
		t.Fatalf("no armed timer")
	}
	timer.stopped = true
	timer.fn()
}

type fakeCatalog struct {
	pages      map[string]domain.MoviePage
	categories map[string][]domain.MovieSummary
}

func (f *fakeCatalog) Search(_ context.Context, query string, _ int) (domain.MoviePage, error) {
	return f.pages[query], nil
}

func (f *fakeCatalog) ListByCategory(_ context.Context, key string, _ int) ([]domain.MovieSummary, error) {
	return f.categories[key], nil
}

func (f *fakeCatalog) Details(_ context.Context, id int) (domain.MovieDetails, error) {
	return domain.MovieDetails{MovieSummary: domain.MovieSummary{ID: id, Title: "Details"}, Overview: "A story."}, nil
}

func (f *fakeCatalog) Reviews(context.Context, int) ([]domain.Review, error) {
	return nil, nil
}

type memoryRemote struct{}

func (memoryRemote) WatchlistList(context.Context) ([]domain.MovieSummary, error) { return nil, nil }
func (memoryRemote) WatchlistAdd(context.Context, domain.WatchlistEntry) error   { return nil }
func (memoryRemote) WatchlistRemove(context.Context, int) error                  { return nil }

func newTestModel(t *testing.T) (*Model, *manualScheduler, *fakeCatalog) {
	t.Helper()
	client := &fakeCatalog{
		pages: map[string]domain.MoviePage{
			"al": {Results: []domain.MovieSummary{{ID: 348, Title: "Alien"}, {ID: 679, Title: "Aliens"}}},
		},
		categories: map[string][]domain.MovieSummary{
			"trending": {{ID: 1, Title: "Trending One", Popularity: 5, GenreIDs: []int{18}}},
			"thriller": {{ID: 2, Title: "Thriller Two", Popularity: 9, GenreIDs: []int{53}}},
		},
	}
	scheduler := &manualScheduler{}
	aggregator := feed.NewAggregator(client, []domain.Category{{Key: "trending"}, {Key: "thriller"}}, feed.WithName("test"))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := NewModel(ctx, Deps{
		Catalog:        client,
		Feed:           aggregator,
		Watchlist:      watchlist.NewStore(memoryRemote{}, nil),
		SuggestOptions: []suggest.Option{suggest.WithScheduler(scheduler)},
	})
	t.Cleanup(m.Close)
	return m, scheduler, client
}

func typeText(m *Model, text string) {
	for _, r := range text {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// drain applies every queued engine event and returns the commands they produced.
func drain(m *Model) []tea.Cmd {
	var cmds []tea.Cmd
	for {
		select {
		case event := <-m.events:
			if cmd := m.applySuggestEvent(event); cmd != nil {
				cmds = append(cmds, cmd)
			}
		default:
			return cmds
		}
	}
}

func TestTypingDrivesSuggestEngine(t *testing.T) {
	m, scheduler, _ := newTestModel(t)

	typeText(m, "al")
	if got := m.engine.State(); got.Query != "al" || !got.Pending {
		t.Fatalf("expected pending lookup for %q, got %#v", "al", got)
	}

	scheduler.fireLast(t)
	drain(m)
	if !m.suggestion.Open || len(m.suggestion.Suggestions) != 2 {
		t.Fatalf("expected open list with 2 suggestions, got %#v", m.suggestion)
	}
	if view := m.View(); !strings.Contains(view, "Aliens") {
		t.Fatalf("expected suggestions in view, got:\n%s", view)
	}
}

func TestEnterOnHighlightOpensDetails(t *testing.T) {
	m, scheduler, _ := newTestModel(t)
	typeText(m, "al")
	scheduler.fireLast(t)
	drain(m)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	cmds := drain(m)
	if len(cmds) != 1 {
		t.Fatalf("expected one details command, got %d", len(cmds))
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input cleared after selection")
	}

	m.Update(cmds[0]())
	if m.view != DetailsView || m.details == nil || m.details.Movie.ID != 348 {
		t.Fatalf("expected details for 348, got view=%d details=%#v", m.view, m.details)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.view != SuggestView {
		t.Fatalf("expected esc to return to the search view")
	}
}

func TestEnterWithoutHighlightSubmitsSearch(t *testing.T) {
	m, scheduler, _ := newTestModel(t)
	typeText(m, "al")
	scheduler.fireLast(t)
	drain(m)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	cmds := drain(m)
	if len(cmds) != 1 {
		t.Fatalf("expected one search command, got %d", len(cmds))
	}
	m.Update(cmds[0]())
	if m.view != ResultsView || len(m.results.Results) != 2 || m.resultsQuery != "al" {
		t.Fatalf("expected results view, got view=%d results=%#v", m.view, m.results)
	}
}

func TestFeedViewCyclesGenreAndSort(t *testing.T) {
	m, _, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.view != FeedView {
		t.Fatalf("expected feed view after tab")
	}
	m.Update(m.refreshFeed()())
	if len(m.feedSnapshot.Items) != 2 || m.feedSnapshot.Items[0].ID != 2 {
		t.Fatalf("expected popularity-sorted feed, got %#v", m.feedSnapshot.Items)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	if m.feedSnapshot.Genre != "thriller" || len(m.feedSnapshot.Items) != 1 {
		t.Fatalf("expected thriller filter, got %s with %d items", m.feedSnapshot.Genre, len(m.feedSnapshot.Items))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if m.feedSnapshot.SortBy != domain.SortByRating {
		t.Fatalf("expected rating sort, got %s", m.feedSnapshot.SortBy)
	}
	if view := m.View(); !strings.Contains(view, "Thriller Two") {
		t.Fatalf("expected thriller item in view, got:\n%s", view)
	}
}

func TestWatchlistToggleFromFeed(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(m.refreshFeed()())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	if cmd == nil {
		t.Fatalf("expected a toggle command")
	}
	m.Update(cmd())
	if !m.watchlist.Contains(2) {
		t.Fatalf("expected highlighted feed item on the watchlist")
	}
	if !strings.Contains(m.View(), "added to watchlist") {
		t.Fatalf("expected status line after toggle")
	}
}

func TestWindowKeepsCursorVisible(t *testing.T) {
	items := make([]domain.MovieSummary, 40)
	visible, cursor := window(items, 30, 10)
	if len(visible) != 10 || cursor != 5 {
		t.Fatalf("unexpected window: len=%d cursor=%d", len(visible), cursor)
	}
	visible, cursor = window(items, 39, 10)
	if len(visible) != 10 || cursor != 9 {
		t.Fatalf("unexpected tail window: len=%d cursor=%d", len(visible), cursor)
	}
}
