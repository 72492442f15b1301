package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/details"
	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/feed"
	"cineverse/discovery/internal/suggest"
	"cineverse/discovery/internal/watchlist"
)

// ViewState is the screen currently shown.
type ViewState int

const (
	SuggestView ViewState = iota
	ResultsView
	FeedView
	DetailsView
)

const eventBuffer = 256

// Deps wires the model to the catalog. Feed and Watchlist are optional.
type Deps struct {
	Catalog        catalog.Client
	Feed           *feed.Aggregator
	Watchlist      *watchlist.Store
	Logger         *slog.Logger
	SuggestOptions []suggest.Option
}

type Model struct {
	ctx       context.Context
	view      ViewState
	previous  ViewState
	catalog   catalog.Client
	engine    *suggest.Engine
	events    chan suggest.Event
	feed      *feed.Aggregator
	loader    *details.Loader
	watchlist *watchlist.Store
	logger    *slog.Logger

	input      textinput.Model
	suggestion suggest.State

	results       domain.MoviePage
	resultsQuery  string
	resultsCursor int

	feedSnapshot domain.FeedSnapshot
	feedCursor   int
	refreshing   bool

	details *details.Page
	loading bool
	status  string
	err     error

	width int
	help  help.Model
	keys  keyMap
}

type suggestEventMsg suggest.Event

type searchLoadedMsg struct {
	query string
	page  domain.MoviePage
	err   error
}

type detailsLoadedMsg struct {
	page details.Page
	err  error
}

type feedRefreshedMsg struct {
	err error
}

type watchlistToggledMsg struct {
	title string
	added bool
	err   error
}

type watchlistLoadedMsg struct {
	count int
	err   error
}

func NewModel(ctx context.Context, deps Deps) *Model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	input := textinput.New()
	input.Placeholder = "Search movies..."
	input.CharLimit = 200
	input.Width = 48
	input.Focus()

	m := &Model{
		ctx:       ctx,
		view:      SuggestView,
		catalog:   deps.Catalog,
		events:    make(chan suggest.Event, eventBuffer),
		feed:      deps.Feed,
		loader:    details.NewLoader(deps.Catalog, logger),
		watchlist: deps.Watchlist,
		logger:    logger,
		input:     input,
		help:      help.New(),
		keys:      newKeyMap(),
	}
	opts := append([]suggest.Option{
		suggest.WithContext(ctx),
		suggest.WithLogger(logger),
		suggest.WithListener(m.enqueue),
	}, deps.SuggestOptions...)
	m.engine = suggest.New(deps.Catalog, opts...)
	m.engine.Focus()
	m.suggestion = m.engine.State()
	if m.feed != nil {
		m.feedSnapshot = m.feed.Current()
	}
	return m
}

// enqueue runs under the engine lock.
func (m *Model) enqueue(event suggest.Event) {
	select {
	case m.events <- event:
	default:
		m.logger.Warn("tui event buffer full, dropping event", slog.String("kind", string(event.Kind)))
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForSuggest()}
	if m.feed != nil {
		cmds = append(cmds, m.refreshFeed())
	}
	if m.watchlist != nil {
		cmds = append(cmds, m.loadWatchlist())
	}
	return tea.Batch(cmds...)
}

// Close stops the suggest engine.
func (m *Model) Close() {
	m.engine.Close()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Close()
			return m, tea.Quit
		}
		switch m.view {
		case SuggestView:
			return m.handleSuggestKeys(msg)
		case ResultsView:
			return m.handleResultsKeys(msg)
		case FeedView:
			return m.handleFeedKeys(msg)
		case DetailsView:
			return m.handleDetailsKeys(msg)
		}

	case suggestEventMsg:
		cmd := m.applySuggestEvent(suggest.Event(msg))
		return m, tea.Batch(cmd, m.waitForSuggest())

	case searchLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.results = msg.page
		m.resultsQuery = msg.query
		m.resultsCursor = 0
		m.view = ResultsView
		return m, nil

	case detailsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		page := msg.page
		m.details = &page
		if m.view != DetailsView {
			m.previous = m.view
		}
		m.view = DetailsView
		return m, nil

	case feedRefreshedMsg:
		m.refreshing = false
		if m.feed != nil {
			m.feedSnapshot = m.feed.Current()
			m.feedCursor = clampCursor(m.feedCursor, len(m.feedSnapshot.Items))
		}
		if msg.err != nil {
			m.status = styles.warn.Render("feed refresh failed: " + msg.err.Error())
		}
		return m, nil

	case watchlistToggledMsg:
		switch {
		case msg.err != nil:
			m.status = styles.err.Render(fmt.Sprintf("watchlist: %v", msg.err))
		case msg.added:
			m.status = styles.ok.Render("added to watchlist: " + msg.title)
		default:
			m.status = styles.ok.Render("removed from watchlist: " + msg.title)
		}
		return m, nil

	case watchlistLoadedMsg:
		if msg.err != nil {
			m.status = styles.muted.Render("watchlist unavailable: " + msg.err.Error())
		}
		return m, nil
	}

	if m.view == SuggestView {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleSuggestKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down":
		m.engine.HandleKey(suggest.KeyArrowDown)
		return m, nil
	case "up":
		m.engine.HandleKey(suggest.KeyArrowUp)
		return m, nil
	case "enter":
		m.engine.HandleKey(suggest.KeyEnter)
		return m, nil
	case "esc":
		m.engine.HandleKey(suggest.KeyEscape)
		return m, nil
	case "tab":
		m.engine.ClickOutside()
		return m, m.openFeed()
	case "ctrl+w":
		if item, ok := m.suggestion.HighlightedItem(); ok {
			return m, m.toggleWatchlist(item)
		}
		return m, nil
	}

	var focusCmd tea.Cmd
	if !m.input.Focused() {
		m.engine.Focus()
		focusCmd = m.input.Focus()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.engine.SetQuery(value)
	}
	return m, tea.Batch(focusCmd, cmd)
}

func (m *Model) handleResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.results.Results
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = SuggestView
		m.engine.Focus()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.up):
		m.resultsCursor = clampCursor(m.resultsCursor-1, len(items))
	case key.Matches(msg, m.keys.down):
		m.resultsCursor = clampCursor(m.resultsCursor+1, len(items))
	case key.Matches(msg, m.keys.enter):
		if len(items) > 0 {
			return m, m.openDetails(items[m.resultsCursor].IdentityKey())
		}
	case key.Matches(msg, m.keys.watchlist):
		if len(items) > 0 {
			return m, m.toggleWatchlist(items[m.resultsCursor])
		}
	case key.Matches(msg, m.keys.tab):
		return m, m.openFeed()
	}
	return m, nil
}

func (m *Model) handleFeedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.feedSnapshot.Items
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.tab), key.Matches(msg, m.keys.back):
		m.view = SuggestView
		m.engine.Focus()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.up):
		m.feedCursor = clampCursor(m.feedCursor-1, len(items))
	case key.Matches(msg, m.keys.down):
		m.feedCursor = clampCursor(m.feedCursor+1, len(items))
	case key.Matches(msg, m.keys.genre):
		m.selectFeed(nextGenre(m.feedSnapshot.Genre), m.feedSnapshot.SortBy)
	case key.Matches(msg, m.keys.sort):
		m.selectFeed(m.feedSnapshot.Genre, nextSort(m.feedSnapshot.SortBy))
	case key.Matches(msg, m.keys.refresh):
		if m.feed != nil && !m.refreshing {
			return m, m.refreshFeed()
		}
	case key.Matches(msg, m.keys.enter):
		if len(items) > 0 {
			return m, m.openDetails(items[m.feedCursor].IdentityKey())
		}
	case key.Matches(msg, m.keys.watchlist):
		if len(items) > 0 {
			return m, m.toggleWatchlist(items[m.feedCursor])
		}
	}
	return m, nil
}

func (m *Model) handleDetailsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = m.previous
		if m.view == SuggestView {
			m.engine.Focus()
			return m, m.input.Focus()
		}
	case key.Matches(msg, m.keys.watchlist):
		if m.details != nil {
			return m, m.toggleWatchlist(m.details.Movie.MovieSummary)
		}
	}
	return m, nil
}

func (m *Model) applySuggestEvent(event suggest.Event) tea.Cmd {
	m.suggestion = event.State
	switch event.Kind {
	case suggest.EventItemSelected:
		m.input.SetValue("")
		return m.openDetails(event.ID)
	case suggest.EventSearchSubmitted:
		return m.search(event.Query)
	case suggest.EventFocusChanged:
		if !event.State.Focused {
			m.input.Blur()
		}
	}
	return nil
}

func (m *Model) selectFeed(genre string, sortBy domain.SortKey) {
	if m.feed == nil {
		return
	}
	m.feed.Select(genre, sortBy)
	m.feedSnapshot = m.feed.Current()
	m.feedCursor = clampCursor(m.feedCursor, len(m.feedSnapshot.Items))
}

func (m *Model) openFeed() tea.Cmd {
	m.view = FeedView
	m.input.Blur()
	if m.feed == nil {
		return nil
	}
	m.feedSnapshot = m.feed.Current()
	return nil
}

func (m *Model) waitForSuggest() tea.Cmd {
	return func() tea.Msg {
		select {
		case event := <-m.events:
			return suggestEventMsg(event)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) search(query string) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		page, err := m.catalog.Search(m.ctx, query, 1)
		return searchLoadedMsg{query: query, page: page, err: err}
	}
}

func (m *Model) openDetails(id int) tea.Cmd {
	if id <= 0 {
		return nil
	}
	m.loading = true
	return func() tea.Msg {
		page, err := m.loader.Load(m.ctx, id)
		return detailsLoadedMsg{page: page, err: err}
	}
}

func (m *Model) refreshFeed() tea.Cmd {
	m.refreshing = true
	return func() tea.Msg {
		err := m.feed.Refresh(m.ctx)
		if errors.Is(err, feed.ErrSuperseded) {
			err = nil
		}
		return feedRefreshedMsg{err: err}
	}
}

func (m *Model) toggleWatchlist(movie domain.MovieSummary) tea.Cmd {
	if m.watchlist == nil {
		m.status = styles.muted.Render("watchlist is not configured")
		return nil
	}
	return func() tea.Msg {
		added, err := m.watchlist.Toggle(m.ctx, movie)
		return watchlistToggledMsg{title: movie.DisplayTitle(), added: added, err: err}
	}
}

func (m *Model) loadWatchlist() tea.Cmd {
	return func() tea.Msg {
		err := m.watchlist.Load(m.ctx)
		return watchlistLoadedMsg{count: len(m.watchlist.Items()), err: err}
	}
}

func nextGenre(current string) string {
	filters := domain.GenreFilters()
	for i, filter := range filters {
		if filter.Key == current {
			return filters[(i+1)%len(filters)].Key
		}
	}
	return filters[0].Key
}

func nextSort(current domain.SortKey) domain.SortKey {
	keys := domain.SortKeys()
	for i, sortKey := range keys {
		if sortKey == current {
			return keys[(i+1)%len(keys)]
		}
	}
	return keys[0]
}

func clampCursor(cursor, length int) int {
	if length == 0 {
		return 0
	}
	return min(max(cursor, 0), length-1)
}

func movieLine(movie domain.MovieSummary) string {
	line := movie.DisplayTitle()
	if year := movie.Year(); year > 0 {
		line = fmt.Sprintf("%s (%d)", line, year)
	}
	if movie.VoteAverage > 0 {
		line = fmt.Sprintf("%s  ★ %.1f", line, movie.VoteAverage)
	}
	return line
}

func (m *Model) marker(movie domain.MovieSummary) string {
	if m.watchlist != nil && m.watchlist.Contains(movie.IdentityKey()) {
		return "♥ "
	}
	return "  "
}

func (m *Model) renderList(items []domain.MovieSummary, cursor int) string {
	var b strings.Builder
	for i, item := range items {
		line := m.marker(item) + movieLine(item)
		if i == cursor {
			b.WriteString(styles.selected.Render("› " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
