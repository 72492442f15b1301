package suggest

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/metrics"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultLimit    = 8
	noHighlight     = -1
)

// Searcher is the slice of the catalog the engine needs.
type Searcher interface {
	Search(ctx context.Context, query string, page int) (domain.MoviePage, error)
}

type EventKind string

const (
	EventSuggestionsUpdated EventKind = "suggestions_updated"
	EventSearchSubmitted    EventKind = "search_submitted"
	EventItemSelected       EventKind = "item_selected"
	EventFocusChanged       EventKind = "focus_changed"
)

type Event struct {
	Kind  EventKind `json:"kind"`
	State State     `json:"state"`
	Query string    `json:"query,omitempty"`
	ID    int       `json:"id,omitempty"`
}

// Listener receives events in order while the engine lock is held. It must not
// call back into the engine.
type Listener func(Event)

type State struct {
	Query       string                `json:"query"`
	Suggestions []domain.MovieSummary `json:"suggestions"`
	Open        bool                  `json:"open"`
	Highlighted int                   `json:"highlighted"`
	InFlight    bool                  `json:"inFlight"`
	Pending     bool                  `json:"pending"`
	Focused     bool                  `json:"focused"`
}

// HighlightedItem returns the highlighted suggestion, if any.
func (s State) HighlightedItem() (domain.MovieSummary, bool) {
	if s.Highlighted < 0 || s.Highlighted >= len(s.Suggestions) {
		return domain.MovieSummary{}, false
	}
	return s.Suggestions[s.Highlighted], true
}

// Engine turns keystrokes into debounced catalog lookups and keeps a navigable
// suggestion list. All transitions are serialized by mu.
type Engine struct {
	client        Searcher
	debounce      time.Duration
	limit         int
	lookupTimeout time.Duration
	scheduler     Scheduler
	logger        *slog.Logger
	baseCtx       context.Context

	mu           sync.Mutex
	listener     Listener
	state        State
	timer        Timer
	timerSeq     uint64
	generation   uint64
	cancelLookup context.CancelFunc
	closed       bool
}

type Option func(*Engine)

func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = d
		}
	}
}

func WithLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// WithLookupTimeout bounds each lookup. Zero leaves lookups unbounded.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lookupTimeout = d
	}
}

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.scheduler = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listener = l
	}
}

// WithContext sets the parent context of every lookup.
func WithContext(ctx context.Context) Option {
	return func(e *Engine) {
		if ctx != nil {
			e.baseCtx = ctx
		}
	}
}

func New(client Searcher, opts ...Option) *Engine {
	e := &Engine{
		client:    client,
		debounce:  DefaultDebounce,
		limit:     DefaultLimit,
		scheduler: RealScheduler(),
		logger:    slog.Default(),
		baseCtx:   context.Background(),
		state:     State{Highlighted: noHighlight},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// SetQuery records a keystroke. An empty trimmed query clears the list at once;
// anything else re-arms the debounce timer.
func (e *Engine) SetQuery(raw string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.state.Query = raw
	e.stopTimerLocked()
	e.invalidateLocked()

	if strings.TrimSpace(raw) == "" {
		e.clearLocked()
		e.emitLocked(Event{Kind: EventSuggestionsUpdated})
		return
	}

	e.timerSeq++
	seq := e.timerSeq
	e.timer = e.scheduler.AfterFunc(e.debounce, func() { e.fire(seq) })
	e.state.Pending = true
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
}

// fire runs the lookup armed by timer seq. It blocks until the lookup settles.
func (e *Engine) fire(seq uint64) {
	e.mu.Lock()
	if e.closed || seq != e.timerSeq {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.state.Pending = false
	query := strings.TrimSpace(e.state.Query)
	if query == "" {
		e.mu.Unlock()
		return
	}

	e.generation++
	generation := e.generation
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if e.lookupTimeout > 0 {
		ctx, cancel = context.WithTimeout(e.baseCtx, e.lookupTimeout)
	} else {
		ctx, cancel = context.WithCancel(e.baseCtx)
	}
	e.cancelLookup = cancel
	e.state.InFlight = true
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
	e.mu.Unlock()

	metrics.SuggestLookupsTotal.WithLabelValues("issued").Inc()
	page, err := e.client.Search(ctx, query, 1)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || generation != e.generation {
		metrics.SuggestLookupsTotal.WithLabelValues("stale").Inc()
		e.logger.Debug("discarding stale suggestions", slog.String("query", query))
		return
	}
	e.cancelLookup = nil
	e.state.InFlight = false

	if err != nil {
		metrics.SuggestLookupsTotal.WithLabelValues("failed").Inc()
		e.logger.Warn("suggest lookup failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		e.state.Suggestions = nil
		e.state.Open = false
		e.state.Highlighted = noHighlight
		e.emitLocked(Event{Kind: EventSuggestionsUpdated})
		return
	}

	metrics.SuggestLookupsTotal.WithLabelValues("applied").Inc()
	e.state.Suggestions = Normalize(page.Results, e.limit)
	e.state.Open = len(e.state.Suggestions) > 0
	e.state.Highlighted = noHighlight
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
}

func (e *Engine) HandleKey(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	count := len(e.state.Suggestions)
	switch key {
	case KeyArrowDown:
		if count == 0 {
			return
		}
		if !e.state.Open {
			e.state.Open = true
			e.state.Highlighted = 0
		} else {
			e.state.Highlighted = min(e.state.Highlighted+1, count-1)
		}
		e.emitLocked(Event{Kind: EventSuggestionsUpdated})
	case KeyArrowUp:
		if !e.state.Open || count == 0 {
			return
		}
		e.state.Highlighted = max(e.state.Highlighted-1, 0)
		e.emitLocked(Event{Kind: EventSuggestionsUpdated})
	case KeyEnter:
		if e.state.Open && e.state.Highlighted >= 0 && e.state.Highlighted < count {
			e.selectLocked(e.state.Highlighted)
			return
		}
		e.submitLocked()
	case KeyEscape:
		e.state.Open = false
		e.state.Highlighted = noHighlight
		e.emitLocked(Event{Kind: EventSuggestionsUpdated})
		e.state.Focused = false
		e.emitLocked(Event{Kind: EventFocusChanged})
	}
}

// Select confirms the suggestion at index.
func (e *Engine) Select(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || index < 0 || index >= len(e.state.Suggestions) {
		return false
	}
	e.selectLocked(index)
	return true
}

// Submit is the explicit search action. It returns false when the query is empty.
func (e *Engine) Submit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	return e.submitLocked()
}

// Highlight tracks pointer hover; a negative index clears the highlight.
func (e *Engine) Highlight(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if index < 0 || index >= len(e.state.Suggestions) {
		index = noHighlight
	}
	if e.state.Highlighted == index {
		return
	}
	e.state.Highlighted = index
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
}

// Focus reopens the list when suggestions are cached.
func (e *Engine) Focus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if !e.state.Focused {
		e.state.Focused = true
		e.emitLocked(Event{Kind: EventFocusChanged})
	}
	if len(e.state.Suggestions) > 0 && !e.state.Open {
		e.state.Open = true
		e.emitLocked(Event{Kind: EventSuggestionsUpdated})
	}
}

// ClickOutside closes the list but keeps the typed query.
func (e *Engine) ClickOutside() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if !e.state.Open && e.state.Highlighted == noHighlight {
		return
	}
	e.state.Open = false
	e.state.Highlighted = noHighlight
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
}

// Close ends the session. Later calls are no-ops and pending work is dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.stopTimerLocked()
	e.invalidateLocked()
	e.closed = true
	e.listener = nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) selectLocked(index int) {
	id := e.state.Suggestions[index].IdentityKey()
	e.emitLocked(Event{Kind: EventItemSelected, ID: id})

	e.state.Query = ""
	e.stopTimerLocked()
	e.invalidateLocked()
	e.clearLocked()
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
}

func (e *Engine) submitLocked() bool {
	query := strings.TrimSpace(e.state.Query)
	if query == "" {
		if !e.state.Focused {
			e.state.Focused = true
			e.emitLocked(Event{Kind: EventFocusChanged})
		}
		return false
	}
	e.emitLocked(Event{Kind: EventSearchSubmitted, Query: query})
	e.state.Open = false
	e.state.Highlighted = noHighlight
	e.emitLocked(Event{Kind: EventSuggestionsUpdated})
	return true
}

func (e *Engine) clearLocked() {
	e.state.Suggestions = nil
	e.state.Open = false
	e.state.Highlighted = noHighlight
	e.state.Pending = false
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// A callback that already started sees a different sequence and returns.
	e.timerSeq++
	e.state.Pending = false
}

// invalidateLocked makes any in-flight lookup stale and aborts its request.
func (e *Engine) invalidateLocked() {
	e.generation++
	if e.cancelLookup != nil {
		e.cancelLookup()
		e.cancelLookup = nil
	}
	e.state.InFlight = false
}

func (e *Engine) emitLocked(event Event) {
	if e.listener == nil {
		return
	}
	event.State = e.snapshotLocked()
	e.listener(event)
}

func (e *Engine) snapshotLocked() State {
	snapshot := e.state
	snapshot.Suggestions = domain.CloneMovies(e.state.Suggestions)
	return snapshot
}

// Normalize drops items without an id and repeated ids, then
// truncates to limit.
func Normalize(items []domain.MovieSummary, limit int) []domain.MovieSummary {
	out := make([]domain.MovieSummary, 0, min(len(items), limit))
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		if len(out) >= limit {
			break
		}
		id := item.IdentityKey()
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item.Clone())
	}
	return out
}
