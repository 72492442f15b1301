package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/metrics"
	"cineverse/discovery/internal/telemetry"
)

const (
	DefaultCap         = 24
	defaultConcurrency = 9
	defaultTimeout     = 10 * time.Second
)

var ErrSuperseded = errors.New("feed cycle superseded")

// Lister is the slice of the catalog the aggregator needs.
type Lister interface {
	ListByCategory(ctx context.Context, key string, page int) ([]domain.MovieSummary, error)
}

// Listener receives the snapshot for the current selection after every state
// change. It runs with the aggregator lock held and must not call back into it.
type Listener func(domain.FeedSnapshot)

type viewKey struct {
	genre  string
	sortBy domain.SortKey
}

type outcome struct {
	status domain.CategoryStatus
	items  []domain.MovieSummary
}

// Aggregator fetches a fixed set of categories concurrently and serves
// filtered, sorted views over the merged pool.
type Aggregator struct {
	client      Lister
	name        string
	categories  []domain.Category
	order       []string
	cap         int
	concurrency int64
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time

	failureThreshold int
	blockBase        time.Duration
	blockMax         time.Duration

	mu          sync.Mutex
	slots       map[string][]domain.MovieSummary
	statuses    []domain.CategoryStatus
	merged      []domain.MovieSummary
	version     uint64
	cycle       uint64
	applied     uint64
	inflight    int
	loading     bool
	allFailed   bool
	updatedAt   time.Time
	memo        map[viewKey][]domain.MovieSummary
	memoVersion uint64
	genre       string
	sortBy      domain.SortKey
	listener    Listener

	healthMu sync.Mutex
	health   map[string]*categoryHealth
}

type Option func(*Aggregator)

func WithCap(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.cap = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = int64(n)
		}
	}
}

// WithTimeout bounds each category request.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithBreaker tunes the per-category circuit breaker.
func WithBreaker(threshold int, base, maxBlock time.Duration) Option {
	return func(a *Aggregator) {
		if threshold > 0 {
			a.failureThreshold = threshold
		}
		if base > 0 {
			a.blockBase = base
		}
		if maxBlock > 0 {
			a.blockMax = maxBlock
		}
	}
}

func WithListener(l Listener) Option {
	return func(a *Aggregator) {
		a.listener = l
	}
}

func WithName(name string) Option {
	return func(a *Aggregator) {
		a.name = name
	}
}

func NewAggregator(client Lister, categories []domain.Category, opts ...Option) *Aggregator {
	a := &Aggregator{
		client:           client,
		cap:              DefaultCap,
		concurrency:      defaultConcurrency,
		timeout:          defaultTimeout,
		logger:           slog.Default(),
		now:              time.Now,
		failureThreshold: defaultFailureThreshold,
		blockBase:        defaultBlockBase,
		blockMax:         defaultBlockMax,
		loading:          true,
		genre:            domain.GenreAll,
		sortBy:           domain.SortByPopularity,
		health:           make(map[string]*categoryHealth),
	}
	seen := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		category.Key = strings.ToLower(strings.TrimSpace(category.Key))
		if category.Key == "" {
			continue
		}
		if _, dup := seen[category.Key]; dup {
			continue
		}
		seen[category.Key] = struct{}{}
		if category.Label == "" {
			category.Label = category.Key
		}
		a.categories = append(a.categories, category)
		a.order = append(a.order, category.Key)
	}
	for _, opt := range opts {
		opt(a)
	}

	a.slots = make(map[string][]domain.MovieSummary, len(a.categories))
	a.statuses = make([]domain.CategoryStatus, len(a.categories))
	for i, category := range a.categories {
		a.slots[category.Key] = []domain.MovieSummary{}
		a.statuses[i] = domain.CategoryStatus{Key: category.Key}
	}
	a.merged = []domain.MovieSummary{}
	return a
}

// FromPreset builds an aggregator for a named preset; the preset cap applies.
func FromPreset(client Lister, preset domain.FeedPreset, opts ...Option) *Aggregator {
	base := []Option{WithName(preset.Name), WithCap(preset.Cap)}
	return NewAggregator(client, preset.Categories, append(base, opts...)...)
}

func (a *Aggregator) Name() string {
	return a.name
}

func (a *Aggregator) Categories() []domain.Category {
	return append([]domain.Category(nil), a.categories...)
}

func (a *Aggregator) SetListener(l Listener) {
	a.mu.Lock()
	a.listener = l
	a.mu.Unlock()
}

// Refresh runs one fetch cycle. Every category starts at once and the pool is
// replaced only after all of them settle. A cycle that settles after a newer
// one has already applied returns ErrSuperseded without touching state. A
// cancelled cycle applies nothing, so an older cycle still in flight can land.
func (a *Aggregator) Refresh(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.refresh",
		attribute.String("feed", a.name),
		attribute.Int("categories", len(a.categories)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	a.mu.Lock()
	a.cycle++
	cycle := a.cycle
	a.inflight++
	a.loading = true
	a.emitLocked()
	a.mu.Unlock()

	startedAt := time.Now()
	results := make([]outcome, len(a.categories))
	sem := semaphore.NewWeighted(a.concurrency)
	var wg sync.WaitGroup
	for i, category := range a.categories {
		wg.Add(1)
		go func(index int, current domain.Category) {
			defer wg.Done()
			results[index] = a.fetchCategory(ctx, sem, current)
		}(i, category)
	}
	wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.inflight--
	if cycle < a.applied {
		a.settleLoadingLocked()
		return ErrSuperseded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.settleLoadingLocked()
		return ctxErr
	}

	slots := make(map[string][]domain.MovieSummary, len(a.categories))
	statuses := make([]domain.CategoryStatus, len(a.categories))
	failed := 0
	for i, category := range a.categories {
		slots[category.Key] = results[i].items
		statuses[i] = results[i].status
		// A breaker-skipped category counts as failed.
		if !results[i].status.OK {
			failed++
		}
	}

	a.slots = slots
	a.statuses = statuses
	a.merged = Merge(a.order, slots)
	a.version++
	a.applied = cycle
	a.loading = a.inflight > 0
	a.allFailed = len(a.categories) > 0 && failed == len(a.categories)
	a.updatedAt = a.now()

	if a.allFailed {
		metrics.FeedAllFailedTotal.Inc()
		a.logger.Error("all feed categories failed",
			slog.String("feed", a.name),
			slog.Int("categories", len(a.categories)),
		)
	} else {
		a.logger.Debug("feed refreshed",
			slog.String("feed", a.name),
			slog.Int("merged", len(a.merged)),
			slog.Int("failed", failed),
			slog.Int64("elapsed_ms", time.Since(startedAt).Milliseconds()),
		)
	}
	a.emitLocked()
	return nil
}

// settleLoadingLocked clears loading once no cycle is left in flight.
func (a *Aggregator) settleLoadingLocked() {
	if a.inflight > 0 || !a.loading {
		return
	}
	a.loading = false
	a.emitLocked()
}

func (a *Aggregator) fetchCategory(ctx context.Context, sem *semaphore.Weighted, category domain.Category) outcome {
	result := outcome{
		status: domain.CategoryStatus{Key: category.Key},
		items:  []domain.MovieSummary{},
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		result.status.Error = "context cancelled"
		return result
	}
	defer sem.Release(1)

	if blocked, until, lastErr := a.isCategoryBlocked(category.Key, a.now()); blocked {
		result.status.Skipped = true
		result.status.Error = fmt.Sprintf("category temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
		return result
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	startedAt := time.Now()
	items, err := a.client.ListByCategory(fetchCtx, category.SourceKey(), category.Page)
	elapsed := time.Since(startedAt)
	a.recordCategoryResult(category.Key, err, elapsed, a.now())
	result.status.ElapsedMS = elapsed.Milliseconds()

	if err != nil {
		result.status.Error = err.Error()
		a.logger.Warn("feed category failed",
			slog.String("feed", a.name),
			slog.String("category", category.Key),
			slog.String("error", err.Error()),
		)
		return result
	}

	if len(items) > a.cap {
		items = items[:a.cap]
	}
	result.items = domain.CloneMovies(items)
	if result.items == nil {
		result.items = []domain.MovieSummary{}
	}
	result.status.OK = true
	result.status.Count = len(result.items)
	return result
}

// Run refreshes immediately and then every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	a.refreshLogged(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshLogged(ctx)
		}
	}
}

func (a *Aggregator) refreshLogged(ctx context.Context) {
	err := a.Refresh(ctx)
	if err == nil || errors.Is(err, ErrSuperseded) || ctx.Err() != nil {
		return
	}
	a.logger.Warn("feed refresh failed", slog.String("feed", a.name), slog.String("error", err.Error()))
}

// Select changes the genre and sort used by Current and the listener.
func (a *Aggregator) Select(genre string, sortBy domain.SortKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	genre = domain.NormalizeGenreKey(genre)
	sortBy = domain.NormalizeSortKey(string(sortBy))
	if genre == a.genre && sortBy == a.sortBy {
		return
	}
	a.genre = genre
	a.sortBy = sortBy
	a.emitLocked()
}

func (a *Aggregator) Current() domain.FeedSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(a.genre, a.sortBy)
}

func (a *Aggregator) Snapshot(genre string, sortBy domain.SortKey) domain.FeedSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(domain.NormalizeGenreKey(genre), domain.NormalizeSortKey(string(sortBy)))
}

// View returns the filtered, sorted pool for genre and sortBy.
func (a *Aggregator) View(genre string, sortBy domain.SortKey) []domain.MovieSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.CloneMovies(a.viewLocked(domain.NormalizeGenreKey(genre), domain.NormalizeSortKey(string(sortBy))))
}

func (a *Aggregator) Merged() []domain.MovieSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.CloneMovies(a.merged)
}

func (a *Aggregator) Slot(key string) []domain.MovieSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.CloneMovies(a.slots[strings.ToLower(strings.TrimSpace(key))])
}

func (a *Aggregator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

func (a *Aggregator) AllFailed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allFailed
}

func (a *Aggregator) viewLocked(genre string, sortBy domain.SortKey) []domain.MovieSummary {
	if a.memo == nil || a.memoVersion != a.version {
		a.memo = make(map[viewKey][]domain.MovieSummary)
		a.memoVersion = a.version
	}
	key := viewKey{genre: genre, sortBy: sortBy}
	if view, ok := a.memo[key]; ok {
		return view
	}
	view := Sort(Filter(a.merged, genre), sortBy)
	a.memo[key] = view
	return view
}

func (a *Aggregator) snapshotLocked(genre string, sortBy domain.SortKey) domain.FeedSnapshot {
	rows := make([]domain.FeedRow, 0, len(a.categories))
	for _, category := range a.categories {
		rows = append(rows, domain.FeedRow{
			Key:   category.Key,
			Label: category.Label,
			Items: domain.CloneMovies(a.slots[category.Key]),
		})
	}
	snapshot := domain.FeedSnapshot{
		Preset:    a.name,
		Genre:     genre,
		SortBy:    sortBy,
		Rows:      rows,
		Merged:    len(a.merged),
		Items:     domain.CloneMovies(a.viewLocked(genre, sortBy)),
		Loading:   a.loading,
		AllFailed: a.allFailed,
		Statuses:  append([]domain.CategoryStatus(nil), a.statuses...),
	}
	if trending := a.slots[domain.CategoryTrending]; len(trending) > 0 {
		hero := trending[0].Clone()
		snapshot.Hero = &hero
	}
	if !a.updatedAt.IsZero() {
		updatedAt := a.updatedAt
		snapshot.UpdatedAt = &updatedAt
	}
	return snapshot
}

func (a *Aggregator) emitLocked() {
	if a.listener == nil {
		return
	}
	a.listener(a.snapshotLocked(a.genre, a.sortBy))
}
