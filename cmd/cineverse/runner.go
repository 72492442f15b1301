package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"cineverse/discovery/internal/app"
	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/details"
	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/feed"
	"cineverse/discovery/internal/suggest"
	"cineverse/discovery/internal/tui"
	"cineverse/discovery/internal/watchlist"
)

var (
	ErrMissingQuery  = errors.New("missing query")
	ErrUnknownPreset = errors.New("unknown feed preset")
	ErrNoWatchlist   = errors.New("watchlist requires the catalog backend")
)

// Runner holds the dependencies shared by every command action.
type Runner struct {
	config  app.Config
	catalog catalog.Client
	remote  watchlist.Remote
	logger  *log.Logger
	output  io.Writer
}

type RunnerOpts struct {
	Config  app.Config
	Catalog catalog.Client
	Remote  watchlist.Remote
	Logger  *log.Logger
	Output  io.Writer
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = newLogger(os.Stderr)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Config.FeedPresets == nil {
		opts.Config.FeedPresets = domain.DefaultFeedPresets()
	}
	return &Runner{
		config:  opts.Config,
		catalog: opts.Catalog,
		remote:  opts.Remote,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range []func(*Runner) *cli.Command{
		searchCommand, suggestCommand, feedCommand, detailsCommand, watchlistCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func (r *Runner) slogger() *slog.Logger {
	return slog.New(r.logger)
}

func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return ErrMissingQuery
	}
	page, err := r.catalog.Search(ctx, query, cmd.Int("page"))
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	r.writePlain("Results for %q (page %d of %d, %d total)\n", query, page.Page, max(page.TotalPages, 1), page.TotalResults)
	r.writeMovies(page.Results)
	return nil
}

func (r *Runner) Suggest(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return ErrMissingQuery
	}
	page, err := r.catalog.Search(ctx, query, 1)
	if err != nil {
		return fmt.Errorf("suggest %q: %w", query, err)
	}
	items := suggest.Normalize(page.Results, cmd.Int("limit"))
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"items": items}, cmd.Bool("pretty"))
	}
	r.writeMovies(items)
	return nil
}

func (r *Runner) Feed(ctx context.Context, cmd *cli.Command) error {
	preset, ok := r.config.Preset(cmd.String("preset"))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, cmd.String("preset"))
	}
	aggregator := feed.FromPreset(r.catalog, preset,
		feed.WithConcurrency(r.config.FeedConcurrency),
		feed.WithLogger(r.slogger()),
	)
	if err := aggregator.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh %s: %w", preset.Name, err)
	}

	snapshot := aggregator.Snapshot(domain.NormalizeGenreKey(cmd.String("genre")), domain.NormalizeSortKey(cmd.String("sort")))
	if cmd.Bool("json") {
		return r.writeJSON(snapshot, cmd.Bool("pretty"))
	}

	if snapshot.AllFailed {
		r.logger.Error("every category failed", "preset", preset.Name)
		return nil
	}
	for _, status := range snapshot.Statuses {
		if !status.OK {
			r.logger.Warn("category unavailable", "key", status.Key, "err", status.Error)
		}
	}
	r.writePlain("%s: %d movies (%s, by %s)\n", preset.Name, len(snapshot.Items), snapshot.Genre, snapshot.SortBy)
	if snapshot.Hero != nil {
		r.writePlain("Featured: %s\n\n", movieLine(*snapshot.Hero))
	}
	r.writeMovies(snapshot.Items)
	return nil
}

func (r *Runner) Details(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.Args().First())
	if err != nil {
		return err
	}
	page, err := details.NewLoader(r.catalog, r.slogger()).Load(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	movie := page.Movie
	r.writePlain("%s\n", movieLine(movie.MovieSummary))
	if movie.Tagline != "" {
		r.writePlain("%s\n", movie.Tagline)
	}
	if movie.Overview != "" {
		r.writePlain("\n%s\n", movie.Overview)
	}
	if len(page.Reviews) > 0 {
		r.writePlain("\nReviews\n")
		for _, review := range page.Reviews {
			r.writePlain("  %s: %s\n", review.Author, strings.Join(strings.Fields(review.Content), " "))
		}
	}
	if len(movie.Similar) > 0 {
		r.writePlain("\nSimilar\n")
		r.writeMovies(movie.Similar)
	}
	return nil
}

func (r *Runner) watchlistStore(ctx context.Context) (*watchlist.Store, error) {
	if r.remote == nil {
		return nil, ErrNoWatchlist
	}
	store := watchlist.NewStore(r.remote, r.slogger())
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	return store, nil
}

func (r *Runner) WatchlistList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.watchlistStore(ctx)
	if err != nil {
		return err
	}
	items := store.Items()
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"items": items}, cmd.Bool("pretty"))
	}
	if len(items) == 0 {
		r.writePlain("Watchlist is empty\n")
		return nil
	}
	r.writeMovies(items)
	return nil
}

func (r *Runner) WatchlistAdd(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.Args().First())
	if err != nil {
		return err
	}
	store, err := r.watchlistStore(ctx)
	if err != nil {
		return err
	}
	movie, err := r.catalog.Details(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup %d: %w", id, err)
	}
	if movie.ID == 0 {
		movie.ID = id
	}
	if err := store.Add(ctx, movie.MovieSummary); err != nil {
		return err
	}
	r.logger.Info("added to watchlist", "id", id, "title", movie.DisplayTitle())
	return nil
}

func (r *Runner) WatchlistRemove(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.Args().First())
	if err != nil {
		return err
	}
	store, err := r.watchlistStore(ctx)
	if err != nil {
		return err
	}
	if !store.Contains(id) {
		r.logger.Warn("not on watchlist", "id", id)
		return nil
	}
	if err := store.Remove(ctx, id); err != nil {
		return err
	}
	r.logger.Info("removed from watchlist", "id", id)
	return nil
}

// TUI launches the interactive terminal UI. Logs go to a file so they do not
// interfere with rendering.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	logPath := cmd.String("log-file")
	if logPath == "" {
		logPath = filepath.Join(os.TempDir(), "cineverse-tui.log")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	fileLogger := newLogger(logFile)
	fileLogger.SetLevel(r.logger.GetLevel())
	logger := slog.New(fileLogger)

	deps := tui.Deps{
		Catalog: r.catalog,
		Logger:  logger,
		SuggestOptions: []suggest.Option{
			suggest.WithDebounce(r.config.SuggestDebounce),
			suggest.WithLimit(r.config.SuggestLimit),
		},
	}
	if preset, ok := r.config.Preset(cmd.String("preset")); ok {
		deps.Feed = feed.FromPreset(r.catalog, preset,
			feed.WithConcurrency(r.config.FeedConcurrency),
			feed.WithLogger(logger),
		)
	}
	if r.remote != nil {
		deps.Watchlist = watchlist.NewStore(r.remote, logger)
	}

	model := tui.NewModel(ctx, deps)
	defer model.Close()
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", catalog.ErrInvalidID, raw)
	}
	return id, nil
}

func movieLine(movie domain.MovieSummary) string {
	line := fmt.Sprintf("%-8d %s", movie.ID, movie.DisplayTitle())
	if year := movie.Year(); year > 0 {
		line += fmt.Sprintf(" (%d)", year)
	}
	if movie.VoteAverage > 0 {
		line += fmt.Sprintf("  ★ %.1f", movie.VoteAverage)
	}
	return line
}

func (r *Runner) writeMovies(items []domain.MovieSummary) {
	for _, movie := range items {
		r.writePlain("%s\n", movieLine(movie))
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error
	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}
