package details

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/telemetry"
)

const (
	MaxReviews = 4
	MaxSimilar = 12
)

// Source is the part of the catalog a details page reads.
type Source interface {
	Details(ctx context.Context, id int) (domain.MovieDetails, error)
	Reviews(ctx context.Context, id int) ([]domain.Review, error)
}

// Page is everything a details view renders for one movie.
type Page struct {
	Movie   domain.MovieDetails `json:"movie"`
	Reviews []domain.Review     `json:"reviews"`
}

type Loader struct {
	source Source
	logger *slog.Logger
}

func NewLoader(source Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger}
}

// Load fetches details and reviews in parallel. Reviews are best effort: a
// failure there leaves the list empty.
func (l *Loader) Load(ctx context.Context, id int) (page Page, err error) {
	ctx, span := telemetry.StartSpan(ctx, "details.load", attribute.Int("movie.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if id <= 0 {
		return Page{}, fmt.Errorf("%w: %d", catalog.ErrInvalidID, id)
	}

	var (
		movie   domain.MovieDetails
		reviews []domain.Review
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := l.source.Details(gctx, id)
		if err != nil {
			return fmt.Errorf("load details %d: %w", id, err)
		}
		movie = result
		return nil
	})

	g.Go(func() error {
		result, err := l.source.Reviews(gctx, id)
		if err != nil {
			l.logger.Warn("reviews unavailable",
				slog.Int("movie_id", id),
				slog.String("error", err.Error()),
			)
			return nil
		}
		reviews = result
		return nil
	})

	if err := g.Wait(); err != nil {
		return Page{}, err
	}

	if len(reviews) > MaxReviews {
		reviews = reviews[:MaxReviews]
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	if len(movie.Similar) > MaxSimilar {
		movie.Similar = movie.Similar[:MaxSimilar]
	}
	if movie.ID == 0 {
		movie.ID = id
	}
	return Page{Movie: movie, Reviews: reviews}, nil
}
