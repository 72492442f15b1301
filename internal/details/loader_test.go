package details

import (
	"context"
	"errors"
	"testing"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/domain"
)

type fakeSource struct {
	details    domain.MovieDetails
	detailsErr error
	reviews    []domain.Review
	reviewsErr error
}

func (f fakeSource) Details(context.Context, int) (domain.MovieDetails, error) {
	return f.details, f.detailsErr
}

func (f fakeSource) Reviews(context.Context, int) ([]domain.Review, error) {
	return f.reviews, f.reviewsErr
}

func TestLoadCapsReviewsAndSimilar(t *testing.T) {
	similar := make([]domain.MovieSummary, 20)
	for i := range similar {
		similar[i] = domain.MovieSummary{ID: 100 + i}
	}
	reviews := make([]domain.Review, 7)
	for i := range reviews {
		reviews[i] = domain.Review{Author: "critic", Content: "fine"}
	}
	loader := NewLoader(fakeSource{
		details: domain.MovieDetails{MovieSummary: domain.MovieSummary{ID: 42, Title: "Dune"}, Similar: similar},
		reviews: reviews,
	}, nil)

	page, err := loader.Load(context.Background(), 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if page.Movie.Title != "Dune" {
		t.Fatalf("unexpected title %q", page.Movie.Title)
	}
	if len(page.Reviews) != MaxReviews {
		t.Fatalf("expected %d reviews, got %d", MaxReviews, len(page.Reviews))
	}
	if len(page.Movie.Similar) != MaxSimilar {
		t.Fatalf("expected %d similar titles, got %d", MaxSimilar, len(page.Movie.Similar))
	}
}

func TestLoadToleratesReviewFailure(t *testing.T) {
	loader := NewLoader(fakeSource{
		details:    domain.MovieDetails{MovieSummary: domain.MovieSummary{Title: "Heat"}},
		reviewsErr: errors.New("reviews down"),
	}, nil)

	page, err := loader.Load(context.Background(), 949)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if page.Reviews == nil || len(page.Reviews) != 0 {
		t.Fatalf("expected empty non-nil reviews, got %#v", page.Reviews)
	}
	if page.Movie.ID != 949 {
		t.Fatalf("expected missing id to be filled, got %d", page.Movie.ID)
	}
}

func TestLoadFailsOnDetailsError(t *testing.T) {
	loader := NewLoader(fakeSource{detailsErr: catalog.ErrNotFound}, nil)

	_, err := loader.Load(context.Background(), 7)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadRejectsInvalidID(t *testing.T) {
	loader := NewLoader(fakeSource{}, nil)
	if _, err := loader.Load(context.Background(), 0); !errors.Is(err, catalog.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
