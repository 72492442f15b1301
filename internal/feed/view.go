package feed

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"cineverse/discovery/internal/domain"
)

// Merge walks slots in order and keeps the first copy of every id. Items
// without an id are dropped.
func Merge(order []string, slots map[string][]domain.MovieSummary) []domain.MovieSummary {
	seen := make(map[int]struct{})
	merged := make([]domain.MovieSummary, 0)
	for _, key := range order {
		for _, item := range slots[key] {
			id := item.IdentityKey()
			if id == 0 {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

// Filter keeps items matching the genre key. "all" and the empty key pass the
// input through. An unknown key has no genre ids, so only items matched by
// genre name or carrying no genre data survive it.
func Filter(items []domain.MovieSummary, genreKey string) []domain.MovieSummary {
	key := strings.ToLower(strings.TrimSpace(genreKey))
	if key == "" || key == domain.GenreAll {
		return items
	}

	genre, _ := domain.LookupGenre(key)
	ids := make(map[int]struct{}, len(genre.IDs))
	for _, id := range genre.IDs {
		ids[id] = struct{}{}
	}
	needle := fold(domain.GenreNeedle(key))

	out := make([]domain.MovieSummary, 0, len(items))
	for _, item := range items {
		if matchesGenre(item, ids, needle) {
			out = append(out, item)
		}
	}
	return out
}

func matchesGenre(item domain.MovieSummary, ids map[int]struct{}, needle string) bool {
	switch {
	case item.GenreIDs != nil:
		for _, id := range item.GenreIDs {
			if _, ok := ids[id]; ok {
				return true
			}
		}
		return false
	case item.Genres != nil:
		for _, genre := range item.Genres {
			if strings.Contains(fold(genre.Name), needle) {
				return true
			}
		}
		return false
	case item.GenreNames != nil:
		for _, name := range item.GenreNames {
			if strings.Contains(fold(name), needle) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// fold applies Unicode case folding. Casers are stateful, so each call gets its own.
func fold(value string) string {
	return cases.Fold().String(value)
}

// Sort returns a stably sorted copy, highest first. Missing values count as 0.
func Sort(items []domain.MovieSummary, key domain.SortKey) []domain.MovieSummary {
	sorted := make([]domain.MovieSummary, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareByKey(sorted[i], sorted[j], key) > 0
	})
	return sorted
}

func compareByKey(left, right domain.MovieSummary, key domain.SortKey) int {
	switch key {
	case domain.SortByRating:
		return compareFloat64(left.VoteAverage, right.VoteAverage)
	case domain.SortByYear:
		return compareInt(left.Year(), right.Year())
	default:
		return compareFloat64(left.Popularity, right.Popularity)
	}
}

func compareInt(left, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func compareFloat64(left, right float64) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}
