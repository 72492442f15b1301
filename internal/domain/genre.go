package domain

import "strings"

const GenreAll = "all"

type GenreFilter struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	IDs   []int  `json:"ids,omitempty"`
}

// Catalog genre ids follow the backend's GENRE_MAP.
var genreFilters = []GenreFilter{
	{Key: GenreAll, Label: "All"},
	{Key: "thriller", Label: "Thriller", IDs: []int{53}},
	{Key: "drama", Label: "Drama", IDs: []int{18}},
	{Key: "family", Label: "Family", IDs: []int{10751}},
	{Key: "action_adventure", Label: "Action / Adventure", IDs: []int{28, 12}},
	{Key: "comedy", Label: "Comedy", IDs: []int{35}},
	{Key: "horror", Label: "Horror", IDs: []int{27}},
	{Key: "animation", Label: "Animation", IDs: []int{16}},
}

func GenreFilters() []GenreFilter {
	items := make([]GenreFilter, len(genreFilters))
	for i, item := range genreFilters {
		items[i] = item
		items[i].IDs = append([]int(nil), item.IDs...)
	}
	return items
}

func LookupGenre(key string) (GenreFilter, bool) {
	needle := strings.ToLower(strings.TrimSpace(key))
	for _, item := range genreFilters {
		if item.Key == needle {
			return item, true
		}
	}
	return GenreFilter{}, false
}

// NormalizeGenreKey maps unknown or empty keys to GenreAll.
func NormalizeGenreKey(raw string) string {
	if item, ok := LookupGenre(raw); ok {
		return item.Key
	}
	return GenreAll
}

// GenreNeedle is the text matched against genre names: the filter key with
// underscores read as spaces.
func GenreNeedle(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", " ")
}

type SortKey string

const (
	SortByPopularity SortKey = "popularity"
	SortByRating     SortKey = "rating"
	SortByYear       SortKey = "year"
)

func NormalizeSortKey(raw string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case SortByRating:
		return SortByRating
	case SortByYear:
		return SortByYear
	default:
		return SortByPopularity
	}
}

func SortKeys() []SortKey {
	return []SortKey{SortByPopularity, SortByRating, SortByYear}
}
