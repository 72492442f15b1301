package domain

import (
	"encoding/json"
	"testing"
)

func TestDecodeMovieListShapes(t *testing.T) {
	cases := map[string]string{
		"results":   `{"page":1,"results":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`,
		"data":      `{"data":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`,
		"top-level": `[{"id":1,"title":"A"},{"id":2,"title":"B"}]`,
		"nested":    `{"data":{"results":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}}`,
		"watchlist": `{"watchlist":[{"tmdbId":1,"title":"A"},{"tmdb_id":"2","title":"B"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			items, err := DecodeMovieList([]byte(body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(items) != 2 {
				t.Fatalf("expected 2 items, got %d", len(items))
			}
			if items[0].ID != 1 || items[1].ID != 2 {
				t.Fatalf("unexpected ids: %d, %d", items[0].ID, items[1].ID)
			}
		})
	}
}

func TestDecodeMovieListUnknownShapeIsEmpty(t *testing.T) {
	items, err := DecodeMovieList([]byte(`{"message":"ok"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}

	items, err = DecodeMovieList(nil)
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("expected empty list for empty body, got %#v, %v", items, err)
	}
}

func TestDecodeMovieListMalformed(t *testing.T) {
	if _, err := DecodeMovieList([]byte(`{"results":[`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestMovieSummaryGenrePresence(t *testing.T) {
	var withEmpty MovieSummary
	if err := json.Unmarshal([]byte(`{"id":5,"genre_ids":[]}`), &withEmpty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if withEmpty.GenreIDs == nil {
		t.Fatalf("expected present-but-empty genre_ids to be non-nil")
	}

	var without MovieSummary
	if err := json.Unmarshal([]byte(`{"id":6}`), &without); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if without.HasGenreShape() {
		t.Fatalf("expected no genre shape, got %#v", without)
	}

	encoded, err := json.Marshal(without)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var roundTrip MovieSummary
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if roundTrip.HasGenreShape() {
		t.Fatalf("absent genre fields must stay absent after a round trip: %s", encoded)
	}
}

func TestMovieSummaryFallbacks(t *testing.T) {
	var movie MovieSummary
	if err := json.Unmarshal([]byte(`{"tmdbId":42,"name":"Show","poster":"/p.jpg"}`), &movie); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if movie.ID != 42 {
		t.Fatalf("expected id from tmdbId, got %d", movie.ID)
	}
	if movie.DisplayTitle() != "Show" {
		t.Fatalf("expected name fallback, got %q", movie.DisplayTitle())
	}
	if movie.PosterPath != "/p.jpg" {
		t.Fatalf("expected poster fallback, got %q", movie.PosterPath)
	}
	if (MovieSummary{}).DisplayTitle() != "Untitled" {
		t.Fatalf("expected Untitled fallback")
	}
}

func TestMovieSummaryYear(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{date: "2023-05-01", want: 2023},
		{date: "1999", want: 1999},
		{date: "", want: 0},
		{date: "20", want: 0},
		{date: "abcd-01-01", want: 0},
	}
	for _, tc := range cases {
		if got := (MovieSummary{ReleaseDate: tc.date}).Year(); got != tc.want {
			t.Fatalf("Year(%q) = %d, want %d", tc.date, got, tc.want)
		}
	}
}

func TestDecodeMoviePageDefaults(t *testing.T) {
	page, err := DecodeMoviePage([]byte(`{"results":[{"id":1}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Page != 1 || page.TotalPages != 1 || page.TotalResults != 1 {
		t.Fatalf("unexpected page defaults: %#v", page)
	}

	page, err = DecodeMoviePage([]byte(`{"page":3,"total_pages":9,"total_results":170,"results":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Page != 3 || page.TotalPages != 9 || page.TotalResults != 170 {
		t.Fatalf("unexpected page meta: %#v", page)
	}
}

func TestMovieDetailsDecodesSimilarAndExtras(t *testing.T) {
	body := `{"id":7,"title":"Heat","overview":"LA crime","runtime":170,
		"genres":[{"id":80,"name":"Crime"}],
		"similar":{"results":[{"id":8,"title":"Ronin"}]}}`
	var details MovieDetails
	if err := json.Unmarshal([]byte(body), &details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.ID != 7 || details.Overview != "LA crime" || details.Runtime != 170 {
		t.Fatalf("unexpected details: %#v", details)
	}
	if len(details.Genres) != 1 || details.Genres[0].Name != "Crime" {
		t.Fatalf("expected genres decoded, got %#v", details.Genres)
	}
	if len(details.Similar) != 1 || details.Similar[0].ID != 8 {
		t.Fatalf("expected similar decoded, got %#v", details.Similar)
	}
}

func TestDecodeReviews(t *testing.T) {
	reviews, err := DecodeReviews([]byte(`{"results":[{"author":"a","content":"good"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Author != "a" {
		t.Fatalf("unexpected reviews: %#v", reviews)
	}
}

func TestNormalizeKeys(t *testing.T) {
	if NormalizeGenreKey(" Drama ") != "drama" {
		t.Fatalf("expected drama")
	}
	if NormalizeGenreKey("western") != GenreAll {
		t.Fatalf("expected unknown genre to normalize to all")
	}
	if NormalizeSortKey("RATING") != SortByRating {
		t.Fatalf("expected rating")
	}
	if NormalizeSortKey("") != SortByPopularity {
		t.Fatalf("expected popularity default")
	}
	if GenreNeedle("action_adventure") != "action adventure" {
		t.Fatalf("unexpected needle %q", GenreNeedle("action_adventure"))
	}
}
