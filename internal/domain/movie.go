package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

const untitled = "Untitled"

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MovieSummary is the unit shared by suggestions, feeds and the watchlist.
// The three genre fields are not omitempty: a nil slice encodes as
// null and decodes back to nil, so "absent" and "present but empty" survive a
// cache round trip.
type MovieSummary struct {
	ID          int      `json:"id"`
	Title       string   `json:"title,omitempty"`
	Name        string   `json:"name,omitempty"`
	PosterPath  string   `json:"poster_path,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Popularity  float64  `json:"popularity,omitempty"`
	VoteAverage float64  `json:"vote_average,omitempty"`
	GenreIDs    []int    `json:"genre_ids"`
	Genres      []Genre  `json:"genres"`
	GenreNames  []string `json:"genre_names"`
}

func (m *MovieSummary) UnmarshalJSON(data []byte) error {
	type plain MovieSummary
	var raw struct {
		plain
		TMDBID      json.Number `json:"tmdbId"`
		TMDBIDSnake json.Number `json:"tmdb_id"`
		Poster      string      `json:"poster"`
		Backdrop    string      `json:"backdrop_path"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MovieSummary(raw.plain)
	if m.ID == 0 {
		m.ID = numberToID(raw.TMDBID)
	}
	if m.ID == 0 {
		m.ID = numberToID(raw.TMDBIDSnake)
	}
	if m.PosterPath == "" {
		m.PosterPath = strings.TrimSpace(raw.Poster)
	}
	if m.PosterPath == "" {
		m.PosterPath = strings.TrimSpace(raw.Backdrop)
	}
	return nil
}

func numberToID(value json.Number) int {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func (m MovieSummary) DisplayTitle() string {
	if title := strings.TrimSpace(m.Title); title != "" {
		return title
	}
	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	return untitled
}

// Year is derived from the first four characters of the release date.
// Anything unparseable yields 0.
func (m MovieSummary) Year() int {
	date := strings.TrimSpace(m.ReleaseDate)
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year < 0 {
		return 0
	}
	return year
}

// IdentityKey is the merge/dedup key. Zero means the item has no identity.
func (m MovieSummary) IdentityKey() int {
	return m.ID
}

func (m MovieSummary) HasGenreShape() bool {
	return m.GenreIDs != nil || m.Genres != nil || m.GenreNames != nil
}

// Clone returns a deep copy so cached values never alias caller slices.
func (m MovieSummary) Clone() MovieSummary {
	cloned := m
	if m.GenreIDs != nil {
		cloned.GenreIDs = append(make([]int, 0, len(m.GenreIDs)), m.GenreIDs...)
	}
	if m.Genres != nil {
		cloned.Genres = append(make([]Genre, 0, len(m.Genres)), m.Genres...)
	}
	if m.GenreNames != nil {
		cloned.GenreNames = append(make([]string, 0, len(m.GenreNames)), m.GenreNames...)
	}
	return cloned
}

func CloneMovies(items []MovieSummary) []MovieSummary {
	if items == nil {
		return nil
	}
	cloned := make([]MovieSummary, len(items))
	for i, item := range items {
		cloned[i] = item.Clone()
	}
	return cloned
}

type Review struct {
	ID        string `json:"id,omitempty"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type MovieDetails struct {
	MovieSummary
	Overview     string         `json:"overview,omitempty"`
	Runtime      int            `json:"runtime,omitempty"`
	BackdropPath string         `json:"backdrop_path,omitempty"`
	Tagline      string         `json:"tagline,omitempty"`
	Similar      []MovieSummary `json:"similar,omitempty"`
}

type MoviePage struct {
	Page         int            `json:"page"`
	TotalPages   int            `json:"totalPages"`
	TotalResults int            `json:"totalResults"`
	Results      []MovieSummary `json:"results"`
}

type WatchlistEntry struct {
	TMDBID      int    `json:"tmdbId"`
	Title       string `json:"title"`
	Poster      string `json:"poster,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
}

func WatchlistEntryFor(movie MovieSummary) WatchlistEntry {
	return WatchlistEntry{
		TMDBID:      movie.IdentityKey(),
		Title:       movie.DisplayTitle(),
		Poster:      movie.PosterPath,
		ReleaseDate: movie.ReleaseDate,
	}
}
