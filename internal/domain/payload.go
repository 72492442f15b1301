package domain

import (
	"bytes"
	"encoding/json"
)

// listEnvelopeKeys are checked in order when a payload is an object.
var listEnvelopeKeys = []string{"results", "data", "watchlist"}

// DecodeMovieList normalizes the catalog's result shapes: a top-level array, or
// an object carrying the list under one of listEnvelopeKeys (nested objects are
// followed once more). Unknown shapes decode to an empty list; malformed JSON is
// an error.
func DecodeMovieList(body []byte) ([]MovieSummary, error) {
	return decodeMovieList(body, 2)
}

func decodeMovieList(body []byte, depth int) ([]MovieSummary, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []MovieSummary{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []MovieSummary
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []MovieSummary{}
		}
		return items, nil
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		if depth <= 0 {
			return []MovieSummary{}, nil
		}
		for _, key := range listEnvelopeKeys {
			raw, ok := envelope[key]
			if !ok {
				continue
			}
			return decodeMovieList(raw, depth-1)
		}
		return []MovieSummary{}, nil
	default:
		var discard any
		if err := json.Unmarshal(trimmed, &discard); err != nil {
			return nil, err
		}
		return []MovieSummary{}, nil
	}
}

// DecodeMoviePage decodes a paged search payload. total_pages defaults to 1.
func DecodeMoviePage(body []byte) (MoviePage, error) {
	items, err := DecodeMovieList(body)
	if err != nil {
		return MoviePage{}, err
	}
	page := MoviePage{Page: 1, TotalPages: 1, Results: items, TotalResults: len(items)}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return page, nil
	}
	var meta struct {
		Page         int `json:"page"`
		TotalPages   int `json:"total_pages"`
		TotalResults int `json:"total_results"`
	}
	if err := json.Unmarshal(trimmed, &meta); err != nil {
		return page, nil
	}
	if meta.Page > 0 {
		page.Page = meta.Page
	}
	if meta.TotalPages > 0 {
		page.TotalPages = meta.TotalPages
	}
	if meta.TotalResults > 0 {
		page.TotalResults = meta.TotalResults
	}
	return page, nil
}

func (d *MovieDetails) UnmarshalJSON(data []byte) error {
	var summary MovieSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return err
	}
	var extra struct {
		Overview     string          `json:"overview"`
		Runtime      int             `json:"runtime"`
		BackdropPath string          `json:"backdrop_path"`
		Tagline      string          `json:"tagline"`
		Similar      json.RawMessage `json:"similar"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	similar, err := DecodeMovieList(extra.Similar)
	if err != nil {
		return err
	}
	*d = MovieDetails{
		MovieSummary: summary,
		Overview:     extra.Overview,
		Runtime:      extra.Runtime,
		BackdropPath: extra.BackdropPath,
		Tagline:      extra.Tagline,
	}
	if len(similar) > 0 {
		d.Similar = similar
	}
	return nil
}

// DecodeReviews accepts the same envelope shapes as DecodeMovieList.
func DecodeReviews(body []byte) ([]Review, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Review{}, nil
	}
	if trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		raw, ok := envelope["results"]
		if !ok {
			raw, ok = envelope["data"]
		}
		if !ok {
			return []Review{}, nil
		}
		trimmed = bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return []Review{}, nil
		}
	}
	var reviews []Review
	if err := json.Unmarshal(trimmed, &reviews); err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []Review{}
	}
	return reviews, nil
}
