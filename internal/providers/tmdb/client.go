package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/metrics"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultLanguage = "en-US"
	redisCacheKey   = "cineverse:tmdb:"
)

var ErrDisabled = errors.New("tmdb api key not configured")

// Client is a catalog.Client that talks to TMDB directly instead of going
// through the CineVerse backend.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	retry    catalog.RetryConfig
}

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
	Retry    *catalog.RetryConfig
}

var _ catalog.Client = (*Client)(nil)

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	retry := catalog.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		retry:    retry,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) Search(ctx context.Context, query string, page int) (domain.MoviePage, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return domain.MoviePage{}, catalog.ErrInvalidQuery
	}
	page = max(page, 1)
	params := url.Values{"query": {trimmed}, "page": {strconv.Itoa(page)}}

	body, err := c.get(ctx, "search", "/search/movie", params, fmt.Sprintf("search:%s:%d", strings.ToLower(trimmed), page))
	if err != nil {
		return domain.MoviePage{}, err
	}
	return domain.DecodeMoviePage(body)
}

func (c *Client) ListByCategory(ctx context.Context, key string, page int) ([]domain.MovieSummary, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	page = max(page, 1)

	var (
		path   string
		params = url.Values{"page": {strconv.Itoa(page)}}
	)
	switch normalized {
	case domain.CategoryTrending:
		path = "/trending/movie/week"
	case domain.CategoryLatest:
		path = "/movie/now_playing"
	default:
		genre, ok := domain.LookupGenre(normalized)
		if !ok || len(genre.IDs) == 0 {
			return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownCategory, key)
		}
		ids := make([]string, len(genre.IDs))
		for i, id := range genre.IDs {
			ids[i] = strconv.Itoa(id)
		}
		path = "/discover/movie"
		params.Set("with_genres", strings.Join(ids, "|"))
		params.Set("sort_by", "popularity.desc")
	}

	body, err := c.get(ctx, "category", path, params, fmt.Sprintf("category:%s:%d", normalized, page))
	if err != nil {
		return nil, err
	}
	return domain.DecodeMovieList(body)
}

func (c *Client) Details(ctx context.Context, id int) (domain.MovieDetails, error) {
	if id <= 0 {
		return domain.MovieDetails{}, catalog.ErrInvalidID
	}
	params := url.Values{"append_to_response": {"similar"}}
	body, err := c.get(ctx, "details", "/movie/"+strconv.Itoa(id), params, fmt.Sprintf("details:%d", id))
	if err != nil {
		return domain.MovieDetails{}, err
	}
	var details domain.MovieDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return domain.MovieDetails{}, err
	}
	return details, nil
}

func (c *Client) Reviews(ctx context.Context, id int) ([]domain.Review, error) {
	if id <= 0 {
		return nil, catalog.ErrInvalidID
	}
	body, err := c.get(ctx, "reviews", "/movie/"+strconv.Itoa(id)+"/reviews", url.Values{}, fmt.Sprintf("reviews:%d", id))
	if err != nil {
		return nil, err
	}
	return domain.DecodeReviews(body)
}

// get fetches a raw TMDB payload, consulting Redis first when configured.
func (c *Client) get(ctx context.Context, operation, path string, params url.Values, cacheKey string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	cacheKey = cacheKey + ":" + c.language

	if c.redis != nil {
		data, err := c.redis.Get(ctx, redisCacheKey+cacheKey).Bytes()
		if err == nil {
			metrics.CacheHitsTotal.Inc()
			return data, nil
		}
		metrics.CacheMissesTotal.Inc()
	}

	params.Set("api_key", c.apiKey)
	params.Set("language", c.language)
	reqURL := c.baseURL + path + "?" + params.Encode()

	started := time.Now()
	var body []byte
	retry := c.retry
	retry.OnRetry = func(int, error, time.Duration) {
		metrics.CatalogRetriesTotal.WithLabelValues("tmdb_" + operation).Inc()
	}
	err := catalog.RetryWithBackoff(ctx, retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &catalog.StatusError{
				Operation:  "tmdb " + operation,
				StatusCode: resp.StatusCode,
				Message:    statusMessage(data),
				RetryAfter: catalog.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		if err != nil {
			return err
		}
		body = data
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CatalogRequestDuration.WithLabelValues("tmdb_" + operation).Observe(time.Since(started).Seconds())
	metrics.CatalogRequestsTotal.WithLabelValues("tmdb_"+operation, status).Inc()
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		_ = c.redis.Set(ctx, redisCacheKey+cacheKey, body, c.cacheTTL).Err()
	}
	return body, nil
}

func statusMessage(data []byte) string {
	var payload struct {
		StatusMessage string `json:"status_message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.StatusMessage != "" {
		return payload.StatusMessage
	}
	return strings.TrimSpace(string(data))
}
