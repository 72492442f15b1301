package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/metrics"
)

const (
	defaultBaseURL    = "http://localhost:5000"
	defaultUserAgent  = "cineverse-discovery/1.0"
	maxBodyBytes      = 4 << 20
	maxErrorBodyBytes = 4 << 10
)

// Backend talks to the CineVerse REST backend.
type Backend struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     Cache
	cacheTTL  time.Duration
	retry     RetryConfig
	logger    *slog.Logger
	now       func() time.Time

	tokenMu sync.RWMutex
	token   string
}

type BackendConfig struct {
	BaseURL   string
	Token     string
	UserAgent string
	Client    *http.Client
	// RPS caps outbound requests; zero disables the limiter.
	RPS      float64
	Burst    int
	Cache    Cache
	CacheTTL time.Duration
	Retry    *RetryConfig
	Logger   *slog.Logger
}

func NewBackend(cfg BackendConfig) *Backend {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
		if cfg.RPS > 1 {
			burst = int(cfg.RPS)
		}
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		cache:     cfg.Cache,
		cacheTTL:  cacheTTL,
		retry:     retry,
		logger:    logger,
		now:       time.Now,
		token:     strings.TrimSpace(cfg.Token),
	}
}

func (b *Backend) SetToken(token string) {
	b.tokenMu.Lock()
	b.token = strings.TrimSpace(token)
	b.tokenMu.Unlock()
}

func (b *Backend) currentToken() string {
	b.tokenMu.RLock()
	defer b.tokenMu.RUnlock()
	return b.token
}

func (b *Backend) Search(ctx context.Context, query string, page int) (domain.MoviePage, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return domain.MoviePage{}, ErrInvalidQuery
	}
	page = normalizePage(page)

	key := cacheKeyPage("search", trimmed, page)
	if cached, ok := loadCached[domain.MoviePage](ctx, b.cache, key); ok {
		metrics.CacheHitsTotal.Inc()
		return cached, nil
	}
	if b.cache != nil {
		metrics.CacheMissesTotal.Inc()
	}

	params := url.Values{
		"query": {trimmed},
		"page":  {strconv.Itoa(page)},
	}
	body, err := b.do(ctx, "search", http.MethodGet, "/api/movies/search", params, nil)
	if err != nil {
		return domain.MoviePage{}, err
	}
	result, err := domain.DecodeMoviePage(body)
	if err != nil {
		return domain.MoviePage{}, fmt.Errorf("decode search: %w", err)
	}
	storeCached(ctx, b.cache, key, result, b.cacheTTL)
	return result, nil
}

func (b *Backend) ListByCategory(ctx context.Context, key string, page int) ([]domain.MovieSummary, error) {
	path, err := CategoryPath(key)
	if err != nil {
		return nil, err
	}
	page = normalizePage(page)
	normalized := strings.ToLower(strings.TrimSpace(key))

	ck := cacheKeyPage("category", normalized, page)
	if cached, ok := loadCached[[]domain.MovieSummary](ctx, b.cache, ck); ok {
		metrics.CacheHitsTotal.Inc()
		return cached, nil
	}
	if b.cache != nil {
		metrics.CacheMissesTotal.Inc()
	}

	var params url.Values
	if normalized != domain.CategoryTrending {
		params = url.Values{"page": {strconv.Itoa(page)}}
	}
	body, err := b.do(ctx, "category", http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	items, err := domain.DecodeMovieList(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", normalized, err)
	}
	storeCached(ctx, b.cache, ck, items, b.cacheTTL)
	return items, nil
}

func (b *Backend) Details(ctx context.Context, id int) (domain.MovieDetails, error) {
	if id <= 0 {
		return domain.MovieDetails{}, ErrInvalidID
	}
	key := cacheKey("details", strconv.Itoa(id))
	if cached, ok := loadCached[domain.MovieDetails](ctx, b.cache, key); ok {
		metrics.CacheHitsTotal.Inc()
		return cached, nil
	}

	body, err := b.do(ctx, "details", http.MethodGet, "/api/movies/"+strconv.Itoa(id), nil, nil)
	if err != nil {
		return domain.MovieDetails{}, err
	}
	var details domain.MovieDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return domain.MovieDetails{}, fmt.Errorf("decode details: %w", err)
	}
	if details.ID == 0 {
		details.ID = id
	}
	storeCached(ctx, b.cache, key, details, b.cacheTTL)
	return details, nil
}

func (b *Backend) Reviews(ctx context.Context, id int) ([]domain.Review, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	body, err := b.do(ctx, "reviews", http.MethodGet, "/api/movies/"+strconv.Itoa(id)+"/reviews", nil, nil)
	if err != nil {
		return nil, err
	}
	reviews, err := domain.DecodeReviews(body)
	if err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

func (b *Backend) do(ctx context.Context, operation, method, path string, query url.Values, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		encoded = data
	}

	endpoint := b.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	started := time.Now()
	var body []byte
	retry := b.retry
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.CatalogRetriesTotal.WithLabelValues(operation).Inc()
		b.logger.Debug("retrying catalog request",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}
	err := RetryWithBackoff(ctx, retry, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", b.userAgent)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := b.currentToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := b.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			return &StatusError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(data),
				RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), b.now()),
			}
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		body = data
		return nil
	})

	metrics.CatalogRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	metrics.CatalogRequestsTotal.WithLabelValues(operation, requestStatus(err)).Inc()
	if err != nil {
		b.logger.Debug("catalog request failed",
			slog.String("operation", operation),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return body, nil
}

// errorMessage extracts {"message": ...} from an error body, else the trimmed text.
func errorMessage(data []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if text, ok := envelope.Error.(string); ok && text != "" {
			return text
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func requestStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	return "error"
}
