package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/details"
	"cineverse/discovery/internal/domain"
	"cineverse/discovery/internal/feed"
	"cineverse/discovery/internal/suggest"
)

const (
	maxQueryLength   = 200
	defaultPreset    = domain.PresetRecommendations
	defaultImageBase = "https://image.tmdb.org/t/p"
)

type Server struct {
	catalog      catalog.Client
	feeds        *feed.Registry
	details      *details.Loader
	logger       *slog.Logger
	suggestLimit int
	suggestOpts  []suggest.Option
	imageBase    string
	imageClient  *http.Client
	rateRPS      float64
	rateBurst    int
	clients      clientResolver
	origins      map[string]struct{}
	anyOrigin    bool
	upgrader     websocket.Upgrader
	sessions     *suggestSessions
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithFeeds(registry *feed.Registry) ServerOption {
	return func(s *Server) {
		s.feeds = registry
	}
}

func WithDetails(loader *details.Loader) ServerOption {
	return func(s *Server) {
		s.details = loader
	}
}

// WithSuggest configures one-shot suggestions and the engines owned by
// websocket sessions.
func WithSuggest(limit int, opts ...suggest.Option) ServerOption {
	return func(s *Server) {
		if limit > 0 {
			s.suggestLimit = limit
			opts = append([]suggest.Option{suggest.WithLimit(limit)}, opts...)
		}
		s.suggestOpts = opts
	}
}

func WithImageBaseURL(base string) ServerOption {
	return func(s *Server) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			s.imageBase = base
		}
	}
}

func WithImageClient(client *http.Client) ServerOption {
	return func(s *Server) {
		s.imageClient = client
	}
}

// WithRateLimit sets the inbound token bucket. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// WithTrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
// headers are believed. Every other peer is identified by its own address.
func WithTrustedProxies(prefixes []netip.Prefix) ServerOption {
	return func(s *Server) {
		s.clients = clientResolver{trusted: append([]netip.Prefix(nil), prefixes...)}
	}
}

// WithAllowedOrigins lists the cross-site origins allowed to open
// /ws/suggest. "*" allows any origin. Same-host origins are always allowed.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) {
		s.origins = make(map[string]struct{}, len(origins))
		s.anyOrigin = false
		for _, origin := range origins {
			origin = normalizeOrigin(origin)
			switch origin {
			case "":
			case "*":
				s.anyOrigin = true
			default:
				s.origins[origin] = struct{}{}
			}
		}
	}
}

func NewServer(client catalog.Client, options ...ServerOption) *Server {
	server := &Server{
		catalog:      client,
		logger:       slog.Default(),
		suggestLimit: suggest.DefaultLimit,
		imageBase:    defaultImageBase,
		rateRPS:      20,
		rateBurst:    40,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.details == nil && client != nil {
		server.details = details.NewLoader(client, server.logger)
	}
	if server.imageClient == nil {
		server.imageClient = newImageProxyClient(server.imageBase)
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     server.checkOrigin,
	}
	server.sessions = newSuggestSessions(server.logger)
	return server
}

// checkOrigin admits requests without an Origin header, same-host origins and
// the configured allow list.
func (s *Server) checkOrigin(r *http.Request) bool {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) || s.anyOrigin {
		return true
	}
	_, ok := s.origins[normalizeOrigin(raw)]
	if !ok {
		s.logger.Debug("websocket origin rejected", slog.String("origin", raw))
	}
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/suggest", s.handleSuggest)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/feed", s.handleFeed)
	mux.HandleFunc("/api/feed/health", s.handleFeedHealth)
	mux.HandleFunc("/api/genres", s.handleGenres)
	mux.HandleFunc("/api/movies/", s.handleMovieByID)
	mux.HandleFunc("/api/image", s.handleImageProxy)
	mux.HandleFunc("/ws/suggest", s.handleSuggestWS)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, s.clients, mux), "cineverse-discovery",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, requestIDMiddleware(rateLimitMiddleware(s.rateRPS, s.rateBurst, s.clients, metricsMiddleware(traced))))
}

// Close disconnects every websocket session.
func (s *Server) Close() {
	s.sessions.closeAll()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	empty := map[string]any{"items": []domain.MovieSummary{}}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" || s.catalog == nil {
		writeJSON(w, http.StatusOK, empty)
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long")
		return
	}

	page, err := s.catalog.Search(r.Context(), query, 1)
	if err != nil {
		s.logger.Warn("suggest failed", slog.String("query", truncate(query, 60)), slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, empty)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": suggest.Normalize(page.Results, s.suggestLimit)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long")
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}

	result, err := s.catalog.Search(r.Context(), query, page)
	if err != nil {
		s.logger.Warn("search failed",
			slog.String("query", truncate(query, 80)),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	aggregator, ok := s.lookupFeed(w, r)
	if !ok {
		return
	}

	if parseOptionalBool(r.URL.Query().Get("refresh")) {
		if err := aggregator.Refresh(r.Context()); err != nil && !errors.Is(err, feed.ErrSuperseded) {
			if r.Context().Err() != nil {
				return
			}
			s.logger.Warn("feed refresh failed", slog.String("feed", aggregator.Name()), slog.String("error", err.Error()))
		}
	}

	genre := r.URL.Query().Get("genre")
	sortBy := domain.SortKey(r.URL.Query().Get("sort"))
	writeJSON(w, http.StatusOK, aggregator.Snapshot(genre, sortBy))
}

func (s *Server) handleFeedHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	aggregator, ok := s.lookupFeed(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preset":     aggregator.Name(),
		"categories": aggregator.Health(),
	})
}

func (s *Server) lookupFeed(w http.ResponseWriter, r *http.Request) (*feed.Aggregator, bool) {
	if s.feeds == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "feeds are not configured")
		return nil, false
	}
	name := strings.TrimSpace(r.URL.Query().Get("preset"))
	if name == "" {
		name = defaultPreset
	}
	aggregator, ok := s.feeds.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown feed preset")
		return nil, false
	}
	return aggregator, true
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	presets := []string{}
	if s.feeds != nil {
		presets = s.feeds.Names()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"genres":  domain.GenreFilters(),
		"sorts":   domain.SortKeys(),
		"presets": presets,
	})
}

func (s *Server) handleMovieByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/movies/"), "/")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid movie id")
		return
	}
	if s.details == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog is not configured")
		return
	}

	page, err := s.details.Load(r.Context(), id)
	if err != nil {
		s.logger.Warn("details failed", slog.Int("movie_id", id), slog.String("error", err.Error()))
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// writeCatalogError maps catalog failures onto HTTP statuses.
func writeCatalogError(w http.ResponseWriter, err error) {
	var statusErr *catalog.StatusError
	switch {
	case errors.Is(err, catalog.ErrInvalidQuery), errors.Is(err, catalog.ErrInvalidID), errors.Is(err, catalog.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "movie not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", "catalog timed out")
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "upstream_rate_limited", "catalog is rate limiting requests")
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", "catalog request failed")
	}
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
