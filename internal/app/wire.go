package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cineverse/discovery/internal/catalog"
	"cineverse/discovery/internal/providers/tmdb"
)

const (
	ProviderBackend = "backend"
	ProviderTMDB    = "tmdb"
)

// Catalogs bundles the read client used for browsing with the backend that
// owns the session-scoped watchlist.
type Catalogs struct {
	Client  catalog.Client
	Backend *catalog.Backend
	Redis   *redis.Client
}

// Close releases the shared redis connection, if any.
func (c Catalogs) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

// BuildCatalogs wires the configured catalog provider. The backend is always
// built because the watchlist lives there.
func BuildCatalogs(ctx context.Context, cfg Config, logger *slog.Logger) Catalogs {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	redisClient := connectRedis(ctx, cfg, logger)

	var cache catalog.Cache
	switch {
	case cfg.CacheDisabled:
	case redisClient != nil:
		cache = catalog.NewRedisCache(redisClient)
	default:
		cache = catalog.NewMemoryCache(0)
	}

	backend := catalog.NewBackend(catalog.BackendConfig{
		BaseURL:   cfg.CatalogBaseURL,
		Token:     cfg.CatalogToken,
		UserAgent: cfg.UserAgent,
		Client:    httpClient,
		RPS:       cfg.CatalogRPS,
		Cache:     cache,
		CacheTTL:  cfg.CacheTTL,
		Logger:    logger,
	})
	out := Catalogs{Client: backend, Backend: backend, Redis: redisClient}

	if cfg.CatalogProvider != ProviderTMDB {
		logger.Info("catalog backend initialized", slog.String("baseURL", cfg.CatalogBaseURL))
		return out
	}
	client := buildTMDBClient(cfg, httpClient, redisClient)
	if !client.Enabled() {
		logger.Warn("tmdb provider selected without TMDB_API_KEY, using backend")
		return out
	}
	logger.Info("tmdb client initialized", slog.String("baseURL", cfg.TMDBBaseURL))
	out.Client = client
	return out
}

func buildTMDBClient(cfg Config, httpClient *http.Client, redisClient *redis.Client) *tmdb.Client {
	var shared *redis.Client
	if !cfg.CacheDisabled {
		shared = redisClient
	}
	return tmdb.NewClient(tmdb.Config{
		APIKey:   cfg.TMDBAPIKey,
		BaseURL:  cfg.TMDBBaseURL,
		Client:   httpClient,
		Redis:    shared,
		CacheTTL: cfg.CacheTTL,
	})
}

func connectRedis(ctx context.Context, cfg Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" || cfg.CacheDisabled {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}
