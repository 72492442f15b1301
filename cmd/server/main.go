package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "cineverse/discovery/internal/api/http"
	"cineverse/discovery/internal/app"
	"cineverse/discovery/internal/feed"
	"cineverse/discovery/internal/metrics"
	"cineverse/discovery/internal/suggest"
	"cineverse/discovery/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, cfgErr := app.LoadConfigWithFile()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Error("config file rejected", slog.String("path", cfg.ConfigFile), slog.String("error", cfgErr.Error()))
		os.Exit(1)
	}
	trustedProxies, err := apihttp.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("TRUSTED_PROXIES rejected", slog.String("error", err.Error()))
		os.Exit(1)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "cineverse-discovery", version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "cineverse-discovery"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("catalogProvider", cfg.CatalogProvider),
		slog.String("catalogBaseURL", cfg.CatalogBaseURL),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Duration("suggestDebounce", cfg.SuggestDebounce),
		slog.Duration("feedRefresh", cfg.FeedRefresh),
		slog.Int("presets", len(cfg.FeedPresets)),
		slog.Int("trustedProxies", len(trustedProxies)),
		slog.Any("allowedOrigins", cfg.AllowedOrigins),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogs := app.BuildCatalogs(rootCtx, cfg, logger)
	defer catalogs.Close()

	feeds := feed.NewRegistry(catalogs.Client, cfg.FeedPresets,
		feed.WithConcurrency(cfg.FeedConcurrency),
		feed.WithLogger(logger),
	)
	go feeds.RunAll(rootCtx, cfg.FeedRefresh)

	apiServer := apihttp.NewServer(catalogs.Client,
		apihttp.WithLogger(logger),
		apihttp.WithFeeds(feeds),
		apihttp.WithSuggest(cfg.SuggestLimit, suggest.WithDebounce(cfg.SuggestDebounce)),
		apihttp.WithImageBaseURL(cfg.TMDBImageBaseURL),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		apihttp.WithTrustedProxies(trustedProxies),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins...),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket sessions outlive any fixed write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("cineverse discovery service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("version", version),
		slog.Any("presets", feeds.Names()),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	apiServer.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("cineverse discovery service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
