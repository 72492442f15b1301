package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"cineverse/discovery/internal/domain"
)

type Config struct {
	HTTPAddr         string
	RequestTimeout   time.Duration
	LogLevel         string
	LogFormat        string
	UserAgent        string
	CatalogProvider  string
	CatalogBaseURL   string
	CatalogToken     string
	CatalogRPS       float64
	TMDBAPIKey       string
	TMDBBaseURL      string
	TMDBImageBaseURL string
	RedisURL         string
	CacheTTL         time.Duration
	CacheDisabled    bool
	SuggestDebounce  time.Duration
	SuggestLimit     int
	FeedRefresh      time.Duration
	FeedConcurrency  int
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxies   []string
	AllowedOrigins   []string
	ConfigFile       string
	FeedPresets      []domain.FeedPreset
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8095"),
		RequestTimeout:   time.Duration(getEnvInt("CATALOG_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:        getEnv("CATALOG_USER_AGENT", "cineverse-discovery/1.0"),
		CatalogProvider:  strings.ToLower(getEnv("CATALOG_PROVIDER", "backend")),
		CatalogBaseURL:   strings.TrimRight(getEnv("CATALOG_BASE_URL", "http://localhost:5000"), "/"),
		CatalogToken:     strings.TrimSpace(os.Getenv("CATALOG_TOKEN")),
		CatalogRPS:       getEnvFloat("CATALOG_RPS", 10),
		TMDBAPIKey:       strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBImageBaseURL: getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p"),
		RedisURL:         getEnv("REDIS_URL", ""),
		CacheTTL:         time.Duration(getEnvInt("CATALOG_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:    getEnvBool("CATALOG_CACHE_DISABLED", false),
		SuggestDebounce:  time.Duration(getEnvInt("SUGGEST_DEBOUNCE_MS", 300)) * time.Millisecond,
		SuggestLimit:     getEnvInt("SUGGEST_LIMIT", 8),
		FeedRefresh:      time.Duration(getEnvInt("FEED_REFRESH_SECONDS", 300)) * time.Second,
		FeedConcurrency:  getEnvInt("FEED_CONCURRENCY", 9),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 40),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES"),
		AllowedOrigins:   getEnvList("WS_ALLOWED_ORIGINS"),
		ConfigFile:       getEnv("CINEVERSE_CONFIG", ""),
		FeedPresets:      domain.DefaultFeedPresets(),
	}
}

// Preset returns the named feed preset.
func (c Config) Preset(name string) (domain.FeedPreset, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, preset := range c.FeedPresets {
		if preset.Name == needle {
			return preset, true
		}
	}
	return domain.FeedPreset{}, false
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var values []string
	for _, value := range strings.Split(os.Getenv(key), ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
