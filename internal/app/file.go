package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"cineverse/discovery/internal/domain"
)

var ErrInvalidPreset = errors.New("invalid feed preset")

// FileConfig is the optional TOML overlay named by CINEVERSE_CONFIG.
type FileConfig struct {
	Catalog CatalogFileConfig   `toml:"catalog"`
	Suggest SuggestFileConfig   `toml:"suggest"`
	Feed    FeedFileConfig      `toml:"feed"`
	Presets []domain.FeedPreset `toml:"presets"`
}

type CatalogFileConfig struct {
	BaseURL string  `toml:"base_url"`
	RPS     float64 `toml:"rps"`
}

type SuggestFileConfig struct {
	DebounceMS int `toml:"debounce_ms"`
	Limit      int `toml:"limit"`
}

type FeedFileConfig struct {
	RefreshSeconds int `toml:"refresh_seconds"`
	Concurrency    int `toml:"concurrency"`
}

// LoadFile reads and parses a TOML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file FileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for _, preset := range file.Presets {
		if err := validatePreset(preset); err != nil {
			return nil, err
		}
	}
	return &file, nil
}

// Apply overlays non-zero file values on top of c. Presets with a known name
// replace the default; new names are appended.
func (c Config) Apply(file *FileConfig) Config {
	if file == nil {
		return c
	}
	if value := strings.TrimRight(strings.TrimSpace(file.Catalog.BaseURL), "/"); value != "" {
		c.CatalogBaseURL = value
	}
	if file.Catalog.RPS > 0 {
		c.CatalogRPS = file.Catalog.RPS
	}
	if file.Suggest.DebounceMS > 0 {
		c.SuggestDebounce = time.Duration(file.Suggest.DebounceMS) * time.Millisecond
	}
	if file.Suggest.Limit > 0 {
		c.SuggestLimit = file.Suggest.Limit
	}
	if file.Feed.RefreshSeconds > 0 {
		c.FeedRefresh = time.Duration(file.Feed.RefreshSeconds) * time.Second
	}
	if file.Feed.Concurrency > 0 {
		c.FeedConcurrency = file.Feed.Concurrency
	}

	presets := make([]domain.FeedPreset, len(c.FeedPresets))
	copy(presets, c.FeedPresets)
	for _, override := range file.Presets {
		override.Name = strings.ToLower(strings.TrimSpace(override.Name))
		replaced := false
		for i := range presets {
			if presets[i].Name == override.Name {
				presets[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			presets = append(presets, override)
		}
	}
	c.FeedPresets = presets
	return c
}

// LoadConfigWithFile is LoadConfig plus the CINEVERSE_CONFIG overlay, if set.
func LoadConfigWithFile() (Config, error) {
	cfg := LoadConfig()
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	file, err := LoadFile(cfg.ConfigFile)
	if err != nil {
		return cfg, err
	}
	return cfg.Apply(file), nil
}

func validatePreset(preset domain.FeedPreset) error {
	if strings.TrimSpace(preset.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPreset)
	}
	if len(preset.Categories) == 0 {
		return fmt.Errorf("%w: %s has no categories", ErrInvalidPreset, preset.Name)
	}
	seen := make(map[string]struct{}, len(preset.Categories))
	for _, category := range preset.Categories {
		key := strings.TrimSpace(category.Key)
		if key == "" {
			return fmt.Errorf("%w: %s has a category without key", ErrInvalidPreset, preset.Name)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s lists %s twice", ErrInvalidPreset, preset.Name, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
