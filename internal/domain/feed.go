package domain

import "time"

const (
	CategoryTrending = "trending"
	CategoryLatest   = "latest"
)

// Category binds a feed slot to a catalog query. Key names the slot; Source is
// the catalog category key passed to ListByCategory (they differ for aliases
// such as the home page's "kids" row backed by "family").
type Category struct {
	Key    string `json:"key" toml:"key"`
	Label  string `json:"label" toml:"label"`
	Source string `json:"source" toml:"source"`
	Page   int    `json:"page,omitempty" toml:"page"`
}

func (c Category) SourceKey() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Key
}

type FeedPreset struct {
	Name       string     `json:"name" toml:"name"`
	Cap        int        `json:"cap" toml:"cap"`
	Categories []Category `json:"categories" toml:"categories"`
}

const (
	PresetRecommendations = "recommendations"
	PresetHome            = "home"
)

func DefaultFeedPresets() []FeedPreset {
	return []FeedPreset{
		{
			Name: PresetRecommendations,
			Cap:  24,
			Categories: []Category{
				{Key: CategoryTrending, Label: "Trending"},
				{Key: CategoryLatest, Label: "Latest", Page: 1},
				{Key: "thriller", Label: "Thriller", Page: 1},
				{Key: "drama", Label: "Drama", Page: 1},
				{Key: "family", Label: "Family", Page: 1},
				{Key: "action_adventure", Label: "Action / Adventure", Page: 1},
				{Key: "comedy", Label: "Comedy", Page: 1},
				{Key: "horror", Label: "Horror", Page: 1},
				{Key: "animation", Label: "Animation", Page: 1},
			},
		},
		{
			Name: PresetHome,
			Cap:  18,
			Categories: []Category{
				{Key: CategoryTrending, Label: "Trending Now"},
				{Key: CategoryLatest, Label: "Latest Releases", Page: 1},
				{Key: "thriller", Label: "Thriller Picks", Page: 1},
				{Key: "drama", Label: "Drama", Page: 1},
				{Key: "kids", Label: "Kids' Choice", Source: "family", Page: 1},
				{Key: "action_adventure", Label: "Action & Adventure", Page: 1},
			},
		},
	}
}

type CategoryStatus struct {
	Key       string `json:"key"`
	OK        bool   `json:"ok"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
	Count     int    `json:"count"`
	ElapsedMS int64  `json:"elapsedMs"`
}

type FeedRow struct {
	Key   string         `json:"key"`
	Label string         `json:"label"`
	Items []MovieSummary `json:"items"`
}

type FeedSnapshot struct {
	Preset    string           `json:"preset,omitempty"`
	Genre     string           `json:"genre"`
	SortBy    SortKey          `json:"sortBy"`
	Rows      []FeedRow        `json:"rows"`
	Merged    int              `json:"merged"`
	Items     []MovieSummary   `json:"items"`
	Hero      *MovieSummary    `json:"hero,omitempty"`
	Loading   bool             `json:"loading"`
	AllFailed bool             `json:"allFailed"`
	Statuses  []CategoryStatus `json:"statuses"`
	UpdatedAt *time.Time       `json:"updatedAt,omitempty"`
}
