package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"cineverse/discovery/internal/domain"
)

// Registry holds one aggregator per preset.
type Registry struct {
	aggregators map[string]*Aggregator
	names       []string
}

func NewRegistry(client Lister, presets []domain.FeedPreset, opts ...Option) *Registry {
	r := &Registry{aggregators: make(map[string]*Aggregator, len(presets))}
	for _, preset := range presets {
		name := strings.ToLower(strings.TrimSpace(preset.Name))
		if name == "" {
			continue
		}
		if _, dup := r.aggregators[name]; dup {
			continue
		}
		preset.Name = name
		r.aggregators[name] = FromPreset(client, preset, opts...)
		r.names = append(r.names, name)
	}
	return r
}

func (r *Registry) Get(name string) (*Aggregator, bool) {
	aggregator, ok := r.aggregators[strings.ToLower(strings.TrimSpace(name))]
	return aggregator, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// RunAll keeps every aggregator fresh until ctx is done.
func (r *Registry) RunAll(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup
	for _, name := range r.names {
		wg.Add(1)
		go func(aggregator *Aggregator) {
			defer wg.Done()
			aggregator.Run(ctx, interval)
		}(r.aggregators[name])
	}
	wg.Wait()
}
