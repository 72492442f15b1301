package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"cineverse/discovery/internal/metrics"
)

const (
	defaultFailureThreshold = 3
	defaultBlockBase        = 2 * time.Minute
	defaultBlockMax         = 15 * time.Minute
)

type categoryHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	totalRequests       int64
	totalFailures       int64
}

// CategoryHealth is the breaker view of one category.
type CategoryHealth struct {
	Key                 string     `json:"key"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
}

func (a *Aggregator) isCategoryBlocked(key string, now time.Time) (bool, time.Time, string) {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()

	state := a.health[key]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (a *Aggregator) recordCategoryResult(key string, err error, latency time.Duration, now time.Time) {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()

	state := a.health[key]
	if state == nil {
		state = &categoryHealth{}
		a.health[key] = state
	}
	state.totalRequests++
	state.lastLatency = latency

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.CategoryFetchTotal.WithLabelValues(key, "ok").Inc()
		metrics.CategoryAvailable.WithLabelValues(key).Set(1)
		return
	}

	// A cancelled cycle says nothing about the category itself.
	if errors.Is(err, context.Canceled) {
		metrics.CategoryFetchTotal.WithLabelValues(key, "canceled").Inc()
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if isTimeoutLikeError(err) {
		status = "timeout"
	}
	metrics.CategoryFetchTotal.WithLabelValues(key, status).Inc()

	if state.consecutiveFailures >= a.failureThreshold {
		state.blockedUntil = now.Add(a.blockDuration(state.consecutiveFailures))
		metrics.CategoryAvailable.WithLabelValues(key).Set(0)
	}
}

// blockDuration is blockBase × 2^(failures - threshold), capped at blockMax.
func (a *Aggregator) blockDuration(consecutiveFailures int) time.Duration {
	exponent := max(consecutiveFailures-a.failureThreshold, 0)
	d := a.blockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > a.blockMax {
			return a.blockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// Health reports breaker state for every configured category, in category order.
func (a *Aggregator) Health() []CategoryHealth {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()

	items := make([]CategoryHealth, 0, len(a.categories))
	for _, category := range a.categories {
		item := CategoryHealth{Key: category.Key}
		if state := a.health[category.Key]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
		}
		items = append(items, item)
	}
	return items
}
