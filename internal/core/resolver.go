package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// IntegrationMatchThreshold is the score an integration must exceed to
// match a header row.
const IntegrationMatchThreshold = 0.7

// HeaderCache remembers which integration a header set resolved to.
// Keys are the sorted, normalized header names. Only hits are cached and
// entries are never invalidated, so a cache should live no longer than the
// integration configuration it was filled from.
type HeaderCache struct {
	mu      sync.RWMutex
	entries map[string]Integration
}

// NewHeaderCache creates an empty cache.
func NewHeaderCache() *HeaderCache {
	return &HeaderCache{entries: make(map[string]Integration)}
}

// Get returns the cached integration for headers.
func (c *HeaderCache) Get(headers []string) (Integration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	integ, ok := c.entries[headerCacheKey(headers)]
	return integ, ok
}

// Put caches integ for headers.
func (c *HeaderCache) Put(headers []string, integ Integration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[headerCacheKey(headers)] = integ
}

// Len returns the number of cached header sets.
func (c *HeaderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func headerCacheKey(headers []string) string {
	seen := make(map[string]bool, len(headers))
	keys := make([]string, 0, len(headers))
	for _, h := range headers {
		k := normalizeHeader(h)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x1f")
}

// ScoreHeaders returns the fraction of the mapping's columns present in
// headers. Matching ignores case and surrounding whitespace.
func ScoreHeaders(headers []string, mapping FieldMapping) float64 {
	if len(mapping) == 0 {
		return 0
	}

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[normalizeHeader(h)] = true
	}

	matched := 0
	for _, e := range mapping {
		if present[normalizeHeader(e.Column)] {
			matched++
		}
	}
	return float64(matched) / float64(len(mapping))
}

// Resolver picks the integration that applies to a file.
type Resolver struct {
	source IntegrationSource
	cache  *HeaderCache
}

// NewResolver creates a resolver with its own header cache.
func NewResolver(source IntegrationSource) *Resolver {
	return &Resolver{source: source, cache: NewHeaderCache()}
}

// Cache exposes the resolver's header cache.
func (r *Resolver) Cache() *HeaderCache {
	return r.cache
}

// FindIntegrationByHeaders returns the active integration whose field
// mapping best covers headers. A score must exceed
// IntegrationMatchThreshold; on equal scores the integration listed first
// (lowest id) wins. Returns false when nothing matches.
func (r *Resolver) FindIntegrationByHeaders(ctx context.Context, headers []string) (Integration, bool, error) {
	if integ, ok := r.cache.Get(headers); ok {
		return integ, true, nil
	}

	candidates, err := r.source.ListActiveIntegrations(ctx)
	if err != nil {
		return Integration{}, false, storageErr("list active integrations", err)
	}

	var (
		best      Integration
		bestScore float64
		found     bool
	)
	for _, integ := range candidates {
		if !integ.IsActive {
			continue
		}
		score := ScoreHeaders(headers, integ.FieldMapping)
		if score <= IntegrationMatchThreshold {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = integ, score, true
		}
	}

	if found {
		r.cache.Put(headers, best)
	}
	return best, found, nil
}

// FindIntegrationByName returns the named integration, which must be active.
func (r *Resolver) FindIntegrationByName(ctx context.Context, name string) (Integration, error) {
	integ, err := r.source.FindIntegrationByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return Integration{}, &ValidationError{Input: name, Err: ErrIntegrationNotFound}
	}
	if err != nil {
		return Integration{}, storageErr("find integration", err)
	}
	if !integ.IsActive {
		return Integration{}, &ValidationError{Input: name, Err: ErrIntegrationInactive}
	}
	return integ, nil
}

// Resolve uses key when given and header matching otherwise.
func (r *Resolver) Resolve(ctx context.Context, headers []string, key string) (Integration, error) {
	if key = strings.TrimSpace(key); key != "" {
		return r.FindIntegrationByName(ctx, key)
	}

	integ, ok, err := r.FindIntegrationByHeaders(ctx, headers)
	if err != nil {
		return Integration{}, err
	}
	if !ok {
		return Integration{}, &ValidationError{
			Input: strings.Join(headers, ","),
			Err:   fmt.Errorf("%w (threshold %.0f%%)", ErrNoMatchingIntegration, IntegrationMatchThreshold*100),
		}
	}
	return integ, nil
}
