// Package provider defines the provider-neutral model-listing contract and
// a TTL cache shared by every C6 adapter family.
package provider

import (
	"context"
	"iter"
	"net/http"
	"reflect"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/corenexus/llmfabric/model"
)

// Provider is implemented by each adapter family's HTTP-facing client: it
// authenticates an outgoing request and enumerates the models it currently
// serves.
type Provider interface {
	// BaseURL identifies the provider endpoint this client talks to; it is
	// part of the cache key so two clients pointed at different endpoints
	// (e.g. a regional Bedrock runtime vs. another) never share entries.
	BaseURL() string
	// Authenticate attaches credentials to req in place.
	Authenticate(req *http.Request)
	// ListModels enumerates the models currently available from the
	// provider, yielding (info, nil) for each or (zero, err) on failure.
	ListModels(ctx context.Context) iter.Seq2[model.ModelInfo, error]
}

const defaultTTL = time.Hour

type cacheEntry struct {
	models []model.ModelInfo
	expiry time.Time
}

// CachedModelList memoizes Provider.ListModels results per (provider type,
// base URL) for a configurable TTL, so repeated calls from request-serving
// code paths don't re-hit the provider's model-listing endpoint.
type CachedModelList struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCachedModelList constructs a cache with the given TTL; a zero or
// negative ttl falls back to a one-hour default.
func NewCachedModelList(ttl time.Duration) *CachedModelList {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachedModelList{entries: make(map[string]cacheEntry), ttl: ttl}
}

func cacheKey(p Provider) string {
	return reflect.TypeOf(p).String() + "|" + p.BaseURL()
}

// List returns p's model list, using the cached value when it is still
// fresh. forceRefresh bypasses the cache and re-queries the provider
// regardless of expiry.
func (c *CachedModelList) List(ctx context.Context, p Provider, forceRefresh bool) ([]model.ModelInfo, error) {
	key := cacheKey(p)

	if !forceRefresh {
		c.mu.Lock()
		entry, ok := c.entries[key]
		c.mu.Unlock()
		if ok && time.Now().Before(entry.expiry) {
			return entry.models, nil
		}
	}

	var models []model.ModelInfo
	for info, err := range p.ListModels(ctx) {
		if err != nil {
			return nil, err
		}
		models = append(models, info)
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{models: models, expiry: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	log.Print(ctx, log.KV{K: "component", V: "provider-cache"}, log.KV{K: "event", V: "refreshed"}, log.KV{K: "provider", V: key}, log.KV{K: "count", V: len(models)})

	return models, nil
}

// Invalidate drops the cached entry for p, if any, forcing the next List
// call to re-query the provider.
func (c *CachedModelList) Invalidate(p Provider) {
	c.mu.Lock()
	delete(c.entries, cacheKey(p))
	c.mu.Unlock()
}
