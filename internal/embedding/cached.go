package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/khanglvm/tool-hub-search/internal/logging"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/storage"
)

// sharedEmbedTimeout bounds a backend call shared by several callers. The
// call outlives any single caller's cancellation.
const sharedEmbedTimeout = 60 * time.Second

// CachedEmbedder memoizes an Embedder in memory and, when a store is given,
// in persistent storage. Concurrent identical misses share one backend call.
type CachedEmbedder struct {
	inner   Embedder
	store   storage.Storage
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string][]float32
	group singleflight.Group
}

// NewCachedEmbedder wraps inner. store and m may be nil.
func NewCachedEmbedder(inner Embedder, store storage.Storage, m *metrics.Metrics) *CachedEmbedder {
	return &CachedEmbedder{
		inner:   inner,
		store:   store,
		metrics: m,
		logger:  logging.WithComponent("embedding-cache"),
		cache:   make(map[string][]float32),
	}
}

func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.Model()
	out := make([][]float32, len(texts))

	var missing []string
	missingAt := make(map[string][]int)
	for i, text := range texts {
		key := storage.EmbeddingKey(model, text)
		if vec, ok := c.lookup(key, model); ok {
			out[i] = vec
			c.metrics.CacheHit()
			continue
		}
		if _, seen := missingAt[text]; !seen {
			missing = append(missing, text)
		}
		missingAt[text] = append(missingAt[text], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batchKey := storage.EmbeddingKey(model, strings.Join(missing, "\x00"))
	ch := c.group.DoChan(batchKey, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedEmbedTimeout)
		defer cancel()
		return c.inner.Embed(callCtx, missing)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(missing), res.Err)
	}
	vecs := res.Val.([][]float32)
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ErrCountMismatch, len(missing), len(vecs))
	}

	for j, text := range missing {
		c.metrics.CacheMiss()
		c.save(storage.EmbeddingKey(model, text), vecs[j], model)
		for _, i := range missingAt[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(key, model string) ([]float32, bool) {
	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return vec, true
	}

	if c.store == nil {
		return nil, false
	}
	vec, storedModel, err := c.store.GetEmbedding(key)
	if err != nil || vec == nil || storedModel != model {
		return nil, false
	}

	c.mu.Lock()
	c.cache[key] = vec
	c.mu.Unlock()
	return vec, true
}

func (c *CachedEmbedder) save(key string, vec []float32, model string) {
	c.mu.Lock()
	c.cache[key] = vec
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.SaveEmbedding(key, vec, model); err != nil {
		c.logger.Warn("failed to persist embedding", "error", err)
	}
}
