package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/embedding"
)

const backendSemantic = "semantic"

// SemanticEngine owns embedding-backed collections. Vectors are held in
// memory and searched exhaustively by cosine similarity.
type SemanticEngine struct {
	cfg         engineConfig
	embedder    embedding.Embedder
	collections *registry[*SemanticCollection]
}

func NewSemanticEngine(embedder embedding.Embedder, opts ...Option) (*SemanticEngine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}
	return &SemanticEngine{
		cfg:         newEngineConfig("semantic-index", opts),
		embedder:    embedder,
		collections: newRegistry[*SemanticCollection](),
	}, nil
}

// GetOrCreateCollection ignores n-gram options; they only apply to keyword
// scoring.
func (e *SemanticEngine) GetOrCreateCollection(ctx context.Context, name string, opts CollectionOptions) (Collection, error) {
	return e.Collection(ctx, name, opts)
}

func (e *SemanticEngine) Collection(_ context.Context, name string, opts CollectionOptions) (*SemanticCollection, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return e.collections.getOrCreate(name, func() (*SemanticCollection, error) {
		return &SemanticCollection{
			name:     name,
			cfg:      e.cfg,
			embedder: e.embedder,
			ids:      make(map[string]struct{}),
		}, nil
	})
}

type semanticEntry struct {
	record Record
	vector []float32
}

// SemanticCollection ranks records by cosine similarity between the query
// embedding and each document embedding.
type SemanticCollection struct {
	name     string
	cfg      engineConfig
	embedder embedding.Embedder

	mu      sync.RWMutex
	entries []semanticEntry
	ids     map[string]struct{}
	dims    int
}

func (c *SemanticCollection) has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

func (c *SemanticCollection) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ctx.Err()
	}

	c.mu.RLock()
	err := checkBatch(records, c.has)
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	docs := make([]string, len(records))
	for i, r := range records {
		docs[i] = r.Document
	}
	vectors, err := c.embedder.Embed(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("%w: %d documents, %d vectors", embedding.ErrCountMismatch, len(records), len(vectors))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another Add may have won the race while we were embedding.
	if err := checkBatch(records, c.has); err != nil {
		return err
	}
	dims := c.dims
	for i, v := range vectors {
		if len(v) == 0 || (dims != 0 && len(v) != dims) {
			return fmt.Errorf("%w: record %q has %d dimensions, want %d", ErrDimensionMismatch, records[i].ID, len(v), dims)
		}
		dims = len(v)
	}

	c.dims = dims
	for i, r := range records {
		c.entries = append(c.entries, semanticEntry{record: r.clone(), vector: vectors[i]})
		c.ids[r.ID] = struct{}{}
	}

	c.cfg.metrics.ObserveAdd(backendSemantic, c.name, len(records), len(c.entries))
	return nil
}

func (c *SemanticCollection) Query(ctx context.Context, queries []string, topK int) (results [][]Record, err error) {
	start := time.Now()
	defer func() {
		c.cfg.metrics.ObserveQuery(backendSemantic, start, err, isEmpty(results))
	}()

	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	if c.Len() == 0 {
		return nil, ErrCollectionEmpty
	}

	vectors, err := c.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed queries: %w", err)
	}
	if len(vectors) != len(queries) {
		return nil, fmt.Errorf("%w: %d queries, %d vectors", embedding.ErrCountMismatch, len(queries), len(vectors))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results = make([][]Record, len(queries))
	for qi, qv := range vectors {
		if len(qv) != c.dims {
			return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(qv), c.dims)
		}
		results[qi] = c.nearest(qv, topK)
	}
	return results, nil
}

// nearest must be called with c.mu held.
func (c *SemanticCollection) nearest(query []float32, topK int) []Record {
	scores := make([]float64, len(c.entries))
	order := make([]int, len(c.entries))
	for i, e := range c.entries {
		scores[i] = cosineSimilarity(query, e.vector)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if len(order) > topK {
		order = order[:topK]
	}

	out := make([]Record, len(order))
	for i, idx := range order {
		out[i] = c.entries[idx].record.clone()
	}
	return out
}

func (c *SemanticCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cosineSimilarity returns 0 for mismatched lengths or a zero vector.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
