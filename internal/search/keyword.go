package search

import (
	"context"
	"sort"
	"sync"
	"time"
)

const backendKeyword = "keyword"

// KeywordEngine owns BM25 collections.
type KeywordEngine struct {
	cfg         engineConfig
	collections *registry[*KeywordCollection]
}

func NewKeywordEngine(opts ...Option) *KeywordEngine {
	return &KeywordEngine{
		cfg:         newEngineConfig("keyword-index", opts),
		collections: newRegistry[*KeywordCollection](),
	}
}

func (e *KeywordEngine) GetOrCreateCollection(ctx context.Context, name string, opts CollectionOptions) (Collection, error) {
	return e.Collection(ctx, name, opts)
}

// Collection is GetOrCreateCollection returning the concrete type.
func (e *KeywordEngine) Collection(_ context.Context, name string, opts CollectionOptions) (*KeywordCollection, error) {
	return e.collections.getOrCreate(name, func() (*KeywordCollection, error) {
		tok, err := NewTokenizer(opts)
		if err != nil {
			return nil, err
		}
		e.cfg.logger.Debug("created collection", "collection", name,
			"min_ngram", opts.MinNgram, "max_ngram", opts.MaxNgram)
		return &KeywordCollection{
			name:      name,
			cfg:       e.cfg,
			tokenizer: tok,
			ids:       make(map[string]struct{}),
		}, nil
	})
}

type keywordEntry struct {
	seq    int
	record Record
	tokens []string
}

// KeywordCollection is an append-only BM25 Okapi index. The model is rebuilt
// from the whole corpus on every Add, so rankings do not depend on how
// records were batched.
type KeywordCollection struct {
	name      string
	cfg       engineConfig
	tokenizer *Tokenizer

	mu      sync.RWMutex
	entries []keywordEntry
	ids     map[string]struct{}
	model   *bm25Model
}

func (c *KeywordCollection) Add(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tokens := make([][]string, len(records))
	for i, r := range records {
		tokens[i] = c.tokenizer.Tokenize(r.Document)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := checkBatch(records, c.has); err != nil {
		return err
	}
	for i, r := range records {
		c.entries = append(c.entries, keywordEntry{
			seq:    len(c.entries),
			record: r.clone(),
			tokens: tokens[i],
		})
		c.ids[r.ID] = struct{}{}
	}

	corpus := make([][]string, len(c.entries))
	for i, e := range c.entries {
		corpus[i] = e.tokens
	}
	c.model = newBM25Model(corpus)

	c.cfg.metrics.ObserveAdd(backendKeyword, c.name, len(records), len(c.entries))
	c.cfg.logger.Debug("indexed records", "collection", c.name, "added", len(records), "total", len(c.entries))
	return nil
}

func (c *KeywordCollection) has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

// Query scores every record against each query and returns the topK best,
// highest score first. Equal scores keep insertion order. Records sharing no
// token with the query are not returned.
func (c *KeywordCollection) Query(ctx context.Context, queries []string, topK int) (results [][]Record, err error) {
	start := time.Now()
	defer func() {
		c.cfg.metrics.ObserveQuery(backendKeyword, start, err, isEmpty(results))
	}()

	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.model == nil {
		return nil, ErrCollectionEmpty
	}

	results = make([][]Record, len(queries))
	for qi, q := range queries {
		results[qi] = c.rank(c.tokenizer.Tokenize(q), topK)
	}
	return results, nil
}

// rank must be called with c.mu held.
func (c *KeywordCollection) rank(query []string, topK int) []Record {
	scores := c.model.scores(query)

	candidates := make([]int, 0, len(scores))
	for i := range scores {
		if c.model.matches(i, query) {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return scores[candidates[a]] > scores[candidates[b]]
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]Record, len(candidates))
	for i, idx := range candidates {
		out[i] = c.entries[idx].record.clone()
	}
	return out
}

// Len returns the number of records in the collection.
func (c *KeywordCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func isEmpty(results [][]Record) bool {
	for _, r := range results {
		if len(r) > 0 {
			return false
		}
	}
	return true
}
