package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	backendHybrid = "hybrid"

	// rrfK is the Reciprocal Rank Fusion constant for both rankings.
	rrfK = 60
	// minLocalTopK is the minimum number of candidates fetched from each
	// sub-index before fusion.
	minLocalTopK = 30
)

// FusionEngine composes a keyword engine and a semantic engine. Each fusion
// collection is backed by the same-named collection of both sub-engines.
type FusionEngine struct {
	cfg         engineConfig
	keyword     Engine
	semantic    Engine
	collections *registry[*FusionCollection]
}

func NewFusionEngine(keyword, semantic Engine, opts ...Option) (*FusionEngine, error) {
	if keyword == nil {
		return nil, fmt.Errorf("%w: keyword engine", ErrNilDependency)
	}
	if semantic == nil {
		return nil, fmt.Errorf("%w: semantic engine", ErrNilDependency)
	}
	return &FusionEngine{
		cfg:         newEngineConfig("fusion", opts),
		keyword:     keyword,
		semantic:    semantic,
		collections: newRegistry[*FusionCollection](),
	}, nil
}

func (e *FusionEngine) GetOrCreateCollection(ctx context.Context, name string, opts CollectionOptions) (Collection, error) {
	return e.Collection(ctx, name, opts)
}

func (e *FusionEngine) Collection(ctx context.Context, name string, opts CollectionOptions) (*FusionCollection, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return e.collections.getOrCreate(name, func() (*FusionCollection, error) {
		kc, err := e.keyword.GetOrCreateCollection(ctx, name, opts)
		if err != nil {
			return nil, fmt.Errorf("keyword collection %q: %w", name, err)
		}
		sc, err := e.semantic.GetOrCreateCollection(ctx, name, opts)
		if err != nil {
			return nil, fmt.Errorf("semantic collection %q: %w", name, err)
		}
		return &FusionCollection{
			name:           name,
			cfg:            e.cfg,
			keyword:        kc,
			semantic:       sc,
			poolMultiplier: opts.poolMultiplier(),
		}, nil
	})
}

// FusionCollection merges keyword and semantic rankings with Reciprocal
// Rank Fusion.
type FusionCollection struct {
	name           string
	cfg            engineConfig
	keyword        Collection
	semantic       Collection
	poolMultiplier int
}

// Add forwards the batch to the semantic collection, then the keyword one.
// The semantic add validates and embeds before it mutates, and the keyword
// add can then only fail on ids the semantic side already checked, so a
// rejected batch leaves both sides unchanged and can be retried.
func (c *FusionCollection) Add(ctx context.Context, records []Record) error {
	if err := c.semantic.Add(ctx, records); err != nil {
		return fmt.Errorf("semantic index: %w", err)
	}
	if err := c.keyword.Add(context.WithoutCancel(ctx), records); err != nil {
		return fmt.Errorf("keyword index: %w", err)
	}
	return nil
}

func (c *FusionCollection) Query(ctx context.Context, queries []string, topK int) ([][]Record, error) {
	return c.QueryWithPool(ctx, queries, topK, c.poolMultiplier)
}

// QueryWithPool is Query with an explicit over-fetch factor. Each sub-index
// is asked for max(topK*poolMultiplier, 30) candidates; both must succeed.
func (c *FusionCollection) QueryWithPool(ctx context.Context, queries []string, topK, poolMultiplier int) (results [][]Record, err error) {
	start := time.Now()
	defer func() {
		c.cfg.metrics.ObserveQuery(backendHybrid, start, err, isEmpty(results))
	}()

	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	if poolMultiplier < 1 {
		poolMultiplier = DefaultPoolMultiplier
	}
	localTopK := max(topK*poolMultiplier, minLocalTopK)

	var keywordLists, semanticLists [][]Record
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lists, err := c.keyword.Query(gctx, queries, localTopK)
		if err != nil {
			return fmt.Errorf("keyword query: %w", err)
		}
		keywordLists = lists
		return nil
	})

	g.Go(func() error {
		sctx := gctx
		if c.cfg.semanticTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(gctx, c.cfg.semanticTimeout)
			defer cancel()
		}
		lists, err := c.semantic.Query(sctx, queries, localTopK)
		if err != nil {
			return fmt.Errorf("semantic query: %w", err)
		}
		semanticLists = lists
		return nil
	})

	if err := g.Wait(); err != nil {
		c.cfg.logger.Warn("fusion query failed", "collection", c.name, "error", err)
		return nil, err
	}
	if len(keywordLists) != len(queries) || len(semanticLists) != len(queries) {
		return nil, fmt.Errorf("sub-index returned %d and %d result lists for %d queries",
			len(keywordLists), len(semanticLists), len(queries))
	}

	results = make([][]Record, len(queries))
	for i := range queries {
		results[i] = fuseRankings(keywordLists[i], semanticLists[i], topK)
	}
	return results, nil
}

type fusedItem struct {
	record Record
	score  float64
}

// fuseRankings sums 1/(rrfK+rank) per id over both lists and returns the
// topK ids by descending fused score. Equal scores keep first-seen order:
// keyword order, then semantic-only ids in semantic order. When both lists
// carry an id the keyword copy is returned unless only the semantic copy has
// metadata.
func fuseRankings(keyword, semantic []Record, topK int) []Record {
	items := make([]fusedItem, 0, len(keyword)+len(semantic))
	pos := make(map[string]int, len(keyword)+len(semantic))

	accumulate := func(list []Record) {
		for rank, r := range list {
			score := 1.0 / float64(rrfK+rank+1)
			if i, ok := pos[r.ID]; ok {
				items[i].score += score
				if items[i].record.Metadata == nil && r.Metadata != nil {
					items[i].record = r
				}
				continue
			}
			pos[r.ID] = len(items)
			items = append(items, fusedItem{record: r, score: score})
		}
	}
	accumulate(keyword)
	accumulate(semantic)

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].score > items[b].score
	})
	if len(items) > topK {
		items = items[:topK]
	}

	out := make([]Record, len(items))
	for i, it := range items {
		out[i] = it.record
	}
	return out
}
