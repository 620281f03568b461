package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	backendBleve = "bleve"

	ngramFilterName   = "tool_ngram"
	ngramAnalyzerName = "tool_ngram"
)

// BleveEngine owns in-memory bleve indexes. It is an alternative lexical
// backend using bleve's own BM25 scoring and analyzers; with n-grams enabled
// documents are also indexed into a character n-gram field.
type BleveEngine struct {
	cfg         engineConfig
	collections *registry[*BleveCollection]
}

func NewBleveEngine(opts ...Option) *BleveEngine {
	return &BleveEngine{
		cfg:         newEngineConfig("bleve-index", opts),
		collections: newRegistry[*BleveCollection](),
	}
}

func (e *BleveEngine) GetOrCreateCollection(ctx context.Context, name string, opts CollectionOptions) (Collection, error) {
	return e.Collection(ctx, name, opts)
}

func (e *BleveEngine) Collection(_ context.Context, name string, opts CollectionOptions) (*BleveCollection, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return e.collections.getOrCreate(name, func() (*BleveCollection, error) {
		indexMapping, err := buildIndexMapping(opts)
		if err != nil {
			return nil, err
		}
		index, err := bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve index: %w", err)
		}
		return &BleveCollection{
			name:   name,
			cfg:    e.cfg,
			index:  index,
			ngrams: opts.ngramEnabled(),
			byID:   make(map[string]int),
		}, nil
	})
}

// Close releases every index owned by the engine.
func (e *BleveEngine) Close() error {
	var firstErr error
	e.collections.each(func(_ string, c *BleveCollection) {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// buildIndexMapping maps records to a "document" text field, an optional
// "grams" n-gram field and a numeric "seq" used as the tie-break sort key.
func buildIndexMapping(opts CollectionOptions) (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	documentField := bleve.NewTextFieldMapping()
	documentField.Analyzer = standard.Name
	documentField.Store = false
	docMapping.AddFieldMappingsAt("document", documentField)

	if opts.ngramEnabled() {
		err := indexMapping.AddCustomTokenFilter(ngramFilterName, map[string]interface{}{
			"type": ngram.Name,
			"min":  float64(opts.MinNgram),
			"max":  float64(opts.MaxNgram),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register ngram filter: %w", err)
		}
		err = indexMapping.AddCustomAnalyzer(ngramAnalyzerName, map[string]interface{}{
			"type":          custom.Name,
			"tokenizer":     unicode.Name,
			"token_filters": []string{lowercase.Name, ngramFilterName},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register ngram analyzer: %w", err)
		}

		gramsField := bleve.NewTextFieldMapping()
		gramsField.Analyzer = ngramAnalyzerName
		gramsField.Store = false
		gramsField.IncludeInAll = false
		docMapping.AddFieldMappingsAt("grams", gramsField)
	}

	seqField := bleve.NewNumericFieldMapping()
	seqField.IncludeInAll = false
	docMapping.AddFieldMappingsAt("seq", seqField)

	indexMapping.AddDocumentMapping("_default", docMapping)
	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}

// BleveCollection stores records in memory and their text in bleve.
type BleveCollection struct {
	name   string
	cfg    engineConfig
	index  bleve.Index
	ngrams bool

	mu      sync.RWMutex
	records []Record
	byID    map[string]int
}

func (c *BleveCollection) has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *BleveCollection) Add(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := checkBatch(records, c.has); err != nil {
		return err
	}

	batch := c.index.NewBatch()
	for i, r := range records {
		doc := map[string]interface{}{
			"document": r.Document,
			"seq":      float64(len(c.records) + i),
		}
		if c.ngrams {
			doc["grams"] = r.Document
		}
		if err := batch.Index(r.ID, doc); err != nil {
			return fmt.Errorf("failed to index record %q: %w", r.ID, err)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to batch index records: %w", err)
	}

	for _, r := range records {
		c.byID[r.ID] = len(c.records)
		c.records = append(c.records, r.clone())
	}
	c.cfg.metrics.ObserveAdd(backendBleve, c.name, len(records), len(c.records))
	return nil
}

func (c *BleveCollection) Query(ctx context.Context, queries []string, topK int) (results [][]Record, err error) {
	start := time.Now()
	defer func() {
		c.cfg.metrics.ObserveQuery(backendBleve, start, err, isEmpty(results))
	}()

	if topK < 1 {
		return nil, ErrInvalidTopK
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.records) == 0 {
		return nil, ErrCollectionEmpty
	}

	results = make([][]Record, len(queries))
	for qi, q := range queries {
		req := bleve.NewSearchRequestOptions(c.buildMatchQuery(q), topK, 0, false)
		req.SortBy([]string{"-_score", "seq"})

		res, err := c.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("bleve search failed: %w", err)
		}

		list := make([]Record, 0, len(res.Hits))
		for _, hit := range res.Hits {
			if idx, ok := c.byID[hit.ID]; ok {
				list = append(list, c.records[idx].clone())
			}
		}
		results[qi] = list
	}
	return results, nil
}

// buildMatchQuery matches whole words and, with n-grams enabled, word
// fragments.
func (c *BleveCollection) buildMatchQuery(text string) query.Query {
	words := bleve.NewMatchQuery(text)
	words.SetField("document")
	if !c.ngrams {
		return words
	}
	grams := bleve.NewMatchQuery(text)
	grams.SetField("grams")
	return bleve.NewDisjunctionQuery(words, grams)
}

// Count returns the number of indexed documents as reported by bleve.
func (c *BleveCollection) Count() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, err := c.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return n, nil
}

func (c *BleveCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Close()
}
