package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateID is returned when an added record id already exists in the
	// collection or repeats within the batch.
	ErrDuplicateID = errors.New("document id already exists in the index")
	// ErrCollectionEmpty is returned when querying a collection that has
	// never received a record.
	ErrCollectionEmpty = errors.New("the collection is empty, add documents before querying")
	// ErrInvalidOptions reports inconsistent collection options.
	ErrInvalidOptions = errors.New("invalid collection options")
	// ErrInvalidTopK reports a top-k below one.
	ErrInvalidTopK = errors.New("topK must be at least 1")
	// ErrDimensionMismatch reports an embedding whose length differs from the
	// collection's vectors.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNilDependency reports a missing engine dependency.
	ErrNilDependency = errors.New("nil dependency")
)

// Collection is a named, append-only set of records that can be queried.
type Collection interface {
	// Add appends records. The batch is rejected as a whole if any id is
	// already present or repeats within the batch.
	Add(ctx context.Context, records []Record) error
	// Query returns up to topK records per query string, outer order
	// matching the input order.
	Query(ctx context.Context, queries []string, topK int) ([][]Record, error)
}

// Engine owns named collections.
type Engine interface {
	// GetOrCreateCollection returns the collection registered under name,
	// creating it with opts if absent. Options of an existing collection are
	// not changed.
	GetOrCreateCollection(ctx context.Context, name string, opts CollectionOptions) (Collection, error)
}

func duplicateIDError(id string) error {
	return fmt.Errorf("%w: %q", ErrDuplicateID, id)
}

// checkBatch validates ids against the existing set and within the batch.
func checkBatch(records []Record, exists func(id string) bool) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if exists(r.ID) {
			return duplicateIDError(r.ID)
		}
		if _, ok := seen[r.ID]; ok {
			return duplicateIDError(r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// registry memoizes collections by name.
type registry[C Collection] struct {
	mu          sync.Mutex
	collections map[string]C
}

func newRegistry[C Collection]() *registry[C] {
	return &registry[C]{collections: make(map[string]C)}
}

// getOrCreate runs create under the registry lock so concurrent callers with
// the same name observe a single collection.
func (r *registry[C]) getOrCreate(name string, create func() (C, error)) (C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.collections[name]; ok {
		return c, nil
	}
	c, err := create()
	if err != nil {
		var zero C
		return zero, err
	}
	r.collections[name] = c
	return c, nil
}

func (r *registry[C]) each(fn func(name string, c C)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range r.collections {
		fn(name, c)
	}
}
