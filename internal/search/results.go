/*
Package search implements hybrid tool retrieval across MCP server tools.

A keyword index scores records with BM25 Okapi over an optional character
n-gram expansion, a semantic index ranks them by embedding similarity, and a
fusion engine merges both rankings with Reciprocal Rank Fusion. All indexes
live in memory and are rebuilt per process.
*/
package search

// Record is one retrievable item. ID is unique within a collection.
type Record struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// clone returns a copy whose metadata map can be mutated by the caller
// without touching index state.
func (r Record) clone() Record {
	if r.Metadata == nil {
		return r
	}
	md := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		md[k] = v
	}
	r.Metadata = md
	return r
}

// CollectionOptions configures a collection at creation time.
//
// N-gram expansion is enabled only when both MinNgram and MaxNgram are
// positive. PoolMultiplier is the fusion over-fetch factor; zero means
// DefaultPoolMultiplier.
type CollectionOptions struct {
	MinNgram       int `json:"minNgram" yaml:"minNgram"`
	MaxNgram       int `json:"maxNgram" yaml:"maxNgram"`
	PoolMultiplier int `json:"poolMultiplier" yaml:"poolMultiplier"`
}

func (o CollectionOptions) ngramEnabled() bool {
	return o.MinNgram > 0 && o.MaxNgram > 0
}

func (o CollectionOptions) validate() error {
	if o.MinNgram < 0 || o.MaxNgram < 0 || o.PoolMultiplier < 0 {
		return ErrInvalidOptions
	}
	if (o.MinNgram == 0) != (o.MaxNgram == 0) {
		return ErrInvalidOptions
	}
	if o.ngramEnabled() && o.MinNgram > o.MaxNgram {
		return ErrInvalidOptions
	}
	return nil
}

func (o CollectionOptions) poolMultiplier() int {
	if o.PoolMultiplier <= 0 {
		return DefaultPoolMultiplier
	}
	return o.PoolMultiplier
}
