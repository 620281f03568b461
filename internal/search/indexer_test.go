package search

import (
	"context"
	"errors"
	"testing"
)

func newBleveCollection(t *testing.T, opts CollectionOptions) *BleveCollection {
	t.Helper()
	e := NewBleveEngine()
	t.Cleanup(func() { e.Close() })

	c, err := e.Collection(context.Background(), "tools", opts)
	if err != nil {
		t.Fatalf("failed to create collection: %v", err)
	}
	return c
}

func TestBleveCollection_Add(t *testing.T) {
	c := newBleveCollection(t, CollectionOptions{})

	if err := c.Add(context.Background(), toolRecords); err != nil {
		t.Fatalf("failed to add records: %v", err)
	}

	count, err := c.Count()
	if err != nil {
		t.Fatalf("failed to get count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 indexed records, got %d", count)
	}

	err = c.Add(context.Background(), []Record{{ID: "fs:read_file", Document: "dup"}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestBleveCollection_Query(t *testing.T) {
	c := newBleveCollection(t, CollectionOptions{})

	if _, err := c.Query(context.Background(), []string{"file"}, 1); !errors.Is(err, ErrCollectionEmpty) {
		t.Fatalf("expected ErrCollectionEmpty, got %v", err)
	}
	if err := c.Add(context.Background(), toolRecords); err != nil {
		t.Fatalf("failed to add records: %v", err)
	}

	results, err := c.Query(context.Background(), []string{"contents of a file", "web query"}, 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 result lists, got %d", len(results))
	}
	if len(results[0]) == 0 || results[0][0].ID != "fs:read_file" {
		t.Errorf("expected fs:read_file first, got %v", ids(results[0]))
	}
	if len(results[1]) == 0 || results[1][0].ID != "web:search" {
		t.Errorf("expected web:search first, got %v", ids(results[1]))
	}
	if results[0][0].Metadata["tool_name"] != "read_file" {
		t.Errorf("metadata not returned: %v", results[0][0].Metadata)
	}
}

func TestBleveCollection_TieBreak(t *testing.T) {
	c := newBleveCollection(t, CollectionOptions{})
	records := []Record{
		{ID: "second-inserted-last", Document: "unrelated"},
		{ID: "z", Document: "alpha beta"},
		{ID: "a", Document: "alpha beta"},
	}
	if err := c.Add(context.Background(), records); err != nil {
		t.Fatalf("failed to add records: %v", err)
	}

	results, err := c.Query(context.Background(), []string{"alpha"}, 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if got := ids(results[0]); len(got) != 2 || got[0] != "z" || got[1] != "a" {
		t.Errorf("expected insertion order [z a], got %v", got)
	}
}

func TestBleveCollection_Ngrams(t *testing.T) {
	docs := []Record{
		{ID: "k8s:apply", Document: "Deploys workloads to kubernetes clusters"},
		{ID: "mail:send", Document: "Sends an email message"},
	}

	plain := newBleveCollection(t, CollectionOptions{})
	if err := plain.Add(context.Background(), docs); err != nil {
		t.Fatalf("failed to add records: %v", err)
	}
	results, err := plain.Query(context.Background(), []string{"kube"}, 5)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results[0]) != 0 {
		t.Errorf("expected no match without n-grams, got %v", ids(results[0]))
	}

	grams := newBleveCollection(t, CollectionOptions{MinNgram: 3, MaxNgram: 5})
	if err := grams.Add(context.Background(), docs); err != nil {
		t.Fatalf("failed to add records: %v", err)
	}
	results, err = grams.Query(context.Background(), []string{"kube"}, 5)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results[0]) != 1 || results[0][0].ID != "k8s:apply" {
		t.Errorf("expected k8s:apply, got %v", ids(results[0]))
	}
}
