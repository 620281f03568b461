// Package embedding provides the embedding service behind the semantic
// index: a deterministic offline embedder, an Ollama HTTP client and a
// caching wrapper backed by the storage layer.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the model so cached vectors are not mixed across models.
	Model() string
}

var (
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")
	// ErrCountMismatch is returned when a backend returns a different number
	// of vectors than texts sent.
	ErrCountMismatch = errors.New("embedding count mismatch")
)

// Config selects and configures an embedder.
type Config struct {
	Provider   string `json:"provider" yaml:"provider"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL    string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// New builds the embedder named by cfg.Provider. An empty provider selects
// the hash embedder.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	case ProviderOllama:
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
)
