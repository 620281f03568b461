package search

import (
	"log/slog"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/logging"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
)

// DefaultPoolMultiplier is the fusion over-fetch factor.
const DefaultPoolMultiplier = 3

// DefaultSemanticTimeout bounds the semantic sub-query of a fusion query.
const DefaultSemanticTimeout = 10 * time.Second

// Option configures an engine.
type Option func(*engineConfig)

type engineConfig struct {
	metrics         *metrics.Metrics
	logger          *slog.Logger
	semanticTimeout time.Duration
}

func newEngineConfig(component string, opts []Option) engineConfig {
	cfg := engineConfig{semanticTimeout: DefaultSemanticTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.WithComponent(component)
	}
	return cfg
}

// WithMetrics records query and indexing metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *engineConfig) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithSemanticTimeout bounds the semantic sub-query of fusion queries.
// Zero or negative disables the bound.
func WithSemanticTimeout(d time.Duration) Option {
	return func(c *engineConfig) { c.semanticTimeout = d }
}
