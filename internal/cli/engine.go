package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/embedding"
	"github.com/khanglvm/tool-hub-search/internal/logging"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/search"
	"github.com/khanglvm/tool-hub-search/internal/spawner"
	"github.com/khanglvm/tool-hub-search/internal/storage"
)

// hub wires configuration into the running components.
type hub struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	store   storage.Storage
	pool    *spawner.Pool
	catalog *catalog.Catalog

	closers []func() error
}

type hubOptions struct {
	metrics     *metrics.Metrics
	poolOptions []spawner.Option
	logger      *slog.Logger
}

func newHub(ctx context.Context, cfg *config.Config, opts hubOptions) (*hub, error) {
	logger := opts.logger
	if logger == nil {
		logger = logging.WithComponent("cli")
	}
	h := &hub{cfg: cfg, metrics: opts.metrics}

	h.store = openStorage(cfg.Settings.Storage, logger)
	if h.store != nil {
		h.closers = append(h.closers, h.store.Close)
	}

	r := cfg.Settings.Retrieval
	engine, closeEngine, err := newEngine(r, h.store, h.metrics)
	if err != nil {
		h.Close()
		return nil, err
	}
	if closeEngine != nil {
		h.closers = append(h.closers, closeEngine)
	}

	lo, hi := r.Ngrams()
	coll, err := engine.GetOrCreateCollection(ctx, r.Collection, search.CollectionOptions{
		MinNgram:       lo,
		MaxNgram:       hi,
		PoolMultiplier: r.PoolMultiplier,
	})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	poolOpts := append([]spawner.Option{spawner.WithTimeout(cfg.Settings.Timeout())}, opts.poolOptions...)
	h.pool = spawner.NewPool(cfg.Settings.ProcessPoolSize, poolOpts...)
	h.closers = append(h.closers, h.pool.Close)

	h.catalog = catalog.New(cfg.EnabledServers(), h.pool, coll, catalog.WithConcurrency(cfg.Settings.ProcessPoolSize))
	return h, nil
}

// Close releases components in reverse creation order.
func (h *hub) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}

// openStorage returns nil when storage is disabled or unusable.
func openStorage(s *config.StorageSettings, logger *slog.Logger) storage.Storage {
	if !s.IsEnabled() {
		return nil
	}
	var store *storage.SQLiteStorage
	if s.Path != "" {
		store = storage.NewStorageAt(s.Path)
	} else {
		store = storage.NewStorage()
	}
	if err := store.Init(); err != nil {
		logger.Warn("storage unavailable, continuing without history and embedding cache", "error", err)
		return nil
	}
	return store
}

// newEngine builds the retrieval engine named in settings. The returned
// closer is nil when the engine holds no resources.
func newEngine(r *config.RetrievalSettings, store storage.Storage, m *metrics.Metrics) (search.Engine, func() error, error) {
	switch r.Engine {
	case config.EngineKeyword:
		return search.NewKeywordEngine(search.WithMetrics(m)), nil, nil

	case config.EngineBleve:
		e := search.NewBleveEngine(search.WithMetrics(m))
		return e, e.Close, nil

	case config.EngineSemantic:
		embedder, err := newEmbedder(r.Embedder, store, m)
		if err != nil {
			return nil, nil, err
		}
		e, err := search.NewSemanticEngine(embedder, search.WithMetrics(m))
		return e, nil, err

	case config.EngineHybrid, "":
		embedder, err := newEmbedder(r.Embedder, store, m)
		if err != nil {
			return nil, nil, err
		}
		semantic, err := search.NewSemanticEngine(embedder, search.WithMetrics(m))
		if err != nil {
			return nil, nil, err
		}
		e, err := search.NewFusionEngine(
			search.NewKeywordEngine(search.WithMetrics(m)),
			semantic,
			search.WithMetrics(m),
			search.WithSemanticTimeout(r.SemanticTimeout()),
		)
		return e, nil, err

	default:
		return nil, nil, fmt.Errorf("unknown retrieval engine %q", r.Engine)
	}
}

func newEmbedder(cfg embedding.Config, store storage.Storage, m *metrics.Metrics) (embedding.Embedder, error) {
	inner, err := embedding.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedding.NewCachedEmbedder(inner, store, m), nil
}
