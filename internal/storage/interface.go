/*
Package storage implements the persistent side store of the retrieval hub.

It keeps an embedding cache (so documents are not re-embedded on every
start), a privacy-preserving search history and a tool invocation history in
SQLite via modernc.org/sqlite (pure Go, CGo-free). The search indexes
themselves are never persisted. If the database is unavailable the store
disables itself and every operation becomes a no-op.
*/
package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/logging"

	_ "modernc.org/sqlite"
)

// Storage defines the persistent operations used by the hub.
type Storage interface {
	// Init opens the database and runs migrations.
	Init() error

	// RecordToolCall records one tool invocation.
	RecordToolCall(call ToolCall) error

	// GetToolCalls returns invocations of toolID since a given time, newest first.
	GetToolCalls(toolID string, since time.Time) ([]ToolCall, error)

	// RecordSearch records a search for analytics.
	RecordSearch(search SearchRecord) error

	// SaveEmbedding caches a vector under key.
	SaveEmbedding(key string, vector []float32, model string) error

	// GetEmbedding returns the cached vector and model for key, or a nil
	// vector when absent.
	GetEmbedding(key string) ([]float32, string, error)

	// Cleanup removes history older than retention.
	Cleanup(retention time.Duration) error

	Close() error
}

// SQLiteStorage implements Storage on SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	mu       sync.Mutex
	initOnce sync.Once
	logger   *slog.Logger
}

// DefaultPath returns ~/.tool-hub-search/cache.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tool-hub-search", "cache.db"), nil
}

// NewStorage creates a store at the default path. If the home directory
// cannot be resolved the store is disabled.
func NewStorage() *SQLiteStorage {
	path, err := DefaultPath()
	if err != nil {
		logging.WithComponent("storage").Warn("storage disabled", "error", err)
		return &SQLiteStorage{enabled: false, logger: logging.WithComponent("storage")}
	}
	return NewStorageAt(path)
}

// NewStorageAt creates a store backed by the database file at path.
func NewStorageAt(path string) *SQLiteStorage {
	return &SQLiteStorage{
		dbPath:  path,
		enabled: true,
		logger:  logging.WithComponent("storage"),
	}
}

func (s *SQLiteStorage) log() *slog.Logger {
	if s.logger == nil {
		return logging.WithComponent("storage")
	}
	return s.logger
}

// Enabled reports whether the store is usable.
func (s *SQLiteStorage) Enabled() bool {
	return s.enabled && s.db != nil
}

// Init opens the database and runs migrations.
//
// On failure the store is disabled and subsequent operations become no-ops.
func (s *SQLiteStorage) Init() error {
	if !s.enabled {
		return nil
	}

	var initErr error
	s.initOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
			initErr = fmt.Errorf("failed to create db directory: %w", err)
			s.enabled = false
			return
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			s.enabled = false
			s.log().Warn("storage disabled", "error", initErr)
			return
		}
		s.db = db

		if err := db.Ping(); err != nil {
			initErr = fmt.Errorf("failed to ping database: %w", err)
			s.enabled = false
			s.log().Warn("storage disabled", "error", initErr)
			return
		}

		if err := s.runMigrations(); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			s.enabled = false
			s.log().Warn("storage disabled", "error", initErr)
			return
		}
	})

	return initErr
}

func (s *SQLiteStorage) Close() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// HashQuery returns the hex SHA-256 of a query so raw queries are never stored.
func HashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}

// EmbeddingKey is the cache key for text embedded by model.
func EmbeddingKey(model, text string) string {
	return model + ":" + HashQuery(text)
}
