package storage

import (
	"encoding/json"
	"fmt"
)

type migration struct {
	version int
	name    string
	up      func() error
}

func (s *SQLiteStorage) runMigrations() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
		{version: 2, name: "search_history_queries", up: s.migration002SearchQueries},
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		s.log().Info("running migration", "version", m.version, "name", m.name)
		if err := m.up(); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if err := s.setMigrationVersion(m); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStorage) createMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	var version int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteStorage) setMigrationVersion(m migration) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name)
	return err
}

func (s *SQLiteStorage) migration001InitialSchema() error {
	stmts := []struct {
		what string
		sql  string
	}{
		{"tool_calls table", `
			CREATE TABLE IF NOT EXISTS tool_calls (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tool_id TEXT NOT NULL,
				server_name TEXT NOT NULL,
				timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
				duration_ms INTEGER NOT NULL,
				success INTEGER NOT NULL
			)`},
		{"tool_calls tool index", `CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_id)`},
		{"tool_calls timestamp index", `CREATE INDEX IF NOT EXISTS idx_tool_calls_timestamp ON tool_calls(timestamp DESC)`},
		{"search_history table", `
			CREATE TABLE IF NOT EXISTS search_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				search_id TEXT NOT NULL UNIQUE,
				query_hash TEXT NOT NULL,
				timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
				results_count INTEGER NOT NULL
			)`},
		{"search_history timestamp index", `CREATE INDEX IF NOT EXISTS idx_search_history_timestamp ON search_history(timestamp DESC)`},
		{"embeddings table", `
			CREATE TABLE IF NOT EXISTS embeddings (
				cache_key TEXT PRIMARY KEY,
				vector TEXT NOT NULL,
				model TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`},
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.what, err)
		}
	}
	return nil
}

// migration002SearchQueries records how many queries and which backend
// served each search.
func (s *SQLiteStorage) migration002SearchQueries() error {
	if _, err := s.db.Exec(`ALTER TABLE search_history ADD COLUMN queries_count INTEGER NOT NULL DEFAULT 1`); err != nil {
		return fmt.Errorf("failed to add queries_count: %w", err)
	}
	if _, err := s.db.Exec(`ALTER TABLE search_history ADD COLUMN backend TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add backend: %w", err)
	}
	return nil
}

func vectorToJSON(vector []float32) (string, error) {
	data, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vector: %w", err)
	}
	return string(data), nil
}

func jsonToVector(jsonStr string) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(jsonStr), &vector); err != nil {
		return nil, err
	}
	return vector, nil
}
