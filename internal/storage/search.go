package storage

import "time"

// RecordSearch records a search for analytics.
func (s *SQLiteStorage) RecordSearch(search SearchRecord) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO search_history (search_id, query_hash, timestamp, results_count, queries_count, backend)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		search.SearchID,
		search.QueryHash,
		search.Timestamp.Format(time.RFC3339),
		search.ResultsCount,
		search.QueriesCount,
		search.Backend,
	)
	if err != nil {
		s.log().Warn("failed to record search", "search_id", search.SearchID, "error", err)
	}
	return nil
}

// CountSearches returns the number of recorded searches since a given time.
func (s *SQLiteStorage) CountSearches(since time.Time) (int, error) {
	if !s.enabled || s.db == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM search_history WHERE timestamp >= ?`, since.Format(time.RFC3339))
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Cleanup removes history rows older than retention and compacts the file.
// Cached embeddings are kept.
func (s *SQLiteStorage) Cleanup(retention time.Duration) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).Format(time.RFC3339)

	if _, err := s.db.Exec("DELETE FROM tool_calls WHERE timestamp < ?", cutoff); err != nil {
		s.log().Warn("failed to cleanup tool_calls", "error", err)
	}
	if _, err := s.db.Exec("DELETE FROM search_history WHERE timestamp < ?", cutoff); err != nil {
		s.log().Warn("failed to cleanup search_history", "error", err)
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		s.log().Warn("failed to vacuum database", "error", err)
	}
	return nil
}
