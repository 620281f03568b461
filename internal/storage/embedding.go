package storage

import "time"

// SaveEmbedding caches a vector under key. Failures are logged, not returned:
// the cache is an optimisation.
func (s *SQLiteStorage) SaveEmbedding(key string, vector []float32, model string) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	vectorJSON, err := vectorToJSON(vector)
	if err != nil {
		s.log().Warn("failed to encode embedding", "key", key, "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO embeddings (cache_key, vector, model, created_at)
		VALUES (?, ?, ?, ?)
	`, key, vectorJSON, model, time.Now().Format(time.RFC3339))
	if err != nil {
		s.log().Warn("failed to save embedding", "key", key, "error", err)
	}
	return nil
}

func (s *SQLiteStorage) GetEmbedding(key string) ([]float32, string, error) {
	if !s.enabled || s.db == nil {
		return nil, "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT vector, model FROM embeddings WHERE cache_key = ?`, key)
	if err != nil {
		s.log().Warn("failed to query embedding", "key", key, "error", err)
		return nil, "", nil
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, "", nil
	}

	var vectorJSON, model string
	if err := rows.Scan(&vectorJSON, &model); err != nil {
		s.log().Warn("failed to scan embedding", "key", key, "error", err)
		return nil, "", nil
	}

	vector, err := jsonToVector(vectorJSON)
	if err != nil {
		s.log().Warn("failed to parse embedding vector", "key", key, "error", err)
		return nil, "", nil
	}
	return vector, model, nil
}
