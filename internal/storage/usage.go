package storage

import "time"

// RecordToolCall records one tool invocation.
func (s *SQLiteStorage) RecordToolCall(call ToolCall) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	success := 0
	if call.Success {
		success = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO tool_calls (tool_id, server_name, timestamp, duration_ms, success)
		VALUES (?, ?, ?, ?, ?)
	`,
		call.ToolID,
		call.ServerName,
		call.Timestamp.Format(time.RFC3339),
		call.Duration.Milliseconds(),
		success,
	)
	if err != nil {
		s.log().Warn("failed to record tool call", "tool", call.ToolID, "error", err)
	}
	return nil
}

func (s *SQLiteStorage) GetToolCalls(toolID string, since time.Time) ([]ToolCall, error) {
	if !s.enabled || s.db == nil {
		return []ToolCall{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT tool_id, server_name, timestamp, duration_ms, success
		FROM tool_calls
		WHERE tool_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC, id DESC
	`, toolID, since.Format(time.RFC3339))
	if err != nil {
		s.log().Warn("failed to query tool calls", "tool", toolID, "error", err)
		return []ToolCall{}, nil
	}
	defer rows.Close()

	var calls []ToolCall
	for rows.Next() {
		var (
			call       ToolCall
			ts         string
			durationMS int64
			success    int
		)
		if err := rows.Scan(&call.ToolID, &call.ServerName, &ts, &durationMS, &success); err != nil {
			s.log().Warn("failed to scan tool call row", "error", err)
			continue
		}
		call.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			s.log().Warn("failed to parse timestamp", "value", ts, "error", err)
			continue
		}
		call.Duration = time.Duration(durationMS) * time.Millisecond
		call.Success = success == 1
		calls = append(calls, call)
	}
	return calls, nil
}
