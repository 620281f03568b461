package storage

import "time"

// ToolCall is one invocation of a catalog tool.
type ToolCall struct {
	// ToolID is the catalog id, "server:tool".
	ToolID     string        `json:"tool_id"`
	ServerName string        `json:"server_name"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
}

// SearchRecord is one retrieval request. Queries are stored hashed.
type SearchRecord struct {
	// SearchID is a UUID.
	SearchID string `json:"search_id"`

	// QueryHash is the SHA-256 of the joined query strings.
	QueryHash string `json:"query_hash"`

	Timestamp time.Time `json:"timestamp"`

	// ResultsCount is the total number of records returned across queries.
	ResultsCount int `json:"results_count"`

	QueriesCount int    `json:"queries_count"`
	Backend      string `json:"backend"`
}
