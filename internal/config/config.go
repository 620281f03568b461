/*
Package config handles loading and saving tool-hub-search configuration.

Configuration lives in ~/.tool-hub-search.json by default. Any path ending in
.yaml or .yml is read and written as YAML instead. Files written for other
MCP clients are accepted too: a top-level "mcpServers" map is merged into
"servers".

Schema:
  {
    "servers": {
      "fs": {
        "command": "npx",
        "args": ["-y", "@modelcontextprotocol/server-filesystem", "$HOME"],
        "env": {"TOKEN": "${FS_TOKEN}"}
      }
    },
    "settings": {
      "processPoolSize": 3,
      "timeoutSeconds": 30,
      "retrieval": {
        "engine": "hybrid",
        "collection": "tools",
        "minNgram": 3,
        "maxNgram": 5,
        "poolMultiplier": 3,
        "topK": 5,
        "semanticTimeoutSeconds": 10,
        "embedder": {"provider": "hash"}
      },
      "storage": {"enabled": true, "retentionDays": 30}
    }
  }

Environment references in args and env values are expanded at load time.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/embedding"
)

// Retrieval engines.
const (
	EngineHybrid   = "hybrid"
	EngineKeyword  = "keyword"
	EngineSemantic = "semantic"
	EngineBleve    = "bleve"
)

// Config is the root configuration.
type Config struct {
	Servers map[string]*ServerConfig `json:"servers" yaml:"servers"`

	// MCPServers accepts the server map under the key other MCP clients use.
	// It is merged into Servers on load and never written back.
	MCPServers map[string]*ServerConfig `json:"mcpServers,omitempty" yaml:"mcpServers,omitempty"`

	Settings *Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// ServerConfig describes one MCP server launched over stdio.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Source records where the entry came from (e.g. "cli").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Disabled servers are kept in the file but not spawned.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type Settings struct {
	// ProcessPoolSize is the max number of concurrently running MCP servers.
	ProcessPoolSize int `json:"processPoolSize,omitempty" yaml:"processPoolSize,omitempty"`

	// TimeoutSeconds bounds a single MCP operation.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`

	LogLevel  string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`

	Retrieval *RetrievalSettings `json:"retrieval,omitempty" yaml:"retrieval,omitempty"`
	Storage   *StorageSettings   `json:"storage,omitempty" yaml:"storage,omitempty"`
}

// RetrievalSettings configures the tool search engine.
type RetrievalSettings struct {
	Engine     string `json:"engine,omitempty" yaml:"engine,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`

	// MinNgram and MaxNgram bound keyword n-gram expansion. Both zero means
	// the defaults; set DisableNgrams to index whole words only.
	MinNgram      int  `json:"minNgram,omitempty" yaml:"minNgram,omitempty"`
	MaxNgram      int  `json:"maxNgram,omitempty" yaml:"maxNgram,omitempty"`
	DisableNgrams bool `json:"disableNgrams,omitempty" yaml:"disableNgrams,omitempty"`

	PoolMultiplier         int `json:"poolMultiplier,omitempty" yaml:"poolMultiplier,omitempty"`
	TopK                   int `json:"topK,omitempty" yaml:"topK,omitempty"`
	SemanticTimeoutSeconds int `json:"semanticTimeoutSeconds,omitempty" yaml:"semanticTimeoutSeconds,omitempty"`

	Embedder embedding.Config `json:"embedder" yaml:"embedder"`
}

type StorageSettings struct {
	// Enabled is a pointer so an absent key means enabled.
	Enabled       *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	RetentionDays int    `json:"retentionDays,omitempty" yaml:"retentionDays,omitempty"`
}

// IsEnabled reports whether persistent storage should be used.
func (s *StorageSettings) IsEnabled() bool {
	return s == nil || s.Enabled == nil || *s.Enabled
}

// Retention returns the history retention period.
func (s *StorageSettings) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// NewConfig creates an empty configuration with defaults applied.
func NewConfig() *Config {
	cfg := &Config{Servers: make(map[string]*ServerConfig)}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset setting.
func (c *Config) ApplyDefaults() {
	if c.Servers == nil {
		c.Servers = make(map[string]*ServerConfig)
	}
	if c.Settings == nil {
		c.Settings = &Settings{}
	}
	s := c.Settings
	if s.ProcessPoolSize <= 0 {
		s.ProcessPoolSize = 3
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 30
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "text"
	}

	if s.Retrieval == nil {
		s.Retrieval = &RetrievalSettings{}
	}
	r := s.Retrieval
	if r.Engine == "" {
		r.Engine = EngineHybrid
	}
	if r.Collection == "" {
		r.Collection = "tools"
	}
	if !r.DisableNgrams && r.MinNgram == 0 && r.MaxNgram == 0 {
		r.MinNgram, r.MaxNgram = 3, 5
	}
	if r.PoolMultiplier <= 0 {
		r.PoolMultiplier = 3
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.SemanticTimeoutSeconds <= 0 {
		r.SemanticTimeoutSeconds = 10
	}
	if r.Embedder.Provider == "" {
		r.Embedder.Provider = embedding.ProviderHash
	}

	if s.Storage == nil {
		s.Storage = &StorageSettings{}
	}
	if s.Storage.RetentionDays <= 0 {
		s.Storage.RetentionDays = 30
	}
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Settings == nil || c.Settings.Retrieval == nil {
		return nil
	}
	r := c.Settings.Retrieval
	switch r.Engine {
	case EngineHybrid, EngineKeyword, EngineSemantic, EngineBleve:
	default:
		return fmt.Errorf("unknown retrieval engine %q (want hybrid, keyword, semantic or bleve)", r.Engine)
	}
	if !r.DisableNgrams && (r.MinNgram < 1 || r.MaxNgram < r.MinNgram) {
		return fmt.Errorf("invalid n-gram range %d..%d", r.MinNgram, r.MaxNgram)
	}
	return nil
}

// Ngrams returns the effective n-gram bounds, zero when disabled.
func (r *RetrievalSettings) Ngrams() (lo, hi int) {
	if r.DisableNgrams {
		return 0, 0
	}
	return r.MinNgram, r.MaxNgram
}

// SemanticTimeout returns the semantic sub-query bound.
func (r *RetrievalSettings) SemanticTimeout() time.Duration {
	return time.Duration(r.SemanticTimeoutSeconds) * time.Second
}

// Timeout returns the per-operation MCP timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// EnabledServers returns the servers that should be spawned.
func (c *Config) EnabledServers() map[string]*ServerConfig {
	out := make(map[string]*ServerConfig, len(c.Servers))
	for name, srv := range c.Servers {
		if !srv.Disabled {
			out[name] = srv
		}
	}
	return out
}

// GetDefaultConfigPath returns ~/.tool-hub-search.json.
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tool-hub-search.json"), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}
