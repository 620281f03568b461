package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/embedding"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Servers == nil {
		t.Fatal("Servers map should be initialized")
	}
	s := cfg.Settings
	if s.ProcessPoolSize != 3 {
		t.Errorf("expected pool size 3, got %d", s.ProcessPoolSize)
	}
	if s.Timeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", s.Timeout())
	}

	r := s.Retrieval
	if r.Engine != EngineHybrid {
		t.Errorf("expected hybrid engine, got %q", r.Engine)
	}
	if lo, hi := r.Ngrams(); lo != 3 || hi != 5 {
		t.Errorf("expected n-grams 3..5, got %d..%d", lo, hi)
	}
	if r.TopK != 5 || r.PoolMultiplier != 3 {
		t.Errorf("unexpected topK/poolMultiplier: %d/%d", r.TopK, r.PoolMultiplier)
	}
	if r.SemanticTimeout() != 10*time.Second {
		t.Errorf("expected 10s semantic timeout, got %v", r.SemanticTimeout())
	}
	if r.Embedder.Provider != embedding.ProviderHash {
		t.Errorf("expected hash embedder, got %q", r.Embedder.Provider)
	}
	if !s.Storage.IsEnabled() {
		t.Error("storage should be enabled by default")
	}
	if s.Storage.Retention() != 30*24*time.Hour {
		t.Errorf("expected 30 day retention, got %v", s.Storage.Retention())
	}
}

func TestDisableNgrams(t *testing.T) {
	cfg := &Config{Settings: &Settings{Retrieval: &RetrievalSettings{DisableNgrams: true}}}
	cfg.ApplyDefaults()

	if lo, hi := cfg.Settings.Retrieval.Ngrams(); lo != 0 || hi != 0 {
		t.Errorf("expected n-grams disabled, got %d..%d", lo, hi)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled n-grams should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *RetrievalSettings)
		wantErr bool
	}{
		{"defaults", func(r *RetrievalSettings) {}, false},
		{"bleve engine", func(r *RetrievalSettings) { r.Engine = EngineBleve }, false},
		{"unknown engine", func(r *RetrievalSettings) { r.Engine = "vector" }, true},
		{"inverted n-grams", func(r *RetrievalSettings) { r.MinNgram, r.MaxNgram = 5, 3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg.Settings.Retrieval)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnabledServers(t *testing.T) {
	cfg := NewConfig()
	cfg.Servers["fs"] = &ServerConfig{Command: "node"}
	cfg.Servers["off"] = &ServerConfig{Command: "node", Disabled: true}

	enabled := cfg.EnabledServers()
	if len(enabled) != 1 || enabled["fs"] == nil {
		t.Errorf("expected only fs enabled, got %v", enabled)
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg := NewConfig()
			cfg.Servers["fs"] = &ServerConfig{
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-filesystem"},
				Env:     map[string]string{"DEBUG": "1"},
				Source:  "cli",
			}
			cfg.Settings.Retrieval.Engine = EngineKeyword
			cfg.Settings.Retrieval.TopK = 8

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := LoadFrom(path)
			if err != nil {
				t.Fatalf("LoadFrom failed: %v", err)
			}

			srv := loaded.Servers["fs"]
			if srv == nil {
				t.Fatal("server fs not loaded")
			}
			if srv.Command != "npx" || len(srv.Args) != 2 || srv.Env["DEBUG"] != "1" {
				t.Errorf("server not round-tripped: %+v", srv)
			}
			if loaded.Settings.Retrieval.Engine != EngineKeyword || loaded.Settings.Retrieval.TopK != 8 {
				t.Errorf("retrieval settings not round-tripped: %+v", loaded.Settings.Retrieval)
			}
		})
	}
}

func TestLoadMergesMCPServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude.json")
	data := `{
  "servers": {"fs": {"command": "node", "args": ["fs.js"]}},
  "mcpServers": {
    "fs": {"command": "ignored"},
    "web": {"command": "uvx", "args": ["web-search"]}
  }
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(cfg.Servers))
	}
	if cfg.Servers["fs"].Command != "node" {
		t.Errorf("servers entry should win over mcpServers, got %q", cfg.Servers["fs"].Command)
	}
	if cfg.Servers["web"].Command != "uvx" {
		t.Errorf("mcpServers entry not merged: %+v", cfg.Servers["web"])
	}
	if cfg.MCPServers != nil {
		t.Error("mcpServers alias should be cleared after merge")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("HUB_TEST_TOKEN", "secret")
	t.Setenv("HUB_TEST_ROOT", "/srv")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `servers:
  fs:
    command: node
    args: ["fs.js", "${HUB_TEST_ROOT}/data"]
    env:
      TOKEN: $HUB_TEST_TOKEN
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	srv := cfg.Servers["fs"]
	if srv.Args[1] != "/srv/data" {
		t.Errorf("expected expanded arg, got %q", srv.Args[1])
	}
	if srv.Env["TOKEN"] != "secret" {
		t.Errorf("expected expanded env, got %q", srv.Env["TOKEN"])
	}
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"servers": {}, "settings": {"retrieval": {"engine": "vector"}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected error for unknown engine")
	}
	if _, ok := err.(*InvalidConfigError); !ok {
		t.Errorf("expected *InvalidConfigError, got %T", err)
	}
}

func TestLoadForEditKeepsEnvReferences(t *testing.T) {
	t.Setenv("HUB_TEST_TOKEN", "secret")

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"servers": {"fs": {"command": "node", "env": {"TOKEN": "${HUB_TEST_TOKEN}"}}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadForEdit(path)
	if err != nil {
		t.Fatalf("LoadForEdit failed: %v", err)
	}
	if got := cfg.Servers["fs"].Env["TOKEN"]; got != "${HUB_TEST_TOKEN}" {
		t.Errorf("expected unexpanded reference, got %q", got)
	}
}
