package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")
	data := []byte(`{"servers": {}}`)

	if err := atomicWrite(path, data); err != nil {
		t.Fatalf("atomicWrite() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("content = %q, want %q", got, data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "nested", "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestBackupConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	if err := backupConfig(path); err != nil {
		t.Fatalf("backupConfig() on first run: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Error("no backup expected when there is no config yet")
	}

	original := []byte(`{"servers": {"a": {"command": "a"}}}`)
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatal(err)
	}
	if err := backupConfig(path); err != nil {
		t.Fatalf("backupConfig() error = %v", err)
	}
	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(bak) != string(original) {
		t.Errorf("backup = %q, want %q", bak, original)
	}
}

func TestValidateEncoded(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		data    string
		wantErr string
	}{
		{"valid json", "config.json", `{"servers": {"fs": {"command": "node"}}}`, ""},
		{"valid yaml", "config.yaml", "servers:\n  fs:\n    command: node\n", ""},
		{"no servers", "config.json", `{"settings": {}}`, "missing 'servers' field"},
		{"empty command", "config.json", `{"servers": {"fs": {"command": ""}}}`, "empty command field"},
		{"null server", "config.json", `{"servers": {"fs": null}}`, "empty command field"},
		{"broken json", "config.json", `{invalid json}`, "invalid character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEncoded(tt.path, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateEncoded() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateEncoded() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveKeepsPreviousVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := NewConfig()
	cfg.Servers["fs"] = &ServerConfig{Command: "node", Args: []string{"fs.js"}}
	if err := Save(cfg, path); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}

	cfg.Servers["fs"].Args = []string{"fs.js", "--readonly"}
	if err := Save(cfg, path); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if strings.Contains(string(bak), "--readonly") {
		t.Error("backup should hold the previous version")
	}
	current, _ := os.ReadFile(path)
	if !strings.Contains(string(current), "--readonly") {
		t.Error("config should hold the new version")
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := NewConfig()
	cfg.Servers["broken"] = &ServerConfig{}

	err := Save(cfg, path)
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("Save() error = %v, want *InvalidConfigError", err)
	}
	if invalid.Unwrap() == nil {
		t.Error("InvalidConfigError should carry its cause")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("nothing should be written when validation fails")
	}
}

func TestSaveConcurrentWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent write test in short mode")
	}
	path := filepath.Join(t.TempDir(), "config.json")

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := NewConfig()
			cfg.Servers["server"] = &ServerConfig{Command: "node", Args: []string{"--id", string(rune('0' + i))}}
			if err := Save(cfg, path); err != nil {
				t.Logf("concurrent save error: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after concurrent writes: %v", err)
	}
	if err := validateEncoded(path, data); err != nil {
		t.Errorf("config corrupted after concurrent writes: %v", err)
	}
}

func TestSaveYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := NewConfig()
	cfg.Servers["fs"] = &ServerConfig{Command: "node", Args: []string{"fs.js"}}
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		t.Errorf("expected YAML output, got %s", data)
	}
	if !strings.Contains(string(data), "command: node") {
		t.Errorf("expected server entry in YAML, got %s", data)
	}
}
