package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/tool-hub-search/internal/config"
)

func TestRunRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := config.NewConfig()
	cfg.Servers["jira"] = &config.ServerConfig{Command: "npx"}
	cfg.Servers["fs"] = &config.ServerConfig{Command: "fs-mcp"}
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := runRemove(path, "jira"); err != nil {
		t.Fatalf("runRemove() error = %v", err)
	}

	got, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if _, ok := got.Servers["jira"]; ok {
		t.Error("jira still present")
	}
	if _, ok := got.Servers["fs"]; !ok {
		t.Error("fs should be kept")
	}

	err = runRemove(path, "jira")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("second remove: err = %v, want not found", err)
	}
}

func TestRunRemove_KeepsEnvReferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("REMOVE_TEST_TOKEN", "secret")

	cfg := config.NewConfig()
	cfg.Servers["a"] = &config.ServerConfig{Command: "a", Env: map[string]string{"TOKEN": "${REMOVE_TEST_TOKEN}"}}
	cfg.Servers["b"] = &config.ServerConfig{Command: "b"}
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := runRemove(path, "b"); err != nil {
		t.Fatalf("runRemove() error = %v", err)
	}

	got, err := config.LoadForEdit(path)
	if err != nil {
		t.Fatalf("LoadForEdit() error = %v", err)
	}
	if v := got.Servers["a"].Env["TOKEN"]; v != "${REMOVE_TEST_TOKEN}" {
		t.Errorf("TOKEN = %q, secret was written back", v)
	}
}

func TestRunRemove_MissingConfig(t *testing.T) {
	if err := runRemove(filepath.Join(t.TempDir(), "nope.json"), "x"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestRemoveCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv(ConfigEnv, path)

	cfg := config.NewConfig()
	cfg.Servers["jira"] = &config.ServerConfig{Command: "npx"}
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"rm", "jira"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Removed server 'jira'") {
		t.Errorf("unexpected output: %q", out.String())
	}

	root = NewRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"remove"})
	if err := root.Execute(); err == nil {
		t.Error("expected error without a name")
	}
}
