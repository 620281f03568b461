package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFrom reads the configuration at path, merges "mcpServers" into
// "servers", expands environment references and applies defaults.
func LoadFrom(path string) (*Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.expandEnv()
	return cfg, nil
}

// LoadForEdit reads the configuration like LoadFrom but leaves environment
// references unexpanded, so saving it back does not write secrets.
func LoadForEdit(path string) (*Config, error) {
	return readConfig(path)
}

func readConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "Run 'tool-hub-search add <name> --command <cmd>' to create configuration",
			}
		}
		return nil, fmt.Errorf("failed to access config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PermissionError{
				Path:    path,
				Op:      "read",
				Fix:     getReadPermissionFix(path),
				Details: getPermissionDetails(path),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decode(path, data)
	if err != nil {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: fmt.Sprintf("%s parse error: %v", formatName(path), err),
			Hint:    "Restore from .bak file if available",
			Err:     err,
		}
	}

	cfg.mergeMCPServers()
	cfg.dropNilServers()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &InvalidConfigError{Path: path, Message: err.Error(), Err: err}
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func formatName(path string) string {
	if isYAML(path) {
		return "YAML"
	}
	return "JSON"
}

func decode(path string, data []byte) (*Config, error) {
	var cfg Config
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func encode(path string, cfg *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// mergeMCPServers folds the alias map into Servers. Entries already in
// Servers win.
func (c *Config) mergeMCPServers() {
	if c.Servers == nil {
		c.Servers = make(map[string]*ServerConfig)
	}
	for name, srv := range c.MCPServers {
		if _, exists := c.Servers[name]; !exists {
			c.Servers[name] = srv
		}
	}
	c.MCPServers = nil
}

func (c *Config) dropNilServers() {
	for name, srv := range c.Servers {
		if srv == nil {
			delete(c.Servers, name)
		}
	}
}

// expandEnv replaces $VAR and ${VAR} in args and env values. Unset
// variables expand to the empty string.
func (c *Config) expandEnv() {
	for _, srv := range c.Servers {
		for i, arg := range srv.Args {
			srv.Args[i] = os.ExpandEnv(arg)
		}
		for k, v := range srv.Env {
			srv.Env[k] = os.ExpandEnv(v)
		}
	}
}

func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default:
		return fmt.Sprintf("Run: chmod 644 %s", path)
	}
}

func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
