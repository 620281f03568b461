package config

import (
	"fmt"
	"strings"
)

// ConfigNotFoundError is returned when the configuration file does not exist.
// Commands that can start from an empty configuration check for it with
// errors.As.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s\n\n💡 %s", e.Path, e.Hint)
}

// PermissionError reports a config file or directory that cannot be read or
// written, with a platform-specific fix.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string
	Details string
	Err     error
}

func (e *PermissionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "permission denied (cannot %s config): %s\n", e.Op, e.Path)
	if e.Details != "" {
		b.WriteString(e.Details + "\n")
	}
	b.WriteString("💡 Fix: " + e.Fix)
	return b.String()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// InvalidConfigError reports a file that could not be decoded or holds
// settings that fail validation.
type InvalidConfigError struct {
	Path    string
	Message string
	Hint    string
	Err     error
}

func (e *InvalidConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid config: %s\n", e.Path)
	if e.Message != "" {
		b.WriteString(e.Message + "\n")
	}
	if e.Hint != "" {
		b.WriteString("💡 " + e.Hint)
	}
	return b.String()
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }
