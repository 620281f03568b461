package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const binaryName = "tool-hub-search"

// IsSelfReference reports whether server would launch this hub, which
// would make the hub index and spawn itself.
func IsSelfReference(server *ServerConfig) bool {
	self := filepath.Base(os.Args[0])
	cmd := filepath.Base(server.Command)
	if cmd == self || cmd == binaryName {
		return true
	}

	if server.Command == "npx" || server.Command == "go" {
		for _, arg := range server.Args {
			if filepath.Base(arg) == binaryName {
				return true
			}
		}
	}
	return false
}

// ValidateServer checks that a server entry can be spawned.
func ValidateServer(name string, server *ServerConfig) error {
	if server == nil || server.Command == "" {
		return fmt.Errorf("server '%s': empty command", name)
	}
	if IsSelfReference(server) {
		return fmt.Errorf("server '%s': self-reference detected (%s cannot index itself)", name, binaryName)
	}
	return nil
}
