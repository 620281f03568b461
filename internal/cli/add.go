package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/khanglvm/tool-hub-search/internal/config"
)

// NewAddCmd creates the 'add' command for registering MCP servers.
//
// Supports two modes:
// 1. Paste: a JSON or YAML config snippet (from --json, --file or stdin), previewed before saving
// 2. Flags: --command, --arg, --env for a single named server
func NewAddCmd() *cobra.Command {
	var (
		command   string
		args      []string
		envVars   []string
		snippet   string
		file      string
		noConfirm bool
	)

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add MCP server(s) - paste a config snippet or use flags",
		Long: `Add MCP server configuration(s) to tool-hub-search.

PASTE MODE:
  Paste any MCP configuration in JSON or YAML. Recognized layouts:
  • Claude style (mcpServers)
  • OpenCode style (mcp), Zed style (context_servers)
  • A bare map of servers, or a single server object

  The servers found are listed and confirmed before saving.

FLAG MODE:
  Specify server details directly with flags.`,
		Example: `  # Paste a snippet when prompted
  tool-hub-search add

  # Pass a snippet directly
  tool-hub-search add --json '{"jira": {"command": "npx", "args": ["-y", "@acme/jira-mcp"]}}'

  # Import every server from another client's config file
  tool-hub-search add --file ~/Library/Application\ Support/Claude/claude_desktop_config.json -y

  # Flag mode
  tool-hub-search add jira --command "npx" --arg "-y" --arg "@acme/jira-mcp" --env "JIRA_TOKEN=\${JIRA_TOKEN}"`,
		RunE: func(cmd *cobra.Command, positional []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if command == "" {
				if len(positional) > 0 && snippet == "" && file == "" {
					return fmt.Errorf("--command is required when a server name is given")
				}
				input := snippet
				if file != "" {
					data, err := os.ReadFile(file)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", file, err)
					}
					input = string(data)
				}
				if input == "" {
					fmt.Fprintln(out, "📋 Paste your MCP configuration (JSON or YAML), then an empty line:")
					input = readMultilineInput(cmd.InOrStdin())
				}
				return runAddSnippet(path, input, !noConfirm, cmd.InOrStdin(), out)
			}

			if len(positional) == 0 {
				return fmt.Errorf("server name required when using flag mode")
			}
			return runAddWithFlags(path, positional[0], command, args, envVars, out)
		},
	}

	cmd.Flags().StringVarP(&command, "command", "c", "", "Command to run the MCP server")
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "Arguments for the command")
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "Environment variables (KEY=VALUE)")
	cmd.Flags().StringVarP(&snippet, "json", "j", "", "MCP config snippet in JSON or YAML (auto-detect layout)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the config snippet from a file")
	cmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

// runAddSnippet parses input, previews the servers and saves them.
func runAddSnippet(path, input string, confirm bool, in io.Reader, out io.Writer) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("no input provided")
	}

	servers, layout, err := parseAnyMCPConfig(input)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	for name, server := range servers {
		if err := validateNewServer(name, server); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "🔍 Detected layout: %s\n", layout)
	fmt.Fprintf(out, "📦 Found %d server(s):\n\n", len(servers))
	for _, name := range names {
		server := servers[name]
		fmt.Fprintf(out, "  %s\n", name)
		fmt.Fprintf(out, "    Command: %s %v\n", server.Command, server.Args)
		if len(server.Env) > 0 {
			fmt.Fprintf(out, "    Env:     %d variable(s)\n", len(server.Env))
		}
		fmt.Fprintln(out)
	}

	if confirm {
		fmt.Fprint(out, "Add these servers? [Y/n] ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	cfg, err := loadForEditOrNew(path)
	if err != nil {
		return err
	}
	for name, server := range servers {
		server.Source = "manual"
		cfg.Servers[name] = server
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "✓ Added %d server(s) to %s\n", len(servers), path)
	return nil
}

// runAddWithFlags registers a single server described by flags.
func runAddWithFlags(path, name, command string, args, envVars []string, out io.Writer) error {
	env := make(map[string]string)
	for _, e := range envVars {
		key, value := parseEnvVar(e)
		if key != "" {
			env[key] = value
		}
	}

	server := &config.ServerConfig{
		Command: command,
		Args:    args,
		Env:     env,
		Source:  "cli",
	}
	if err := validateNewServer(name, server); err != nil {
		return err
	}

	cfg, err := loadForEditOrNew(path)
	if err != nil {
		return err
	}
	cfg.Servers[name] = server

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "✓ Added server '%s' to %s\n", name, path)
	return nil
}

func loadForEditOrNew(path string) (*config.Config, error) {
	cfg, err := config.LoadForEdit(path)
	if err != nil {
		var notFound *config.ConfigNotFoundError
		if errors.As(err, &notFound) {
			return config.NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// validateNewServer rejects names that would break "server:tool" ids and
// servers that point back at this binary.
func validateNewServer(name string, server *config.ServerConfig) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("server name must not be empty")
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("server name '%s' must not contain ':'", name)
	}
	return config.ValidateServer(name, server)
}

// parseAnyMCPConfig finds MCP server definitions in a JSON or YAML snippet.
// It returns the servers and a label for the layout it recognized.
func parseAnyMCPConfig(input string) (map[string]*config.ServerConfig, string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(strings.TrimSpace(input)), &raw); err != nil {
		return nil, "", fmt.Errorf("invalid JSON or YAML: %w", err)
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("could not find valid MCP server configuration")
	}

	wrapperKeys := []string{
		"mcpServers", "mcp_servers", "MCPServers",
		"mcp",
		"servers",
		"context_servers",
	}
	for _, key := range wrapperKeys {
		if wrapped, ok := raw[key].(map[string]any); ok {
			if servers := parseServersMap(wrapped); len(servers) > 0 {
				return servers, fmt.Sprintf("Wrapped (%s)", key), nil
			}
		}
	}

	if servers := parseServersMap(raw); len(servers) > 0 {
		return servers, "Direct server map", nil
	}

	if server := parseSingleServer(raw); server != nil {
		return map[string]*config.ServerConfig{"server": server}, "Single server object", nil
	}

	return nil, "", fmt.Errorf("could not find valid MCP server configuration")
}

func parseServersMap(raw map[string]any) map[string]*config.ServerConfig {
	result := make(map[string]*config.ServerConfig)
	for name, val := range raw {
		if serverMap, ok := val.(map[string]any); ok {
			if server := parseSingleServer(serverMap); server != nil {
				result[name] = server
			}
		}
	}
	return result
}

// parseSingleServer accepts the key spellings used by common MCP clients.
// A "command" given as an array is split into command and args (OpenCode).
func parseSingleServer(raw map[string]any) *config.ServerConfig {
	if enabled, ok := raw["enabled"].(bool); ok && !enabled {
		return nil
	}

	command := findStringKey(raw, "command", "cmd", "executable", "bin")
	args := findStringArrayKey(raw, "args", "arguments", "argv")
	if command == "" {
		parts := findStringArrayKey(raw, "command", "cmd")
		if len(parts) == 0 {
			return nil
		}
		command, args = parts[0], append(parts[1:], args...)
	}

	return &config.ServerConfig{
		Command: command,
		Args:    args,
		Env:     findStringMapKey(raw, "env", "environment", "envVars", "env_vars"),
	}
}

func findStringKey(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func findStringArrayKey(m map[string]any, keys ...string) []string {
	for _, key := range keys {
		arr, ok := m[key].([]any)
		if !ok {
			continue
		}
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return nil
}

// findStringMapKey converts scalar values to strings so YAML numbers and
// booleans survive.
func findStringMapKey(m map[string]any, keys ...string) map[string]string {
	for _, key := range keys {
		obj, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		result := make(map[string]string, len(obj))
		for k, v := range obj {
			switch v := v.(type) {
			case string:
				result[k] = v
			case nil:
			default:
				result[k] = fmt.Sprint(v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return nil
}

// readMultilineInput reads lines until the first empty line or EOF.
func readMultilineInput(in io.Reader) string {
	reader := bufio.NewReader(in)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
		if err != nil {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// parseEnvVar splits "KEY=VALUE" into key and value.
func parseEnvVar(s string) (string, string) {
	key, value, _ := strings.Cut(s, "=")
	return key, value
}
