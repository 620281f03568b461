/*
Package cli implements the tool-hub-search command line.

Every command reads the configuration from --config, then from
$TOOL_HUB_SEARCH_CONFIG, then from ~/.tool-hub-search.json.
*/
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/logging"
)

// ConfigEnv overrides the default configuration path.
const ConfigEnv = "TOOL_HUB_SEARCH_CONFIG"

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "tool-hub-search",
		Short: "MCP tool hub with hybrid tool retrieval",
		Long: `tool-hub-search aggregates many MCP servers behind one endpoint.

Instead of exposing every tool of every server to the AI client, it indexes
all tool descriptions and serves 4 meta-tools:
  • hub_list    - List indexed tools by server
  • hub_search  - Retrieve the most relevant tools (BM25 + embeddings, fused with RRF)
  • hub_execute - Call a tool by id
  • hub_help    - Show a tool's input schema`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, format := logLevel, logFormat
			if cfg, err := loadConfig(cmd); err == nil {
				if level == "" {
					level = cfg.Settings.LogLevel
				}
				if format == "" {
					format = cfg.Settings.LogFormat
				}
			}
			logging.Setup(level, format)
		},
	}

	root.PersistentFlags().String("config", "", "Path to the configuration file (.json, .yaml or .yml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewSearchCmd())
	root.AddCommand(NewListCmd())
	root.AddCommand(NewAddCmd())
	root.AddCommand(NewRemoveCmd())
	return root
}

// configPath resolves the configuration file for cmd.
func configPath(cmd *cobra.Command) (string, error) {
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), nil
	}
	if p := os.Getenv(ConfigEnv); p != "" {
		return p, nil
	}
	return config.GetDefaultConfigPath()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	return config.LoadFrom(path)
}

// loadOrNewConfig treats a missing file as an empty configuration.
func loadOrNewConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		var notFound *config.ConfigNotFoundError
		if errors.As(err, &notFound) {
			return config.NewConfig(), path, nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}
