package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-hub-search/internal/config"
)

// NewRemoveCmd creates the 'remove' command for removing MCP servers.
func NewRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an MCP server",
		Long:    `Remove an MCP server from the configuration. Its tools disappear from the index on the next start.`,
		Example: `  tool-hub-search remove jira
  tool-hub-search rm jira`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if err := runRemove(path, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed server '%s'\n", args[0])
			return nil
		},
	}

	return cmd
}

// runRemove deletes server name from the configuration at path.
func runRemove(path, name string) error {
	cfg, err := config.LoadForEdit(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Servers[name]; !exists {
		return fmt.Errorf("server '%s' not found", name)
	}
	delete(cfg.Servers, name)

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
