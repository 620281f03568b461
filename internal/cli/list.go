package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/spawner"
)

// NewListCmd creates the 'list' command for listing registered MCP servers.
func NewListCmd() *cobra.Command {
	var jsonOutput bool
	var showStatus bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all registered MCP servers",
		Long:    `Display all MCP servers registered in the configuration file.`,
		Example: `  tool-hub-search list
  tool-hub-search ls
  tool-hub-search list --status  # spawn each server and show tool counts
  tool-hub-search list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadOrNewConfig(cmd)
			if err != nil {
				return err
			}
			var pool *spawner.Pool
			if showStatus {
				pool = spawner.NewPool(cfg.Settings.ProcessPoolSize, spawner.WithTimeout(cfg.Settings.Timeout()))
				defer pool.Close()
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), cfg, pool, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVarP(&showStatus, "status", "s", false, "Test connections and show tool counts")

	return cmd
}

type serverStatus struct {
	Name     string   `json:"name"`
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	Source   string   `json:"source,omitempty"`
	EnvCount int      `json:"envCount,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
	Tools    *int     `json:"tools,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// runList prints the registered servers. When pool is non-nil each enabled
// server is spawned to count its tools.
func runList(ctx context.Context, w io.Writer, cfg *config.Config, pool *spawner.Pool, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(cfg.Servers) == 0 {
		if jsonOutput {
			fmt.Fprintln(w, "[]")
			return nil
		}
		fmt.Fprintln(w, "No servers configured.")
		fmt.Fprintln(w, "Run 'tool-hub-search add <name> --command <cmd>' to register one.")
		return nil
	}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]serverStatus, 0, len(names))
	for _, name := range names {
		server := cfg.Servers[name]
		st := serverStatus{
			Name:     name,
			Command:  server.Command,
			Args:     server.Args,
			Source:   server.Source,
			EnvCount: len(server.Env),
			Disabled: server.Disabled,
		}
		if pool != nil && !server.Disabled {
			tools, err := pool.GetTools(ctx, name, server)
			if err != nil {
				st.Error = err.Error()
			} else {
				n := len(tools)
				st.Tools = &n
			}
		}
		statuses = append(statuses, st)
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	fmt.Fprintf(w, "Registered MCP Servers (%d):\n\n", len(statuses))
	for _, st := range statuses {
		source := st.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(w, "  %s", st.Name)
		if st.Disabled {
			fmt.Fprint(w, " (disabled)")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    Command: %s %v\n", st.Command, st.Args)
		fmt.Fprintf(w, "    Source:  %s\n", source)
		if st.EnvCount > 0 {
			fmt.Fprintf(w, "    Env:     %d variables\n", st.EnvCount)
		}
		switch {
		case st.Error != "":
			fmt.Fprintf(w, "    Status:  ✗ %s\n", st.Error)
		case st.Tools != nil:
			fmt.Fprintf(w, "    Status:  ✓ %d tools\n", *st.Tools)
		}
		fmt.Fprintln(w)
	}
	return nil
}
