package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/config"
)

// NewSearchCmd creates the 'search' command for one-shot tool retrieval.
func NewSearchCmd() *cobra.Command {
	var (
		topK       int
		engine     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query> [query...]",
		Short: "Find the MCP tools most relevant to a query",
		Long: `Index the tools of every configured MCP server and print the best
matches for each query. Each argument is a separate query.`,
		Example: `  tool-hub-search search "read a file"
  tool-hub-search search "create jira issue" "take a screenshot" -k 3
  tool-hub-search search "send email" --engine keyword --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if engine != "" {
				cfg.Settings.Retrieval.Engine = engine
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if topK <= 0 {
				topK = cfg.Settings.Retrieval.TopK
			}

			h, err := newHub(cmd.Context(), cfg, hubOptions{})
			if err != nil {
				return err
			}
			defer h.Close()

			if _, err := h.catalog.Load(cmd.Context()); err != nil {
				return err
			}
			results, err := h.catalog.Search(cmd.Context(), args, topK)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeSearchJSON(cmd.OutOrStdout(), args, results)
			}
			writeSearchText(cmd.OutOrStdout(), args, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum results per query (default from settings)")
	cmd.Flags().StringVar(&engine, "engine", "", fmt.Sprintf("Retrieval engine: %s, %s, %s or %s",
		config.EngineHybrid, config.EngineKeyword, config.EngineSemantic, config.EngineBleve))
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

type searchResult struct {
	Query string         `json:"query"`
	Tools []catalog.Tool `json:"tools"`
}

func writeSearchJSON(w io.Writer, queries []string, results [][]catalog.Tool) error {
	out := make([]searchResult, len(queries))
	for i, q := range queries {
		out[i] = searchResult{Query: q, Tools: results[i]}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSearchText(w io.Writer, queries []string, results [][]catalog.Tool) {
	for i, q := range queries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", q)
		if len(results[i]) == 0 {
			fmt.Fprintln(w, "  (no matching tools)")
			continue
		}
		for rank, t := range results[i] {
			desc := t.Description
			if j := strings.IndexByte(desc, '\n'); j >= 0 {
				desc = desc[:j]
			}
			fmt.Fprintf(w, "  %d. %s  %s\n", rank+1, t.ID, desc)
		}
	}
}
