/*
Package main is the entry point for the tool-hub-search CLI.

tool-hub-search is an MCP aggregator that indexes the tools of many MCP
servers and lets an agent retrieve only the ones relevant to its task,
ranked by a hybrid of BM25 keyword scoring and embedding similarity.

Usage:

	tool-hub-search [command]

Available Commands:

	serve       Run the MCP server (stdio transport)
	search      Find the MCP tools most relevant to a query
	add         Add MCP server(s)
	remove      Remove an MCP server
	list        List all registered MCP servers

Examples:

	# Register a server
	tool-hub-search add fs --command npx --arg -y --arg @modelcontextprotocol/server-filesystem --arg ~

	# Try retrieval from the shell
	tool-hub-search search "read a file"

	# Run as MCP server
	tool-hub-search serve
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/khanglvm/tool-hub-search/internal/cli"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := cli.NewRootCmd(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
