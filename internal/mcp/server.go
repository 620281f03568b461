/*
Package mcp implements the MCP server that exposes the tool catalog to agents.

The server exposes 4 meta-tools:
  - hub_list: list indexed tools grouped by server
  - hub_search: retrieve the tools most relevant to one or more queries
  - hub_execute: call a tool by id
  - hub_help: show the definition and input schema of a tool
*/
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/logging"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/storage"
)

const (
	serverName    = "tool-hub-search"
	serverVersion = "0.1.0"
)

// Server serves the hub meta-tools over MCP.
type Server struct {
	catalog *catalog.Catalog
	store   storage.Storage
	metrics *metrics.Metrics
	logger  *slog.Logger
	backend string
	topK    int

	server *mcpsdk.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStorage records searches and tool calls in store.
func WithStorage(store storage.Storage) Option {
	return func(s *Server) { s.store = store }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultTopK sets the result count used when a search omits top_k.
func WithDefaultTopK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithBackend labels recorded searches with the retrieval engine name.
func WithBackend(name string) Option {
	return func(s *Server) { s.backend = name }
}

// NewServer creates a server over cat.
func NewServer(cat *catalog.Catalog, opts ...Option) *Server {
	s := &Server{
		catalog: cat,
		logger:  logging.WithComponent("mcp"),
		backend: "hybrid",
		topK:    5,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: serverVersion}, nil)
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

type listArgs struct {
	Server string `json:"server,omitempty" jsonschema:"only list tools of this server"`
}

type searchArgs struct {
	Query   string   `json:"query,omitempty" jsonschema:"natural language description of the capability you need"`
	Queries []string `json:"queries,omitempty" jsonschema:"several queries answered in one call"`
	TopK    int      `json:"top_k,omitempty" jsonschema:"maximum tools returned per query"`
}

type executeArgs struct {
	Tool      string         `json:"tool" jsonschema:"tool id as server:tool, or a bare tool name when server is set"`
	Server    string         `json:"server,omitempty" jsonschema:"server name"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"tool arguments, see hub_help for the schema"`
}

type helpArgs struct {
	Tool   string `json:"tool" jsonschema:"tool id as server:tool, or a bare tool name when server is set"`
	Server string `json:"server,omitempty" jsonschema:"server name"`
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: "hub_list",
		Description: `List every indexed tool grouped by MCP server.

WHEN TO USE: To browse what is available. Prefer hub_search when you know what you need.`,
	}, s.handleList)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: "hub_search",
		Description: `Find the tools most relevant to a natural language request across ALL servers.

Ranking combines keyword (BM25) and embedding similarity.

Example queries: "read a file from disk", "create jira issue", "take a browser screenshot"
Returns: tool ids (server:tool) with descriptions. Pass an id to hub_help or hub_execute.`,
	}, s.handleSearch)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: "hub_execute",
		Description: `Execute a tool found with hub_search.

Example: hub_execute(tool="fs:read_file", arguments={"path": "README.md"})`,
	}, s.handleExecute)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: "hub_help",
		Description: `Show the description and JSON input schema of a tool.

WHEN TO USE: Before hub_execute, to learn the required arguments.`,
	}, s.handleHelp)
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

func (s *Server) handleList(ctx context.Context, _ *mcpsdk.CallToolRequest, args listArgs) (*mcpsdk.CallToolResult, any, error) {
	return textResult(s.listTools(args.Server)), nil, nil
}

func (s *Server) listTools(server string) string {
	byServer := make(map[string][]catalog.Tool)
	for _, t := range s.catalog.Tools() {
		if server != "" && t.Server != server {
			continue
		}
		byServer[t.Server] = append(byServer[t.Server], t)
	}
	if len(byServer) == 0 {
		if server != "" {
			return fmt.Sprintf("No tools indexed for server '%s'.", server)
		}
		return "No tools indexed. Run 'tool-hub-search add <name> --command <cmd>' to register MCP servers."
	}

	names := make([]string, 0, len(byServer))
	for name := range byServer {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s (%d tools):\n", name, len(byServer[name]))
		for _, t := range byServer[name] {
			fmt.Fprintf(&b, "  • %s: %s\n", t.ID, firstLine(t.Description))
		}
	}
	return b.String()
}

func (s *Server) handleSearch(ctx context.Context, _ *mcpsdk.CallToolRequest, args searchArgs) (*mcpsdk.CallToolResult, any, error) {
	queries := make([]string, 0, len(args.Queries)+1)
	if q := strings.TrimSpace(args.Query); q != "" {
		queries = append(queries, q)
	}
	for _, q := range args.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return errorResult(fmt.Errorf("query or queries is required")), nil, nil
	}
	topK := args.TopK
	if topK <= 0 {
		topK = s.topK
	}

	searchID := uuid.NewString()
	ctx = logging.WithSearchID(ctx, searchID)
	log := logging.FromContext(ctx)

	results, err := s.catalog.Search(ctx, queries, topK)
	if err != nil {
		log.Warn("search failed", "error", err)
		return errorResult(fmt.Errorf("search failed: %w", err)), nil, nil
	}

	total := 0
	var b strings.Builder
	for i, q := range queries {
		fmt.Fprintf(&b, "Results for '%s':\n", q)
		if len(results[i]) == 0 {
			b.WriteString("  (no matching tools)\n")
		}
		for rank, t := range results[i] {
			fmt.Fprintf(&b, "  %d. %s: %s\n", rank+1, t.ID, firstLine(t.Description))
		}
		total += len(results[i])
	}
	b.WriteString("\nNext step: hub_help(tool) for the input schema, then hub_execute(tool, arguments).")

	log.Debug("search completed", "queries", len(queries), "results", total)
	s.recordSearch(searchID, queries, total)
	return textResult(b.String()), nil, nil
}

func (s *Server) recordSearch(searchID string, queries []string, total int) {
	if s.store == nil {
		return
	}
	err := s.store.RecordSearch(storage.SearchRecord{
		SearchID:     searchID,
		QueryHash:    storage.HashQuery(strings.Join(queries, "\n")),
		Timestamp:    time.Now(),
		ResultsCount: total,
		QueriesCount: len(queries),
		Backend:      s.backend,
	})
	if err != nil {
		s.logger.Warn("failed to record search", "error", err)
	}
}

func (s *Server) handleExecute(ctx context.Context, _ *mcpsdk.CallToolRequest, args executeArgs) (*mcpsdk.CallToolResult, any, error) {
	id := toolID(args.Server, args.Tool)
	server, _, _ := catalog.ParseToolID(id)

	start := time.Now()
	out, err := s.catalog.Call(ctx, id, args.Arguments)
	s.metrics.ObserveToolCall(server, err)
	s.recordToolCall(id, server, start, err)

	if err != nil {
		s.logger.Warn("tool call failed", "tool", id, "error", err)
		return errorResult(fmt.Errorf("failed to execute tool: %w", err)), nil, nil
	}
	return textResult(out), nil, nil
}

func (s *Server) recordToolCall(id, server string, start time.Time, callErr error) {
	if s.store == nil {
		return
	}
	err := s.store.RecordToolCall(storage.ToolCall{
		ToolID:     id,
		ServerName: server,
		Timestamp:  start,
		Duration:   time.Since(start),
		Success:    callErr == nil,
	})
	if err != nil {
		s.logger.Warn("failed to record tool call", "error", err)
	}
}

func (s *Server) handleHelp(ctx context.Context, _ *mcpsdk.CallToolRequest, args helpArgs) (*mcpsdk.CallToolResult, any, error) {
	help, err := s.catalog.Help(ctx, toolID(args.Server, args.Tool))
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(help), nil, nil
}

// toolID accepts either "server:tool" or a separate server and tool name.
func toolID(server, tool string) string {
	if server != "" && !strings.HasPrefix(tool, server+":") {
		return catalog.ToolID(server, tool)
	}
	return tool
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
