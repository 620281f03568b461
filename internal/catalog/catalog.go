// Package catalog discovers tools from configured MCP servers, indexes them
// in a search collection and resolves search hits back to callable tools.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/logging"
	"github.com/khanglvm/tool-hub-search/internal/search"
	"github.com/khanglvm/tool-hub-search/internal/spawner"
)

// Metadata keys stored on every tool record.
const (
	MetaServerName = "server_name"
	MetaToolName   = "tool_name"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrUnknownServer = errors.New("unknown server")
)

// Tool is a tool exposed by one MCP server.
type Tool struct {
	// ID is "server:tool".
	ID          string `json:"id"`
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// Spawner lists and calls tools on MCP servers.
type Spawner interface {
	GetTools(ctx context.Context, name string, cfg *config.ServerConfig) ([]spawner.Tool, error)
	ExecuteTool(ctx context.Context, name string, cfg *config.ServerConfig, toolName string, args map[string]any) (string, error)
	GetToolHelp(ctx context.Context, name string, cfg *config.ServerConfig, toolName string) (spawner.Tool, error)
}

// ToolID joins a server and tool name.
func ToolID(server, tool string) string {
	return server + ":" + tool
}

// ParseToolID splits an id at the first colon.
func ParseToolID(id string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(id, ":")
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// Catalog holds the discovered tools and the collection indexing them.
type Catalog struct {
	servers     map[string]*config.ServerConfig
	spawner     Spawner
	collection  search.Collection
	logger      *slog.Logger
	concurrency int

	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConcurrency bounds how many servers are queried at once during Load.
func WithConcurrency(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates an empty catalog over servers. Call Load to populate it.
func New(servers map[string]*config.ServerConfig, sp Spawner, collection search.Collection, opts ...Option) *Catalog {
	c := &Catalog{
		servers:     servers,
		spawner:     sp,
		collection:  collection,
		logger:      logging.WithComponent("catalog"),
		concurrency: 3,
		tools:       make(map[string]Tool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load discovers tools from every server and indexes the ones not seen
// before in a single batch. Servers that fail are logged and skipped. It
// returns the number of newly indexed tools.
func (c *Catalog) Load(ctx context.Context) (int, error) {
	names := c.serverNames()
	discovered := make([][]spawner.Tool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, name := range names {
		g.Go(func() error {
			tools, err := c.spawner.GetTools(gctx, name, c.servers[name])
			if err != nil {
				c.logger.Warn("skipping server", "server", name, "error", err)
				return nil
			}
			c.logger.Info("discovered tools", "server", name, "count", len(tools))
			discovered[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		records []search.Record
		added   []Tool
		seen    = make(map[string]struct{})
	)
	for i, name := range names {
		for _, t := range discovered[i] {
			id := ToolID(name, t.Name)
			if _, ok := c.tools[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			tool := Tool{ID: id, Server: name, Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
			added = append(added, tool)
			records = append(records, toRecord(tool))
		}
	}

	if len(records) == 0 {
		if len(c.tools) == 0 {
			c.logger.Warn("no tools found to index")
		}
		return 0, nil
	}

	if err := c.collection.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to index tools: %w", err)
	}
	for _, t := range added {
		c.tools[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return len(added), nil
}

func toRecord(t Tool) search.Record {
	doc := t.Name
	if t.Description != "" {
		doc += ". " + t.Description
	}
	return search.Record{
		ID:       t.ID,
		Document: doc,
		Metadata: map[string]any{
			MetaServerName: t.Server,
			MetaToolName:   t.Name,
		},
	}
}

// Search returns up to topK tools per query, outer order matching queries.
func (c *Catalog) Search(ctx context.Context, queries []string, topK int) ([][]Tool, error) {
	results, err := c.collection.Query(ctx, queries, topK)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([][]Tool, len(results))
	for i, records := range results {
		tools := make([]Tool, 0, len(records))
		for _, r := range records {
			if t, ok := c.resolve(r); ok {
				tools = append(tools, t)
			}
		}
		out[i] = tools
	}
	return out, nil
}

// resolve maps a record to its tool, preferring metadata over the id.
func (c *Catalog) resolve(r search.Record) (Tool, bool) {
	id := r.ID
	server, _ := r.Metadata[MetaServerName].(string)
	name, _ := r.Metadata[MetaToolName].(string)
	if server != "" && name != "" {
		id = ToolID(server, name)
	}
	t, ok := c.tools[id]
	return t, ok
}

// Tool returns the tool registered under id.
func (c *Catalog) Tool(id string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[id]
	return t, ok
}

// Tools returns every tool in indexing order.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tools[id])
	}
	return out
}

// Len returns the number of indexed tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// Call invokes the tool registered under id.
func (c *Catalog) Call(ctx context.Context, id string, args map[string]any) (string, error) {
	t, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	cfg, ok := c.servers[t.Server]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, t.Server)
	}
	if args == nil {
		args = map[string]any{}
	}
	return c.spawner.ExecuteTool(ctx, t.Server, cfg, t.Name, args)
}

// Help returns the JSON definition of the tool registered under id, as
// currently reported by its server. When the server cannot be reached the
// indexed definition is returned instead.
func (c *Catalog) Help(ctx context.Context, id string) (string, error) {
	t, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	cfg, ok := c.servers[t.Server]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, t.Server)
	}

	live, err := c.spawner.GetToolHelp(ctx, t.Server, cfg, t.Name)
	switch {
	case errors.Is(err, spawner.ErrToolNotFound):
		return "", fmt.Errorf("%w: %s is no longer offered by %s", ErrUnknownTool, id, t.Server)
	case err != nil:
		c.logger.Warn("using indexed tool definition", "tool", id, "error", err)
	default:
		t.Description = live.Description
		t.InputSchema = live.InputSchema
	}

	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *Catalog) lookup(id string) (Tool, error) {
	if _, _, ok := ParseToolID(id); !ok {
		return Tool{}, fmt.Errorf("%w: %q is not of the form server:tool", ErrUnknownTool, id)
	}
	t, ok := c.Tool(id)
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, id)
	}
	return t, nil
}

func (c *Catalog) serverNames() []string {
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
