/*
Package spawner launches child MCP servers on demand and keeps their client
sessions in a bounded pool.

A server is started the first time one of its tools is listed or called.
When the pool is full the least recently used session is closed to make
room. Each operation is bounded by the pool timeout.
*/
package spawner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/logging"
)

// DefaultTimeout bounds a single MCP operation. It is generous so npx
// package downloads on cold start can finish.
const DefaultTimeout = 60 * time.Second

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrToolFailed   = errors.New("tool execution failed")
)

// Tool is a tool definition reported by a child MCP server.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// TransportFunc returns the transport used to reach the named server.
type TransportFunc func(name string, cfg *config.ServerConfig) (mcp.Transport, error)

// Option configures a Pool.
type Option func(*Pool)

// WithTransport replaces the default stdio command transport.
func WithTransport(fn TransportFunc) Option {
	return func(p *Pool) { p.transport = fn }
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool manages client sessions to child MCP servers.
type Pool struct {
	maxSize   int
	timeout   time.Duration
	logger    *slog.Logger
	transport TransportFunc
	client    *mcp.Client

	mu       sync.Mutex
	sessions map[string]*session
	spawns   singleflight.Group
}

type session struct {
	cs       *mcp.ClientSession
	lastUsed time.Time
}

// NewPool creates a pool holding at most maxSize live sessions.
func NewPool(maxSize int, opts ...Option) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	p := &Pool{
		maxSize:   maxSize,
		timeout:   DefaultTimeout,
		logger:    logging.WithComponent("spawner"),
		transport: commandTransport,
		client:    mcp.NewClient(&mcp.Implementation{Name: "tool-hub-search", Version: "0.1.0"}, nil),
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close terminates every session.
func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*session)
	p.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		p.logger.Debug("closing session", "server", name)
		if err := s.cs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// GetTools starts the server if needed and returns its tool list.
func (p *Pool) GetTools(ctx context.Context, name string, cfg *config.ServerConfig) ([]Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cs, err := p.getOrSpawn(ctx, name, cfg)
	if err != nil {
		return nil, err
	}

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		p.drop(name, cs)
		return nil, fmt.Errorf("list tools on %s: %w", name, err)
	}

	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		if t == nil {
			continue
		}
		tools = append(tools, Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return tools, nil
}

// ExecuteTool calls a tool on a child server and renders its result as text.
func (p *Pool) ExecuteTool(ctx context.Context, name string, cfg *config.ServerConfig, toolName string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cs, err := p.getOrSpawn(ctx, name, cfg)
	if err != nil {
		return "", err
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s on %s: %w", toolName, name, err)
	}
	text, err := renderResult(res)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	return text, nil
}

// GetToolHelp fetches the current definition of one tool from the live
// server.
func (p *Pool) GetToolHelp(ctx context.Context, name string, cfg *config.ServerConfig, toolName string) (Tool, error) {
	tools, err := p.GetTools(ctx, name, cfg)
	if err != nil {
		return Tool{}, err
	}
	for _, tool := range tools {
		if tool.Name == toolName {
			return tool, nil
		}
	}
	return Tool{}, fmt.Errorf("%w: '%s' on server '%s'", ErrToolNotFound, toolName, name)
}

func (p *Pool) getOrSpawn(ctx context.Context, name string, cfg *config.ServerConfig) (*mcp.ClientSession, error) {
	if cs := p.lookup(name); cs != nil {
		return cs, nil
	}

	v, err, _ := p.spawns.Do(name, func() (any, error) {
		if cs := p.lookup(name); cs != nil {
			return cs, nil
		}
		cs, err := p.connect(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		p.store(name, cs)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mcp.ClientSession), nil
}

func (p *Pool) lookup(name string) *mcp.ClientSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[name]; ok {
		s.lastUsed = time.Now()
		return s.cs
	}
	return nil
}

// store adds a session, evicting the least recently used one when full.
func (p *Pool) store(name string, cs *mcp.ClientSession) {
	var evicted *mcp.ClientSession

	p.mu.Lock()
	if len(p.sessions) >= p.maxSize {
		var oldest string
		for n, s := range p.sessions {
			if oldest == "" || s.lastUsed.Before(p.sessions[oldest].lastUsed) {
				oldest = n
			}
		}
		evicted = p.sessions[oldest].cs
		delete(p.sessions, oldest)
		p.logger.Debug("evicting session", "server", oldest)
	}
	p.sessions[name] = &session{cs: cs, lastUsed: time.Now()}
	p.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
}

// drop forgets a session that stopped answering so the next call respawns it.
func (p *Pool) drop(name string, cs *mcp.ClientSession) {
	p.mu.Lock()
	if s, ok := p.sessions[name]; ok && s.cs == cs {
		delete(p.sessions, name)
	}
	p.mu.Unlock()
	cs.Close()
}

func (p *Pool) connect(ctx context.Context, name string, cfg *config.ServerConfig) (*mcp.ClientSession, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server '%s': no configuration", name)
	}

	transport, err := p.transport(name, cfg)
	if err != nil {
		return nil, err
	}

	p.logger.Info("starting server", "server", name, "command", cfg.Command)
	cs, err := p.client.Connect(ctx, transport, nil)
	if err != nil {
		if strings.Contains(err.Error(), "EOF") {
			if pkg := getNpmPackageFromConfig(cfg); pkg != "" {
				return nil, fmt.Errorf("MCP server failed to start. Package '%s' may not exist or failed to load. Verify with: npm view %s", pkg, pkg)
			}
		}
		return nil, fmt.Errorf("failed to initialize server %s: %w", name, err)
	}
	return cs, nil
}

// execCommand allows tests to replace process creation.
var execCommand = exec.Command

// commandTransport launches the server as a child process over stdio.
// The child's stderr is left unset and so goes to the null device.
func commandTransport(name string, cfg *config.ServerConfig) (mcp.Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("server '%s': empty command", name)
	}
	cmd := execCommand(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for key, value := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// renderResult flattens a tool result: structured content as JSON, text
// blocks joined by newlines, other blocks as JSON.
func renderResult(res *mcp.CallToolResult) (string, error) {
	if res == nil {
		return "", nil
	}
	if res.StructuredContent != nil && !res.IsError {
		out, err := json.MarshalIndent(res.StructuredContent, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		out, err := json.Marshal(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(out))
	}
	return strings.Join(parts, "\n"), nil
}

// getNpmPackageFromConfig extracts the npm package name from an npx entry.
func getNpmPackageFromConfig(cfg *config.ServerConfig) string {
	if cfg.Command != "npx" {
		return ""
	}
	for _, arg := range cfg.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}
