package spawner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/logging"
)

type echoArgs struct {
	Message string `json:"message"`
}

func newTestServer(name string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echo a message back",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args echoArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: name + ": " + args.Message}},
		}, nil, nil
	})
	mcp.AddTool(server, &mcp.Tool{
		Name:        "fail",
		Description: "Always fails",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args echoArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "boom"}},
		}, nil, nil
	})
	return server
}

// inMemory connects every requested server name to a fresh in-process
// MCP server and counts connections.
type inMemory struct {
	t     *testing.T
	dials atomic.Int32
}

func (m *inMemory) transport(name string, cfg *config.ServerConfig) (mcp.Transport, error) {
	m.dials.Add(1)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := newTestServer(name).Connect(context.Background(), serverTransport, nil)
	if err != nil {
		return nil, err
	}
	m.t.Cleanup(func() { ss.Close() })
	return clientTransport, nil
}

func newTestPool(t *testing.T, maxSize int) (*Pool, *inMemory) {
	t.Helper()
	dialer := &inMemory{t: t}
	pool := NewPool(maxSize, WithTransport(dialer.transport), WithLogger(logging.Discard()), WithTimeout(5*time.Second))
	t.Cleanup(func() { pool.Close() })
	return pool, dialer
}

var testCfg = &config.ServerConfig{Command: "in-memory"}

func TestNewPool(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		want    int
	}{
		{"default size", 3, 3},
		{"large pool", 10, 10},
		{"zero clamps to one", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.maxSize)
			if pool.maxSize != tt.want {
				t.Errorf("Expected maxSize %d, got %d", tt.want, pool.maxSize)
			}
			if pool.timeout != DefaultTimeout {
				t.Errorf("Expected default timeout, got %v", pool.timeout)
			}
			if pool.Len() != 0 {
				t.Errorf("Expected empty pool, got %d sessions", pool.Len())
			}
		})
	}
}

func TestPoolGetTools(t *testing.T) {
	pool, dialer := newTestPool(t, 3)
	ctx := context.Background()

	tools, err := pool.GetTools(ctx, "fs", testCfg)
	if err != nil {
		t.Fatalf("GetTools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("Expected 2 tools, got %d", len(tools))
	}

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	if !names["echo"] || !names["fail"] {
		t.Errorf("Unexpected tools: %v", tools)
	}

	// Second call reuses the session.
	if _, err := pool.GetTools(ctx, "fs", testCfg); err != nil {
		t.Fatalf("GetTools failed: %v", err)
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("Expected 1 connection, got %d", got)
	}
}

func TestPoolExecuteTool(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	ctx := context.Background()

	out, err := pool.ExecuteTool(ctx, "fs", testCfg, "echo", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	if out != "fs: hi" {
		t.Errorf("Expected %q, got %q", "fs: hi", out)
	}

	_, err = pool.ExecuteTool(ctx, "fs", testCfg, "fail", map[string]any{})
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("Expected ErrToolFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected tool error text in %q", err.Error())
	}
}

func TestPoolGetToolHelp(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	ctx := context.Background()

	tool, err := pool.GetToolHelp(ctx, "fs", testCfg, "echo")
	if err != nil {
		t.Fatalf("GetToolHelp failed: %v", err)
	}
	if tool.Name != "echo" || tool.Description != "Echo a message back" || tool.InputSchema == nil {
		t.Errorf("Unexpected tool: %+v", tool)
	}

	_, err = pool.GetToolHelp(ctx, "fs", testCfg, "missing")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestPoolEvictsLeastRecentlyUsed(t *testing.T) {
	pool, dialer := newTestPool(t, 2)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		if _, err := pool.GetTools(ctx, name, testCfg); err != nil {
			t.Fatalf("GetTools(%s) failed: %v", name, err)
		}
		time.Sleep(time.Millisecond)
	}
	// Touch a so b becomes the eviction candidate.
	if _, err := pool.GetTools(ctx, "a", testCfg); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	if _, err := pool.GetTools(ctx, "c", testCfg); err != nil {
		t.Fatal(err)
	}
	if pool.Len() != 2 {
		t.Fatalf("Expected 2 sessions, got %d", pool.Len())
	}

	pool.mu.Lock()
	_, hasA := pool.sessions["a"]
	_, hasB := pool.sessions["b"]
	pool.mu.Unlock()
	if !hasA || hasB {
		t.Errorf("Expected b evicted and a kept, have a=%v b=%v", hasA, hasB)
	}

	// b respawns on demand.
	if _, err := pool.GetTools(ctx, "b", testCfg); err != nil {
		t.Fatal(err)
	}
	if got := dialer.dials.Load(); got != 4 {
		t.Errorf("Expected 4 connections, got %d", got)
	}
}

func TestPoolConcurrentSpawnDeduplicated(t *testing.T) {
	pool, dialer := newTestPool(t, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := pool.ExecuteTool(ctx, "fs", testCfg, "echo", map[string]any{"message": fmt.Sprint(i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ExecuteTool failed: %v", err)
		}
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("Expected a single connection, got %d", got)
	}
}

func TestPoolClose(t *testing.T) {
	pool, _ := newTestPool(t, 3)

	if err := NewPool(3).Close(); err != nil {
		t.Errorf("Close() on empty pool returned error: %v", err)
	}

	if _, err := pool.GetTools(context.Background(), "fs", testCfg); err != nil {
		t.Fatal(err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if pool.Len() != 0 {
		t.Errorf("Expected 0 sessions after Close(), got %d", pool.Len())
	}
}

func TestPoolSpawnFailure(t *testing.T) {
	original := execCommand
	defer func() { execCommand = original }()

	var called string
	execCommand = func(name string, args ...string) *exec.Cmd {
		called = name
		return exec.Command("/nonexistent/tool-hub-search-test-binary")
	}

	pool := NewPool(1, WithLogger(logging.Discard()), WithTimeout(5*time.Second))
	defer pool.Close()

	_, err := pool.GetTools(context.Background(), "broken", &config.ServerConfig{Command: "node", Args: []string{"server.js"}})
	if err == nil {
		t.Fatal("Expected spawn failure")
	}
	if called != "node" {
		t.Errorf("Expected execCommand to receive %q, got %q", "node", called)
	}
	if pool.Len() != 0 {
		t.Errorf("Failed spawn should not be pooled")
	}
}

func TestCommandTransportEmptyCommand(t *testing.T) {
	if _, err := commandTransport("empty", &config.ServerConfig{}); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestRenderResult(t *testing.T) {
	tests := []struct {
		name string
		res  *mcp.CallToolResult
		want string
	}{
		{"nil", nil, ""},
		{
			"text blocks",
			&mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "a"}, &mcp.TextContent{Text: "b"}}},
			"a\nb",
		},
		{
			"structured",
			&mcp.CallToolResult{StructuredContent: map[string]any{"ok": true}},
			"{\n  \"ok\": true\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderResult(tt.res)
			if err != nil {
				t.Fatalf("renderResult failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetNpmPackageFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.ServerConfig
		expected string
	}{
		{
			name:     "npx with package",
			cfg:      &config.ServerConfig{Command: "npx", Args: []string{"-y", "@acme/jira-mcp"}},
			expected: "@acme/jira-mcp",
		},
		{
			name:     "npx with flags before package",
			cfg:      &config.ServerConfig{Command: "npx", Args: []string{"--yes", "-y", "package-name"}},
			expected: "package-name",
		},
		{
			name:     "non-npx command",
			cfg:      &config.ServerConfig{Command: "node", Args: []string{"script.js"}},
			expected: "",
		},
		{
			name:     "npx with no package",
			cfg:      &config.ServerConfig{Command: "npx", Args: []string{"-y"}},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getNpmPackageFromConfig(tt.cfg); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
