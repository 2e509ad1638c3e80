//go:build integration

package tools_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger creates a logger for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// startSession spins up an in-memory server/client pair with all tools
// registered and returns a connected client session.
func startSession(t *testing.T, ctx context.Context, deps *tools.Dependencies, cfg *config.Config) *mcp.ClientSession {
	t.Helper()

	impl := &mcp.Implementation{
		Name:    "test-recall",
		Version: "0.0.1-test",
	}
	server := mcp.NewServer(impl, nil)
	tools.RegisterAll(server, deps, cfg)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, serverTransport)
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { session.Close() })

	return session
}

func callText(t *testing.T, ctx context.Context, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	textContent, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be TextContent")
	return textContent.Text, result.IsError
}

func TestPingTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := &tools.Dependencies{Logger: testLogger()}
	cfg := &config.Config{}
	session := startSession(t, ctx, deps, cfg)

	t.Run("tools/list returns all tools", func(t *testing.T) {
		result, err := session.ListTools(ctx, nil)
		require.NoError(t, err)
		require.Len(t, result.Tools, 8)

		toolNames := make([]string, len(result.Tools))
		for i, tool := range result.Tools {
			toolNames[i] = tool.Name
		}
		assert.Contains(t, toolNames, "ping")
		assert.Contains(t, toolNames, "record_turn")
		assert.Contains(t, toolNames, "search")
		assert.Contains(t, toolNames, "assemble_context")
		assert.Contains(t, toolNames, "consolidate")
		assert.Contains(t, toolNames, "maintain")
		assert.Contains(t, toolNames, "stats")
		assert.Contains(t, toolNames, "reembed")
	})

	t.Run("ping returns pong", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "ping", map[string]any{})
		assert.False(t, isError)
		assert.Equal(t, "pong", text)
	})

	t.Run("ping echoes input", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "ping", map[string]any{"echo": "hello world"})
		assert.False(t, isError)
		assert.Equal(t, "hello world", text)
	})
}

func TestToolInputValidation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Validation failures short-circuit before any service is touched,
	// so nil services are safe here.
	deps := &tools.Dependencies{Logger: testLogger()}
	cfg := &config.Config{DefaultOwnerKind: "conversation", DefaultOwnerID: "conv-test"}
	session := startSession(t, ctx, deps, cfg)

	t.Run("record_turn rejects empty content", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "record_turn", map[string]any{"role": "user", "content": ""})
		assert.True(t, isError)
		assert.Contains(t, text, "Content is required")
	})

	t.Run("record_turn rejects unknown role", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "record_turn", map[string]any{"role": "system", "content": "hi"})
		assert.True(t, isError)
		assert.Contains(t, text, "Invalid role")
	})

	t.Run("search rejects empty query", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "search", map[string]any{"query": ""})
		assert.True(t, isError)
		assert.Contains(t, text, "Query cannot be empty")
	})

	t.Run("search rejects oversized limit", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "search", map[string]any{"query": "go", "limit": 500})
		assert.True(t, isError)
		assert.Contains(t, text, "Limit must be 1-100")
	})

	t.Run("search rejects unknown kind", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "search", map[string]any{"query": "go", "kind": "rumor"})
		assert.True(t, isError)
		assert.Contains(t, text, "Invalid kind")
	})

	t.Run("assemble_context rejects negative budget", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "assemble_context", map[string]any{"query": "plans", "token_budget": -5})
		assert.True(t, isError)
		assert.Contains(t, text, "Token budget cannot be negative")
	})

	t.Run("maintain rejects unknown action", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "maintain", map[string]any{"action": "defrag"})
		assert.True(t, isError)
		assert.Contains(t, text, "Invalid action")
	})

	t.Run("reembed status requires job id", func(t *testing.T) {
		text, isError := callText(t, ctx, session, "reembed", map[string]any{"action": "status"})
		assert.True(t, isError)
		assert.Contains(t, text, "Job ID is required")
	})
}

func TestOwnerResolution(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := &tools.Dependencies{Logger: testLogger()}

	t.Run("missing owner id is rejected", func(t *testing.T) {
		cfg := &config.Config{DefaultOwnerKind: "conversation"}
		session := startSession(t, ctx, deps, cfg)

		text, isError := callText(t, ctx, session, "search", map[string]any{"query": "go"})
		assert.True(t, isError)
		assert.Contains(t, text, "Owner ID is required")
	})

	t.Run("unknown owner kind is rejected", func(t *testing.T) {
		cfg := &config.Config{DefaultOwnerKind: "conversation", DefaultOwnerID: "conv-1"}
		session := startSession(t, ctx, deps, cfg)

		text, isError := callText(t, ctx, session, "search", map[string]any{"query": "go", "owner_kind": "team", "owner_id": "conv-1"})
		assert.True(t, isError)
		assert.Contains(t, text, "Invalid owner kind")
	})
}
