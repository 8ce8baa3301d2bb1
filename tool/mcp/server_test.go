package mcp

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/tool"
)

func connect(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	registry, err := tool.NewRegistry(tool.Builtin()...)
	require.NoError(t, err)
	server := NewServer(registry, "test", logging.Discard())

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestListTools(t *testing.T) {
	cs := connect(t)

	res, err := cs.ListTools(context.Background(), &sdkmcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, def := range res.Tools {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{tool.VisaTool, tool.PerDiemTool, tool.FlightTool, tool.ApprovalTool}, names)
}

func TestCallTool(t *testing.T) {
	cs := connect(t)

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      tool.ApprovalTool,
		Arguments: map[string]any{"trip_cost": 600000, "destination_type": "domestic"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	var out tool.Result
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.True(t, out.OK)
	assert.Equal(t, "approval-policy-v1", out.Source)
	assert.Equal(t, "cxo_approval_required", out.Data["approval_status"])
}

func TestCallToolInvalidParams(t *testing.T) {
	cs := connect(t)

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      tool.FlightTool,
		Arguments: map[string]any{"origin": "BLR", "destination": "LHR", "cabin_class": "ultra_luxury"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
