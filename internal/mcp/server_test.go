package mcp

import (
	"context"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/tools"
)

type fixedFinder []catalog.Candidate

func (f fixedFinder) Resolve(context.Context, string) []catalog.Candidate { return f }

type recordingGate struct{ id string }

func (g *recordingGate) Activate(_ context.Context, id string, _ time.Duration) bool {
	g.id = id
	return true
}

func newTestClient(t *testing.T, reg *tools.Registry) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewInProcessClient(NewServer(reg, "test"))
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "test", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return c
}

func callTool(t *testing.T, c *mcpclient.Client, name string, args map[string]any) *mcpgo.CallToolResult {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("expected content")
	}
	text, ok := mcpgo.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content, got: %T", res.Content[0])
	}
	return text.Text
}

func TestServer_ListsRegistryTools(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.NewEANLookupTool(fixedFinder(nil), nil, nil))
	reg.Register(tools.NewHumanHandoffTool(&recordingGate{}, time.Hour, nil))
	c := newTestClient(t, reg)

	list, err := c.ListTools(context.Background(), mcpgo.ListToolsRequest{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(list.Tools) != 2 {
		t.Fatalf("expected 2 tools, got: %d", len(list.Tools))
	}
	if list.Tools[0].Name != "ean_lookup" || list.Tools[1].Name != "especialista_humano" {
		t.Fatalf("unexpected tools: %s, %s", list.Tools[0].Name, list.Tools[1].Name)
	}
}

func TestServer_CallTool(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.NewEANLookupTool(fixedFinder{{Identifier: "789", DisplayName: "CAFE 500G"}}, nil, nil))
	c := newTestClient(t, reg)

	res := callTool(t, c, "ean_lookup", map[string]any{"query": "cafe"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if got := resultText(t, res); got != "EANS_ENCONTRADOS:\n1) 789 - CAFE 500G" {
		t.Fatalf("unexpected text: %q", got)
	}

	res = callTool(t, c, "ean_lookup", map[string]any{})
	if !res.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestServer_ConversationArgument(t *testing.T) {
	gate := &recordingGate{}
	reg := tools.NewRegistry()
	reg.Register(tools.NewHumanHandoffTool(gate, time.Hour, nil))
	c := newTestClient(t, reg)

	callTool(t, c, "especialista_humano", map[string]any{"conversation_id": "558500001111@c.us"})
	if gate.id != "558500001111" {
		t.Fatalf("expected conversation from arguments, got: %q", gate.id)
	}
}
