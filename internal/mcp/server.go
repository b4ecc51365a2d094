// Package mcp exposes the agent tool registry as an MCP server, over
// stdio for local agents and streamable HTTP for the gateway.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/mercadoclaw/internal/tools"
)

// ConversationHeader carries the conversation id on streamable HTTP calls.
const ConversationHeader = "X-Conversation-Id"

const instructions = `Ferramentas de catálogo de um supermercado.
Use busca_lote_produtos quando o cliente pedir mais de um item, ean_lookup + estoque_preco para um item
específico e especialista_humano para transferir a conversa a um vendedor.`

// NewServer registers every tool of reg on a new MCP server.
func NewServer(reg *tools.Registry, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mercadoclaw",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, t := range reg.List() {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			slog.Warn("mcp.tool.schema_invalid", "tool", t.Name(), "error", err)
			continue
		}
		s.AddTool(mcpgo.NewToolWithRawSchema(t.Name(), t.Description(), schema), handler(reg, t.Name()))
	}
	return s
}

func handler(reg *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args := req.GetArguments()
		if id, _ := args["conversation_id"].(string); id != "" && tools.ConversationIDFromCtx(ctx) == "" {
			ctx = tools.WithConversationID(ctx, id)
		}
		ctx = tools.WithToolChannel(ctx, "mcp")

		res := reg.Execute(ctx, name, args)
		if res.IsError {
			return mcpgo.NewToolResultError(res.ForLLM), nil
		}
		return mcpgo.NewToolResultText(res.ForLLM), nil
	}
}

// HTTPHandler serves s over streamable HTTP. The conversation id header,
// when present, is injected into every tool call.
func HTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id := r.Header.Get(ConversationHeader); id != "" {
				ctx = tools.WithConversationID(ctx, id)
			}
			return ctx
		}),
	)
}

// ServeStdio blocks serving s on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
