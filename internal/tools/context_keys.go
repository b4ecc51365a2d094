package tools

import "context"

// Tool execution context keys. The HTTP and MCP front ends inject the
// conversation a call belongs to; tools read it instead of trusting
// arguments the agent may have made up.

type toolContextKey string

const (
	ctxChannel        toolContextKey = "tool_channel"
	ctxConversationID toolContextKey = "tool_conversation_id"
)

func WithToolChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxChannel, channel)
}

func ToolChannelFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChannel).(string)
	return v
}

func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxConversationID, id)
}

func ConversationIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxConversationID).(string)
	return v
}
