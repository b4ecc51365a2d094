package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/mercadoclaw/internal/sessions"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
)

// HandoffReply is what the agent receives after a handoff.
const HandoffReply = "TRANSBORDO_HUMANO: Transferindo para um vendedor finalizar o pedido."

// CooldownActivator pauses automation for a conversation (see bus.CooldownGate).
type CooldownActivator interface {
	Activate(ctx context.Context, conversationID string, ttl time.Duration) bool
}

// HumanHandoffTool implements especialista_humano: hand the conversation to
// a human and pause automated replies for the takeover window.
type HumanHandoffTool struct {
	gate   CooldownActivator
	ttl    time.Duration
	events store.EventSink
}

func NewHumanHandoffTool(gate CooldownActivator, ttl time.Duration, events store.EventSink) *HumanHandoffTool {
	return &HumanHandoffTool{gate: gate, ttl: ttl, events: events}
}

func (t *HumanHandoffTool) Name() string { return "especialista_humano" }

func (t *HumanHandoffTool) Description() string {
	return "Transfere a conversa para um atendente humano quando o pedido foge do escopo, o cliente pede um humano ou todas as informações do pedido já foram coletadas."
}

func (t *HumanHandoffTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"consulta": map[string]interface{}{
				"type":        "string",
				"description": "Resumo do pedido ou motivo da transferência.",
			},
			"telefone_cliente": map[string]interface{}{
				"type":        "string",
				"description": "Telefone do cliente. Ignorado quando a conversa já é conhecida.",
			},
		},
	}
}

func (t *HumanHandoffTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	reason, _ := args["consulta"].(string)

	raw := ConversationIDFromCtx(ctx)
	if raw == "" {
		raw, _ = args["telefone_cliente"].(string)
	}

	res := NewResult(HandoffReply)
	res.Handoff = true

	id, err := sessions.NormalizeConversationID(raw)
	if err != nil {
		// Without a conversation there is nothing to pause; the agent still
		// tells the customer a human will take over.
		slog.Warn("tools.handoff_without_conversation", "reason", reason)
		return res
	}

	if t.gate.Activate(ctx, id, t.ttl) {
		slog.Info("tools.handoff", "conversation", id, "ttl", t.ttl)
	} else {
		slog.Warn("tools.handoff_cooldown_not_set", "conversation", id)
	}
	recordEvent(WithConversationID(ctx, id), t.events, store.EventHumanHandoff, map[string]any{"reason": reason})
	return res
}
