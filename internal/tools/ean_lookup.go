package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
)

// EANLookupTool implements ean_lookup: free-text product name to EAN candidates.
type EANLookupTool struct {
	finder catalog.CandidateFinder
	ranker catalog.Ranker
	events store.EventSink // nil disables analytics
}

func NewEANLookupTool(finder catalog.CandidateFinder, ranker catalog.Ranker, events store.EventSink) *EANLookupTool {
	return &EANLookupTool{finder: finder, ranker: ranker, events: events}
}

func (t *EANLookupTool) Name() string { return "ean_lookup" }

func (t *EANLookupTool) Description() string {
	return "Busca EANs de produtos do catálogo a partir do nome ou descrição. Retorna até 15 candidatos no formato '1) EAN - NOME'."
}

func (t *EANLookupTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Nome ou descrição do produto.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *EANLookupTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrorResult("query is required")
	}

	cands := t.finder.Resolve(ctx, query)
	recordEvent(ctx, t.events, store.EventProductSearch, map[string]any{
		"query":   query,
		"results": len(cands),
	})
	if len(cands) == 0 {
		return NewResult(fmt.Sprintf("Nenhum produto encontrado para: %s", query))
	}

	if t.ranker != nil {
		ranked := t.ranker.Rank(query, cands)
		cands = make([]catalog.Candidate, len(ranked))
		for i, sc := range ranked {
			cands[i] = sc.Candidate
		}
	}
	return NewResult(catalog.FormatCandidates(cands))
}

// recordEvent writes an analytics event for the conversation in ctx.
// Failures are logged and never surface to the agent.
func recordEvent(ctx context.Context, sink store.EventSink, eventType string, meta map[string]any) {
	if sink == nil {
		return
	}
	ev := store.Event{SessionID: ConversationIDFromCtx(ctx), Type: eventType, Metadata: meta}
	if err := sink.Record(ctx, ev); err != nil {
		slog.Warn("tools.analytics_failed", "event", eventType, "error", err)
	}
}
