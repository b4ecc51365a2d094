package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
)

const maxBatchProducts = 50

// BatchResolver resolves many mentions at once (see catalog.Dispatcher).
type BatchResolver interface {
	Resolve(ctx context.Context, mentions []string) []catalog.ResolvedProduct
}

// BatchLookupTool implements busca_lote_produtos.
type BatchLookupTool struct {
	resolver BatchResolver
	events   store.EventSink
}

func NewBatchLookupTool(resolver BatchResolver, events store.EventSink) *BatchLookupTool {
	return &BatchLookupTool{resolver: resolver, events: events}
}

func (t *BatchLookupTool) Name() string { return "busca_lote_produtos" }

func (t *BatchLookupTool) Description() string {
	return "Busca vários produtos em paralelo e retorna nome e preço dos disponíveis e a lista dos não encontrados. Use quando o cliente pedir mais de um item."
}

func (t *BatchLookupTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"produtos": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Lista de nomes de produtos.",
				"maxItems":    float64(maxBatchProducts),
			},
		},
		"required": []string{"produtos"},
	}
}

func (t *BatchLookupTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	mentions, err := stringList(args["produtos"])
	if err != nil {
		return ErrorResult(err.Error())
	}
	if len(mentions) == 0 {
		return ErrorResult("produtos is required")
	}
	if len(mentions) > maxBatchProducts {
		return ErrorResult(fmt.Sprintf("at most %d produtos per call", maxBatchProducts))
	}

	results := t.resolver.Resolve(ctx, mentions)

	found := 0
	for _, r := range results {
		if r.OK() {
			found++
		}
	}
	recordEvent(ctx, t.events, store.EventProductSearch, map[string]any{
		"batch":    len(mentions),
		"found":    found,
		"products": mentions,
	})
	return NewResult(catalog.FormatBatch(results))
}

// stringList accepts a JSON array of strings or a comma-separated string.
func stringList(v interface{}) ([]string, error) {
	var out []string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		for _, s := range strings.Split(x, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range x {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("produtos must be a list of strings")
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, fmt.Errorf("produtos must be a list of strings")
	}
	return out, nil
}
