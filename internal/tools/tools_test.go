package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
)

type fixedFinder []catalog.Candidate

func (f fixedFinder) Resolve(context.Context, string) []catalog.Candidate { return f }

type fixedFetcher struct {
	records []catalog.AvailabilityRecord
	err     error
}

func (f fixedFetcher) Fetch(context.Context, string) ([]catalog.AvailabilityRecord, error) {
	return f.records, f.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []store.Event
}

func (s *recordingSink) Record(_ context.Context, ev store.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type fakeGate struct {
	id  string
	ttl time.Duration
	ok  bool
}

func (g *fakeGate) Activate(_ context.Context, id string, ttl time.Duration) bool {
	g.id, g.ttl = id, ttl
	return g.ok
}

type fakeBatch struct{ got []string }

func (b *fakeBatch) Resolve(_ context.Context, mentions []string) []catalog.ResolvedProduct {
	b.got = mentions
	out := make([]catalog.ResolvedProduct, len(mentions))
	for i, m := range mentions {
		out[i] = catalog.ResolvedProduct{Mention: m, FailureReason: catalog.FailureNotFound}
	}
	return out
}

func TestRegistry_ExecuteUnknownAndPanic(t *testing.T) {
	r := NewRegistry()
	if res := r.Execute(context.Background(), "nope", nil); !res.IsError {
		t.Fatal("expected error for unknown tool")
	}

	r.Register(NewStockPriceTool(nil))
	res := r.Execute(context.Background(), "estoque_preco", map[string]interface{}{"ean": "1"})
	if !res.IsError {
		t.Fatal("expected panic to surface as an error result")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHumanHandoffTool(&fakeGate{}, time.Hour, nil))
	r.Register(NewEANLookupTool(fixedFinder(nil), nil, nil))
	r.Register(NewBatchLookupTool(&fakeBatch{}, nil))

	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	if got := strings.Join(names, ","); got != "busca_lote_produtos,ean_lookup,especialista_humano" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestEANLookup(t *testing.T) {
	sink := &recordingSink{}
	tool := NewEANLookupTool(fixedFinder{
		{Identifier: "1", DisplayName: "ARROZ INTEGRAL 1KG"},
		{Identifier: "2", DisplayName: "ARROZ TIPO 1 5KG"},
	}, catalog.NewScorer(catalog.DefaultPreferences()), sink)

	ctx := WithConversationID(context.Background(), "5585")
	res := tool.Execute(ctx, map[string]interface{}{"query": "arroz"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	want := "EANS_ENCONTRADOS:\n1) 2 - ARROZ TIPO 1 5KG\n2) 1 - ARROZ INTEGRAL 1KG"
	if res.ForLLM != want {
		t.Fatalf("expected:\n%s\ngot:\n%s", want, res.ForLLM)
	}
	if len(sink.events) != 1 || sink.events[0].SessionID != "5585" || sink.events[0].Type != store.EventProductSearch {
		t.Fatalf("unexpected events: %+v", sink.events)
	}

	if res := tool.Execute(ctx, map[string]interface{}{}); !res.IsError {
		t.Fatal("expected error for missing query")
	}
}

func TestStockPrice_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{catalog.ErrInvalidIdentifier, "EAN inválido"},
		{catalog.ErrNoCatalogURL, "não configurada"},
		{errors.New("catalog returned 500"), "Erro ao consultar"},
	}
	for _, tt := range tests {
		res := NewStockPriceTool(fixedFetcher{err: tt.err}).Execute(context.Background(), map[string]interface{}{"ean": "x"})
		if !res.IsError || !strings.Contains(res.ForLLM, tt.want) {
			t.Errorf("err %v: expected error containing %q, got: %+v", tt.err, tt.want, res)
		}
		if !errors.Is(res.Err, tt.err) {
			t.Errorf("expected wrapped error %v, got: %v", tt.err, res.Err)
		}
	}
}

func TestStockPrice_Records(t *testing.T) {
	res := NewStockPriceTool(fixedFetcher{records: []catalog.AvailabilityRecord{
		{Identifier: "789", DisplayName: "CAFE 500G", PriceMinor: 1599, HasPrice: true, Available: true},
	}}).Execute(context.Background(), map[string]interface{}{"ean": float64(789)})
	if res.ForLLM != "• CAFE 500G (EAN 789) - R$15.99" {
		t.Fatalf("unexpected output: %q", res.ForLLM)
	}
}

func TestBatchLookup_Arguments(t *testing.T) {
	batch := &fakeBatch{}
	tool := NewBatchLookupTool(batch, nil)

	res := tool.Execute(context.Background(), map[string]interface{}{"produtos": []interface{}{" arroz ", "", "feijao"}})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if strings.Join(batch.got, "|") != "arroz|feijao" {
		t.Fatalf("unexpected mentions: %v", batch.got)
	}
	if res.ForLLM != "NÃO_ENCONTRADOS: arroz, feijao" {
		t.Fatalf("unexpected output: %q", res.ForLLM)
	}

	if res := tool.Execute(context.Background(), map[string]interface{}{"produtos": "leite, ovos"}); res.IsError {
		t.Fatalf("expected comma-separated string to be accepted, got: %s", res.ForLLM)
	}
	if res := tool.Execute(context.Background(), map[string]interface{}{"produtos": []interface{}{1.0}}); !res.IsError {
		t.Fatal("expected error for non-string items")
	}
	if res := tool.Execute(context.Background(), map[string]interface{}{}); !res.IsError {
		t.Fatal("expected error for missing produtos")
	}
}

func TestHumanHandoff(t *testing.T) {
	gate := &fakeGate{ok: true}
	sink := &recordingSink{}
	tool := NewHumanHandoffTool(gate, 8*time.Hour, sink)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"consulta":         "fechar pedido",
		"telefone_cliente": "+55 (85) 9999-0000",
	})
	if res.ForLLM != HandoffReply || !res.Handoff {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gate.id != "558599990000" || gate.ttl != 8*time.Hour {
		t.Fatalf("unexpected activation: %q %v", gate.id, gate.ttl)
	}
	if len(sink.events) != 1 || sink.events[0].Type != store.EventHumanHandoff || sink.events[0].Metadata["reason"] != "fechar pedido" {
		t.Fatalf("unexpected events: %+v", sink.events)
	}
}

func TestHumanHandoff_PrefersContextConversation(t *testing.T) {
	gate := &fakeGate{ok: true}
	tool := NewHumanHandoffTool(gate, time.Hour, nil)
	ctx := WithConversationID(context.Background(), "558511112222@c.us")

	tool.Execute(ctx, map[string]interface{}{"telefone_cliente": "5500000000"})
	if gate.id != "558511112222" {
		t.Fatalf("expected context conversation, got: %q", gate.id)
	}
}

func TestHumanHandoff_NoConversation(t *testing.T) {
	gate := &fakeGate{ok: true}
	res := NewHumanHandoffTool(gate, time.Hour, nil).Execute(context.Background(), map[string]interface{}{})
	if res.IsError || gate.id != "" {
		t.Fatalf("expected reply without activation, got: %+v (gate %q)", res, gate.id)
	}
}
