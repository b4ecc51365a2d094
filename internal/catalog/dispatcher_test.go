package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// mapFinder returns fixed candidates per mention.
type mapFinder map[string][]Candidate

func (m mapFinder) Resolve(_ context.Context, mention string) []Candidate {
	return m[mention]
}

// fakeFetcher serves canned availability and counts calls per identifier.
type fakeFetcher struct {
	mu      sync.Mutex
	records map[string][]AvailabilityRecord
	errs    map[string]error
	calls   []string
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) ([]AvailabilityRecord, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.records[id], nil
}

func TestDispatcher_BatchFoundAndNotFound(t *testing.T) {
	finder := mapFinder{
		"rice": {{Identifier: "100", DisplayName: "RICE 5KG"}},
	}
	fetcher := &fakeFetcher{records: map[string][]AvailabilityRecord{
		"100": {{Identifier: "100", DisplayName: "RICE 5KG", PriceMinor: 2590, HasPrice: true, Available: true}},
	}}
	d := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{})

	got := d.Resolve(context.Background(), []string{"rice", "unknown-item-xyz"})
	want := []ResolvedProduct{
		{Mention: "rice", DisplayName: "RICE 5KG", Identifier: "100", PriceMinor: 2590, HasPrice: true},
		{Mention: "unknown-item-xyz", FailureReason: FailureNotFound},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_RetriesTopThree(t *testing.T) {
	finder := mapFinder{"sugar": {
		{Identifier: "1", DisplayName: "SUGAR A"},
		{Identifier: "2", DisplayName: "SUGAR BB"},
		{Identifier: "3", DisplayName: "SUGAR CCC"},
		{Identifier: "4", DisplayName: "SUGAR DDDD"},
	}}
	fetcher := &fakeFetcher{
		records: map[string][]AvailabilityRecord{
			"3": {{Identifier: "3", DisplayName: "SUGAR CCC 1KG", PriceMinor: 499, HasPrice: true, Available: true}},
			"4": {{Identifier: "4", DisplayName: "never reached", Available: true}},
		},
		errs: map[string]error{"2": errors.New("timeout")},
	}
	d := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{})

	got := d.Resolve(context.Background(), []string{"sugar"})
	if got[0].Identifier != "3" || got[0].DisplayName != "SUGAR CCC 1KG" || got[0].PriceMinor != 499 {
		t.Fatalf("expected third candidate, got: %+v", got[0])
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, fetcher.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_OutOfStockAfterMaxAttempts(t *testing.T) {
	finder := mapFinder{"milk": {
		{Identifier: "1", DisplayName: "MILK"},
		{Identifier: "2", DisplayName: "MILK 2"},
		{Identifier: "3", DisplayName: "MILK 33"},
		{Identifier: "4", DisplayName: "MILK 444"},
	}}
	fetcher := &fakeFetcher{records: map[string][]AvailabilityRecord{
		"4": {{Identifier: "4", Available: true}},
	}}
	d := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{})

	got := d.Resolve(context.Background(), []string{"milk"})
	if got[0].FailureReason != FailureOutOfStock {
		t.Fatalf("expected out of stock, got: %+v", got[0])
	}
	if len(fetcher.calls) != 3 {
		t.Fatalf("expected 3 calls, got: %v", fetcher.calls)
	}
}

func TestDispatcher_FallsBackToCandidateName(t *testing.T) {
	finder := mapFinder{"egg": {{Identifier: "9", DisplayName: "EGGS 12UN"}}}
	fetcher := &fakeFetcher{records: map[string][]AvailabilityRecord{
		"9": {{Identifier: "9", PriceMinor: 1200, Available: true}},
	}}
	got := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{}).ResolveOne(context.Background(), "egg")
	if got.DisplayName != "EGGS 12UN" {
		t.Fatalf("expected candidate display name, got: %+v", got)
	}
}

func TestDispatcher_ReportsCandidateEAN(t *testing.T) {
	finder := mapFinder{"cafe": {{Identifier: "7891000100103", DisplayName: "CAFE PILAO 500G"}}}
	fetcher := &fakeFetcher{records: map[string][]AvailabilityRecord{
		// stock rows carry the internal product id, not the barcode
		"7891000100103": {{Identifier: "42", DisplayName: "CAFE PILAO 500G", PriceMinor: 1899, HasPrice: true, Available: true}},
	}}
	got := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{}).ResolveOne(context.Background(), "cafe")
	if got.Identifier != "7891000100103" {
		t.Fatalf("expected candidate EAN, got: %+v", got)
	}
}

func TestDispatcher_AvailableWithoutPrice(t *testing.T) {
	finder := mapFinder{"alface": {{Identifier: "2000", DisplayName: "ALFACE CRESPA"}}}
	fetcher := &fakeFetcher{records: map[string][]AvailabilityRecord{
		"2000": {{Identifier: "2000", DisplayName: "ALFACE CRESPA", Quantity: -3, HasQuantity: true, Available: true, Category: "HORTIFRUTI"}},
	}}
	got := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{}).ResolveOne(context.Background(), "alface")
	if !got.OK() || got.HasPrice {
		t.Fatalf("expected available product without price, got: %+v", got)
	}

	text := FormatBatch([]ResolvedProduct{got})
	if strings.Contains(text, "R$0.00") || !strings.Contains(text, "ALFACE CRESPA - preço indisponível") {
		t.Fatalf("unexpected text: %q", text)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"price_minor":0`) || !strings.Contains(string(raw), `"has_price":false`) {
		t.Fatalf("price fields missing from JSON: %s", raw)
	}
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	finder := mapFinder{}
	records := map[string][]AvailabilityRecord{}
	var mentions []string
	for i := 0; i < 20; i++ {
		m := strings.Repeat("m", i+1)
		id := strings.Repeat("1", i+1)
		finder[m] = []Candidate{{Identifier: id, DisplayName: m}}
		records[id] = []AvailabilityRecord{{Identifier: id, Available: true}}
		mentions = append(mentions, m)
	}
	fetcher := &fakeFetcher{records: records, delay: 10 * time.Millisecond}
	d := NewDispatcher(finder, NewScorer(nil), fetcher, DispatcherOptions{Workers: 3})

	got := d.Resolve(context.Background(), mentions)
	for i, r := range got {
		if r.Mention != mentions[i] || !r.OK() {
			t.Fatalf("result %d out of order or failed: %+v", i, r)
		}
	}
	if p := fetcher.peak.Load(); p > 3 {
		t.Fatalf("expected at most 3 concurrent fetches, got: %d", p)
	}
}

type panicFinder struct{}

func (panicFinder) Resolve(_ context.Context, mention string) []Candidate {
	if mention == "boom" {
		panic("bad backend")
	}
	return []Candidate{{Identifier: "1", DisplayName: mention}}
}

func TestDispatcher_PanicIsolated(t *testing.T) {
	fetcher := &fakeFetcher{records: map[string][]AvailabilityRecord{"1": {{Identifier: "1", Available: true}}}}
	d := NewDispatcher(panicFinder{}, NewScorer(nil), fetcher, DispatcherOptions{})

	got := d.Resolve(context.Background(), []string{"ok", "boom"})
	if !got[0].OK() {
		t.Fatalf("expected first mention to succeed, got: %+v", got[0])
	}
	if got[1].FailureReason != FailureInternal {
		t.Fatalf("expected internal failure, got: %+v", got[1])
	}
}

func TestDispatcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{}
	d := NewDispatcher(mapFinder{"x": {{Identifier: "1"}}}, NewScorer(nil), fetcher, DispatcherOptions{})

	got := d.Resolve(ctx, []string{"x"})
	if got[0].FailureReason != FailureCancelled {
		t.Fatalf("expected cancelled, got: %+v", got[0])
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("expected no fetch, got: %v", fetcher.calls)
	}
}

func TestFormatBatch(t *testing.T) {
	got := FormatBatch([]ResolvedProduct{
		{Mention: "arroz", DisplayName: "ARROZ TIPO 1", PriceMinor: 2590, HasPrice: true},
		{Mention: "xyz", FailureReason: FailureNotFound},
		{Mention: "leite", FailureReason: FailureOutOfStock},
	})
	want := "PRODUTOS_ENCONTRADOS:\n• ARROZ TIPO 1 - R$25.90\n\nNÃO_ENCONTRADOS: xyz, leite"
	if got != want {
		t.Fatalf("expected:\n%s\ngot:\n%s", want, got)
	}
	if got := FormatBatch(nil); got != "Nenhum produto encontrado." {
		t.Fatalf("unexpected empty output: %q", got)
	}
}
