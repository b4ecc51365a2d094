package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

type stubFinder map[string][]catalog.Candidate

func (f stubFinder) Resolve(_ context.Context, mention string) []catalog.Candidate {
	return f[mention]
}

type stubFetcher struct {
	records map[string][]catalog.AvailabilityRecord
	err     error
}

func (f stubFetcher) Fetch(_ context.Context, id string) ([]catalog.AvailabilityRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if catalog.DigitsOnly(id) == "" {
		return nil, catalog.ErrInvalidIdentifier
	}
	return f.records[id], nil
}

func newProductsMux(fetcher stubFetcher) *http.ServeMux {
	finder := stubFinder{
		"arroz": {
			{Identifier: "7891", DisplayName: "ARROZ INTEGRAL 1KG"},
			{Identifier: "7890", DisplayName: "ARROZ 5KG"},
		},
	}
	scorer := catalog.NewScorer(nil)
	disp := catalog.NewDispatcher(finder, scorer, fetcher, catalog.DispatcherOptions{Workers: 2})
	h := NewProductsHandler(disp, finder, scorer, fetcher, "")
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestProducts_Lookup(t *testing.T) {
	mux := newProductsMux(stubFetcher{records: map[string][]catalog.AvailabilityRecord{
		"7890": {{Identifier: "7890", DisplayName: "ARROZ 5KG", PriceMinor: 2990, HasPrice: true, Quantity: 4, Available: true}},
	}})

	rec := do(t, mux, "POST", "/v1/products/lookup", `{"products":["arroz"," ","pneu"]}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var got lookupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got.Results))
	}
	if got.Results[0].Identifier != "7890" || got.Results[1].FailureReason == "" {
		t.Fatalf("unexpected results: %+v", got.Results)
	}
	if !strings.Contains(got.Text, "ARROZ 5KG - R$29.90") || !strings.Contains(got.Text, "pneu") {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestProducts_LookupValidation(t *testing.T) {
	mux := newProductsMux(stubFetcher{})
	if rec := do(t, mux, "POST", "/v1/products/lookup", `{"products":[]}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty list, got %d", rec.Code)
	}
	if rec := do(t, mux, "POST", "/v1/products/lookup", `{`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}
	many := `{"products":[` + strings.TrimSuffix(strings.Repeat(`"x",`, maxLookupProducts+1), ",") + `]}`
	if rec := do(t, mux, "POST", "/v1/products/lookup", many, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized batch, got %d", rec.Code)
	}
}

func TestProducts_Candidates(t *testing.T) {
	mux := newProductsMux(stubFetcher{})
	rec := do(t, mux, "GET", "/v1/products/candidates?q=arroz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var got struct {
		Candidates []catalog.ScoredCandidate `json:"candidates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range got.Candidates {
		ids = append(ids, c.Identifier)
	}
	if diff := cmp.Diff([]string{"7890", "7891"}, ids); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}

	if rec := do(t, mux, "GET", "/v1/products/candidates", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", rec.Code)
	}
}

func TestProducts_Availability(t *testing.T) {
	mux := newProductsMux(stubFetcher{records: map[string][]catalog.AvailabilityRecord{
		"7890": {{Identifier: "7890", DisplayName: "ARROZ 5KG", PriceMinor: 2990, HasPrice: true, Available: true}},
	}})

	rec := do(t, mux, "GET", "/v1/products/7890/availability", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ean":"7890"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = do(t, mux, "GET", "/v1/products/0000/availability", "", "")
	if !strings.Contains(rec.Body.String(), `"records":[]`) {
		t.Fatalf("expected empty records, got %s", rec.Body.String())
	}

	if rec := do(t, mux, "GET", "/v1/products/abc/availability", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric ean, got %d", rec.Code)
	}
}

func TestProducts_AvailabilityUpstreamError(t *testing.T) {
	mux := newProductsMux(stubFetcher{err: errors.New("catalog returned 502")})
	if rec := do(t, mux, "GET", "/v1/products/7890/availability", "", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	mux = newProductsMux(stubFetcher{err: catalog.ErrNoCatalogURL})
	if rec := do(t, mux, "GET", "/v1/products/7890/availability", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
