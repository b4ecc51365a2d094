package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

const maxLookupProducts = 50

// BatchResolver resolves mentions concurrently (see catalog.Dispatcher).
type BatchResolver interface {
	Resolve(ctx context.Context, mentions []string) []catalog.ResolvedProduct
}

// ProductsHandler serves the product resolution endpoints.
type ProductsHandler struct {
	batch   BatchResolver
	finder  catalog.CandidateFinder
	ranker  catalog.Ranker
	fetcher catalog.AvailabilityFetcher
	token   string
}

func NewProductsHandler(batch BatchResolver, finder catalog.CandidateFinder, ranker catalog.Ranker, fetcher catalog.AvailabilityFetcher, token string) *ProductsHandler {
	return &ProductsHandler{batch: batch, finder: finder, ranker: ranker, fetcher: fetcher, token: token}
}

// RegisterRoutes registers all product routes on the given mux.
func (h *ProductsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/products/lookup", requireToken(h.token, h.handleLookup))
	mux.HandleFunc("GET /v1/products/candidates", requireToken(h.token, h.handleCandidates))
	mux.HandleFunc("GET /v1/products/{ean}/availability", requireToken(h.token, h.handleAvailability))
}

type lookupRequest struct {
	Products []string `json:"products"`
}

type lookupResponse struct {
	Results []catalog.ResolvedProduct `json:"results"`
	Text    string                    `json:"text"`
}

func (h *ProductsHandler) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	mentions := make([]string, 0, len(req.Products))
	for _, p := range req.Products {
		if p = strings.TrimSpace(p); p != "" {
			mentions = append(mentions, p)
		}
	}
	if len(mentions) == 0 {
		writeError(w, http.StatusBadRequest, "products is required")
		return
	}
	if len(mentions) > maxLookupProducts {
		writeError(w, http.StatusBadRequest, "too many products")
		return
	}

	results := h.batch.Resolve(r.Context(), mentions)
	WriteJSON(w, http.StatusOK, lookupResponse{Results: results, Text: catalog.FormatBatch(results)})
}

func (h *ProductsHandler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	ranked := h.ranker.Rank(q, h.finder.Resolve(r.Context(), q))
	if ranked == nil {
		ranked = []catalog.ScoredCandidate{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"query": q, "candidates": ranked})
}

func (h *ProductsHandler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ean := r.PathValue("ean")
	records, err := h.fetcher.Fetch(r.Context(), ean)
	switch {
	case errors.Is(err, catalog.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, catalog.ErrNoCatalogURL):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if records == nil {
		records = []catalog.AvailabilityRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ean": catalog.DigitsOnly(ean), "records": records})
}
