package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

// StockPriceTool implements estoque_preco: live price and availability for one EAN.
type StockPriceTool struct {
	fetcher catalog.AvailabilityFetcher
}

func NewStockPriceTool(fetcher catalog.AvailabilityFetcher) *StockPriceTool {
	return &StockPriceTool{fetcher: fetcher}
}

func (t *StockPriceTool) Name() string { return "estoque_preco" }

func (t *StockPriceTool) Description() string {
	return "Consulta preço e disponibilidade de um produto pelo EAN (apenas dígitos). Só retorna itens disponíveis."
}

func (t *StockPriceTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"ean": map[string]interface{}{
				"type":        "string",
				"description": "Código EAN do produto.",
			},
		},
		"required": []string{"ean"},
	}
}

func (t *StockPriceTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	var ean string
	switch v := args["ean"].(type) {
	case string:
		ean = v
	case float64:
		ean = fmt.Sprintf("%.0f", v)
	}

	records, err := t.fetcher.Fetch(ctx, ean)
	switch {
	case errors.Is(err, catalog.ErrInvalidIdentifier):
		return ErrorResult("EAN inválido. Informe apenas números.").WithError(err)
	case errors.Is(err, catalog.ErrNoCatalogURL):
		return ErrorResult("Consulta de estoque não configurada.").WithError(err)
	case err != nil:
		slog.Warn("tools.estoque_preco_failed", "ean", ean, "error", err)
		return ErrorResult(fmt.Sprintf("Erro ao consultar EAN: %v", err)).WithError(err)
	}
	return NewResult(catalog.FormatRecords(records))
}
