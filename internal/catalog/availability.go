package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrInvalidIdentifier is returned when an identifier has no digits.
	ErrInvalidIdentifier = errors.New("catalog: identifier has no digits")
	// ErrNoCatalogURL is returned when no stock base URL is configured.
	ErrNoCatalogURL = errors.New("catalog: stock base URL not configured")
)

// Field names tried, in order, for each normalized attribute. Catalog
// deployments disagree on naming; the first parseable field wins.
// qtd_movimentacao is a movement delta, never a stock level.
var (
	quantityKeys = []string{
		"qtd_produto", "estoque", "qtd", "qtde", "qtd_estoque", "quantidade",
		"quantidade_disponivel", "quantidadeDisponivel", "qtdDisponivel",
		"qtdEstoque", "estoqueAtual", "saldo", "qty", "quantity", "stock", "amount",
	}
	priceKeys = []string{
		"vl_produto", "vl_produto_normal", "preco", "preco_venda", "valor",
		"valor_unitario", "preco_unitario", "atacadoPreco",
	}
	nameKeys       = []string{"produto", "nome", "descricao"}
	identifierKeys = []string{"ean", "cod_barra", "id"}
)

const categoryKey = "classificacao01"

// StockRules decides which categories use the perishable stock rule.
type StockRules struct {
	// PerishableMarkers are upper-case substrings of the category tag.
	PerishableMarkers []string
}

// DefaultStockRules returns the built-in perishable/weighed category markers.
func DefaultStockRules() StockRules {
	return StockRules{PerishableMarkers: []string{
		"FRIGORIFICO", "HORTI", "AÇOUGUE", "ACOUGUE", "LEGUMES", "VERDURAS", "AVES", "CARNES",
	}}
}

// IsPerishable reports whether category matches a perishable marker.
func (r StockRules) IsPerishable(category string) bool {
	cat := strings.ToUpper(category)
	for _, m := range r.PerishableMarkers {
		if m != "" && strings.Contains(cat, strings.ToUpper(m)) {
			return true
		}
	}
	return false
}

// IsAvailable applies the stock rule. Perishable stock is often sold before
// the invoice is entered, so a negative quantity still means "on the shelf".
func (r StockRules) IsAvailable(category string, qty float64, hasQty bool) bool {
	if !hasQty {
		return false
	}
	if r.IsPerishable(category) {
		return qty != 0
	}
	return qty > 0
}

// NormalizeRecord reduces one raw catalog record to an AvailabilityRecord.
// fallbackID is used when the record carries no identifier of its own.
func NormalizeRecord(raw map[string]any, fallbackID string, rules StockRules) AvailabilityRecord {
	rec := AvailabilityRecord{
		Identifier:  firstString(raw, identifierKeys),
		DisplayName: firstString(raw, nameKeys),
		Category:    strings.ToUpper(strings.TrimSpace(stringValue(raw[categoryKey]))),
	}
	if rec.Identifier == "" {
		rec.Identifier = fallbackID
	}

	if qty, ok := firstDecimal(raw, quantityKeys); ok {
		rec.Quantity, rec.HasQuantity = qty, true
	}
	if price, ok := firstDecimal(raw, priceKeys); ok {
		rec.PriceMinor, rec.HasPrice = int64(math.Round(price*100)), true
	}

	if v, present := raw["ativo"]; present && isFalsy(v) {
		rec.Available = false
		return rec
	}
	rec.Available = rules.IsAvailable(rec.Category, rec.Quantity, rec.HasQuantity)
	return rec
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(stringValue(raw[k])); s != "" {
			return s
		}
	}
	return ""
}

func firstDecimal(raw map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		v, present := raw[k]
		if !present {
			continue
		}
		if f, ok := ParseDecimal(v); ok {
			return f, true
		}
	}
	return 0, false
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// isFalsy treats null, false, zero, empty strings and "false"/"n"/"nao" as inactive.
func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case float64:
		return x == 0
	case int:
		return x == 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "f", "n", "nao", "não", "no", "inativo":
			return true
		}
	}
	return false
}

// ParseDecimal reads a catalog numeric value: JSON numbers, "12.5", "12,5",
// "1.234,56", "1,234.56" and an optional "R$" prefix.
func ParseDecimal(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		return parseDecimalString(x)
	}
	return 0, false
}

func parseDecimalString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, false
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		// Whichever separator comes last is the decimal one.
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, false
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AvailabilityOptions configures an AvailabilityClient.
type AvailabilityOptions struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration // default 10s
	RateLimitRPS float64       // 0 disables client-side limiting
	Rules        StockRules
	HTTPClient   *http.Client // overrides Timeout when set
}

// AvailabilityClient fetches live stock and price for catalog identifiers.
type AvailabilityClient struct {
	baseURL string
	token   string
	rules   StockRules
	client  *http.Client
	limiter *rate.Limiter
}

// NewAvailabilityClient creates a client. Missing rules fall back to DefaultStockRules.
func NewAvailabilityClient(opts AvailabilityOptions) *AvailabilityClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if len(opts.Rules.PerishableMarkers) == 0 {
		opts.Rules = DefaultStockRules()
	}
	c := &AvailabilityClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		rules:   opts.Rules,
		client:  opts.HTTPClient,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.RateLimitRPS > 0 {
		burst := int(math.Ceil(opts.RateLimitRPS))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return c
}

// Fetch looks up identifier and returns the records that are available,
// in source order. An empty slice with a nil error means nothing is in stock.
func (c *AvailabilityClient) Fetch(ctx context.Context, identifier string) ([]AvailabilityRecord, error) {
	digits := DigitsOnly(identifier)
	if digits == "" {
		return nil, ErrInvalidIdentifier
	}
	if c.baseURL == "" {
		return nil, ErrNoCatalogURL
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+digits, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	items, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	out := make([]AvailabilityRecord, 0, len(items))
	for _, raw := range items {
		rec := NormalizeRecord(raw, digits, c.rules)
		if rec.Available {
			out = append(out, rec)
		}
	}
	return out, nil
}

// decodeRecords accepts a JSON array of objects or a single object.
// Array items that are not objects are skipped.
func decodeRecords(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch x := v.(type) {
	case map[string]any:
		return []map[string]any{x}, nil
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode response: unexpected JSON %T", v)
	}
}
