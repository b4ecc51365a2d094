package catalog

import "fmt"

// Failure reasons reported on a ResolvedProduct.
const (
	FailureNotFound   = "not found"
	FailureOutOfStock = "out of stock"
	FailureCancelled  = "cancelled"
	FailureInternal   = "internal error"
)

// Candidate is a catalog identifier proposed for a free-text mention.
type Candidate struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name"`
}

// ScoredCandidate is a Candidate with its ranking score.
type ScoredCandidate struct {
	Candidate
	Score float64 `json:"score"`
}

// AvailabilityRecord is one normalized result of a live stock/price lookup.
// Everything the catalog sent beyond these fields is dropped.
type AvailabilityRecord struct {
	Identifier  string  `json:"identifier"`
	DisplayName string  `json:"display_name,omitempty"`
	PriceMinor  int64   `json:"price_minor"` // centavos
	HasPrice    bool    `json:"has_price"`
	Quantity    float64 `json:"quantity"`
	HasQuantity bool    `json:"-"`
	Available   bool    `json:"available"`
	Category    string  `json:"category,omitempty"`
}

// ResolvedProduct is the final result for one mention. Exactly one of
// (DisplayName, PriceMinor) or FailureReason is meaningful. Identifier is the
// catalog EAN that was resolved, never the internal stock id. HasPrice is false
// when the product is available but the catalog quoted no price.
type ResolvedProduct struct {
	Mention       string `json:"mention"`
	DisplayName   string `json:"display_name,omitempty"`
	Identifier    string `json:"identifier,omitempty"`
	PriceMinor    int64  `json:"price_minor"`
	HasPrice      bool   `json:"has_price"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// OK reports whether the mention was resolved to an available product.
func (r ResolvedProduct) OK() bool {
	return r.FailureReason == ""
}

// FormatPrice renders minor units as "R$12.34".
func FormatPrice(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%sR$%d.%02d", sign, minor/100, minor%100)
}
