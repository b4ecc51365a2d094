package catalog

import (
	"fmt"
	"strings"
)

const noPriceText = "preço indisponível"

// FormatBatch renders batch results as the compact text the agent reads:
//
//	PRODUTOS_ENCONTRADOS:
//	• Arroz Tipo 1 5kg - R$25.90
//
//	NÃO_ENCONTRADOS: foo, bar
func FormatBatch(results []ResolvedProduct) string {
	var found, missing []string
	for _, r := range results {
		if r.OK() {
			found = append(found, fmt.Sprintf("• %s - %s", r.DisplayName, r.PriceText()))
		} else {
			missing = append(missing, r.Mention)
		}
	}

	if len(found) == 0 && len(missing) == 0 {
		return "Nenhum produto encontrado."
	}

	var sb strings.Builder
	if len(found) > 0 {
		sb.WriteString("PRODUTOS_ENCONTRADOS:\n")
		sb.WriteString(strings.Join(found, "\n"))
	}
	if len(missing) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("NÃO_ENCONTRADOS: ")
		sb.WriteString(strings.Join(missing, ", "))
	}
	return sb.String()
}

// FormatRecords renders available records for a single identifier lookup.
func FormatRecords(records []AvailabilityRecord) string {
	if len(records) == 0 {
		return "Produto indisponível no momento."
	}
	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteByte('\n')
		}
		name := r.DisplayName
		if name == "" {
			name = r.Identifier
		}
		price := noPriceText
		if r.HasPrice {
			price = FormatPrice(r.PriceMinor)
		}
		fmt.Fprintf(&sb, "• %s (EAN %s) - %s", name, r.Identifier, price)
	}
	return sb.String()
}
