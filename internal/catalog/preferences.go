package catalog

// PreferenceRule prefers candidates carrying one of Qualifiers when the
// mention contains Keyword. Qualifiers are ordered: earlier ones weigh more.
type PreferenceRule struct {
	Keyword    string   `json:"keyword"`
	Qualifiers []string `json:"qualifiers"`
}

// DefaultPreferences is the table used when config provides none.
func DefaultPreferences() []PreferenceRule {
	return []PreferenceRule{
		{Keyword: "frango", Qualifiers: []string{"abatido"}},
		{Keyword: "leite", Qualifiers: []string{"liquido"}},
		{Keyword: "arroz", Qualifiers: []string{"tipo 1"}},
		{Keyword: "acucar", Qualifiers: []string{"cristal"}},
		{Keyword: "feijao", Qualifiers: []string{"carioca"}},
		{Keyword: "oleo", Qualifiers: []string{"soja"}},
		{Keyword: "tomate", Qualifiers: []string{"tomate kg"}},
		{Keyword: "cebola", Qualifiers: []string{"cebola kg"}},
		{Keyword: "batata", Qualifiers: []string{"batata kg"}},
		{Keyword: "calabresa", Qualifiers: []string{"calabresa kg"}},
	}
}
