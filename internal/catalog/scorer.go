package catalog

import (
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Scoring weights.
const (
	tokenMatchWeight   = 2.0
	phraseMatchBonus   = 5.0
	preferenceMaxBonus = 10.0
	lengthPenalty      = 0.05
)

// Scorer ranks candidates for a mention. It is pure apart from the preference
// table, which can be swapped at runtime.
type Scorer struct {
	prefs atomic.Pointer[[]PreferenceRule]
}

// NewScorer creates a scorer with the given preference table.
func NewScorer(rules []PreferenceRule) *Scorer {
	s := &Scorer{}
	s.SetPreferences(rules)
	return s
}

// SetPreferences replaces the preference table.
func (s *Scorer) SetPreferences(rules []PreferenceRule) {
	cp := make([]PreferenceRule, len(rules))
	copy(cp, rules)
	s.prefs.Store(&cp)
}

// Preferences returns the active preference table.
func (s *Scorer) Preferences() []PreferenceRule {
	if p := s.prefs.Load(); p != nil {
		return *p
	}
	return nil
}

// Rank scores every candidate and sorts by descending score. Equal scores
// keep the order the resolver returned them in.
func (s *Scorer) Rank(mention string, candidates []Candidate) []ScoredCandidate {
	m := Normalize(mention)
	qualifiers := qualifiersFor(m, s.Preferences())

	scored := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredCandidate{Candidate: c, Score: scoreNormalized(m, c.DisplayName, qualifiers)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// Score computes the score of one candidate name for a mention.
func Score(mention, displayName string, qualifiers []string) float64 {
	return scoreNormalized(Normalize(mention), displayName, qualifiers)
}

func scoreNormalized(m, displayName string, qualifiers []string) float64 {
	name := Normalize(displayName)
	var score float64

	for _, tok := range strings.Fields(m) {
		if strings.Contains(name, tok) {
			score += tokenMatchWeight
		}
	}
	if m != "" && strings.Contains(name, m) {
		score += phraseMatchBonus
	}
	for i, q := range qualifiers {
		if strings.Contains(name, Normalize(q)) {
			score += preferenceMaxBonus - float64(i)
			break
		}
	}

	score -= lengthPenalty * float64(utf8.RuneCountInString(displayName))
	return score
}

// qualifiersFor returns the qualifiers of the first rule whose keyword
// appears in the normalized mention.
func qualifiersFor(m string, rules []PreferenceRule) []string {
	for _, r := range rules {
		kw := Normalize(r.Keyword)
		if kw != "" && strings.Contains(m, kw) {
			return r.Qualifiers
		}
	}
	return nil
}
