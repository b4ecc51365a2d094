package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// DefaultCandidateLimit caps the candidates kept per mention.
const DefaultCandidateLimit = 15

// CandidateSource is a fuzzy-match backend: given a query, return catalog
// candidates ordered by the backend's own relevance.
type CandidateSource interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
	Name() string
}

// Resolver turns a free-text mention into catalog candidates. Sources are
// tried in order; the next one is only consulted when the previous failed or
// matched nothing.
type Resolver struct {
	sources []CandidateSource
	limit   int
}

// NewResolver creates a resolver over sources. A non-positive limit uses DefaultCandidateLimit.
func NewResolver(limit int, sources ...CandidateSource) *Resolver {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return &Resolver{sources: sources, limit: limit}
}

// Resolve returns up to limit candidates, deduplicated by identifier.
// Empty input, no match and backend failures all yield an empty result.
func (r *Resolver) Resolve(ctx context.Context, mention string) []Candidate {
	query := strings.TrimSpace(mention)
	if query == "" {
		return nil
	}

	for _, src := range r.sources {
		found, err := src.Search(ctx, query, r.limit)
		if err != nil {
			slog.Warn("catalog.candidates.source_failed", "source", src.Name(), "query", query, "error", err)
			continue
		}
		if out := dedupe(found, r.limit); len(out) > 0 {
			slog.Debug("catalog.candidates.found", "source", src.Name(), "query", query, "count", len(out))
			return out
		}
	}
	return nil
}

func dedupe(cands []Candidate, limit int) []Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]Candidate, 0, min(len(cands), limit))
	for _, c := range cands {
		id := strings.TrimSpace(c.Identifier)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Candidate{Identifier: id, DisplayName: strings.TrimSpace(c.DisplayName)})
		if len(out) == limit {
			break
		}
	}
	return out
}

// candidateLineRe matches "<index>) <identifier> - <displayName>".
var candidateLineRe = regexp.MustCompile(`^\s*\d+\)\s*(\d+)\s*-\s*(.+?)\s*$`)

// candidateHeader prefixes FormatCandidates output.
const candidateHeader = "EANS_ENCONTRADOS:"

// ParseCandidateLines parses the line-oriented candidate format emitted by
// text backends. Lines that do not follow the grammar are ignored.
func ParseCandidateLines(text string) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(text, "\n") {
		m := candidateLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Candidate{Identifier: m[1], DisplayName: m[2]})
	}
	return out
}

// FormatCandidates renders candidates in the same line grammar ParseCandidateLines reads.
func FormatCandidates(cands []Candidate) string {
	var sb strings.Builder
	sb.WriteString(candidateHeader)
	for i, c := range cands {
		sb.WriteString(fmt.Sprintf("\n%d) %s - %s", i+1, c.Identifier, c.DisplayName))
	}
	return sb.String()
}
