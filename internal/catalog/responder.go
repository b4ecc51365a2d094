package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 4 << 20

// ResponderSource queries an HTTP "smart responder" that answers with
// candidate lines in the "<index>) <identifier> - <displayName>" grammar,
// either as a raw body or wrapped as {"result": "..."}.
type ResponderSource struct {
	url    string
	token  string
	client *http.Client
}

// NewResponderSource creates a text-backend candidate source.
func NewResponderSource(url, token string, timeout time.Duration) *ResponderSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ResponderSource{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (s *ResponderSource) Name() string { return "responder" }

func (s *ResponderSource) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	body, err := json.Marshal(map[string]any{"query": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("responder returned %d: %s", resp.StatusCode, truncateStr(string(raw), 200))
	}

	text := string(raw)
	var wrapped struct {
		Result string `json:"result"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && wrapped.Result != "" {
		text = wrapped.Result
	}

	cands := ParseCandidateLines(text)
	if len(cands) > limit && limit > 0 {
		cands = cands[:limit]
	}
	return cands, nil
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
