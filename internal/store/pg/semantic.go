package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

// Semantic search tuning.
const (
	vectorWeight             = 0.7
	keywordWeight            = 0.3
	DefaultSemanticThreshold = 0.3
	semanticFallback         = 3
	DefaultEmbeddingModel    = "text-embedding-3-small"
	EmbeddingDims            = 1536 // product_embeddings.embedding is vector(1536)
	embedBatch               = 100
)

const (
	sqlstateUndefinedTable  = "42P01"
	sqlstateUndefinedObject = "42704" // type "vector" without the extension
)

// Embedder turns text into vectors. *embeddings.EmbedderImpl satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// NewOpenAIEmbedder builds an embedder on the OpenAI embeddings API, or any
// compatible endpoint when baseURL is set.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("embedding API key is not set")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	e, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return e, nil
}

// SemanticSource finds candidates by meaning rather than spelling: cosine
// similarity on product_embeddings blended with Portuguese full-text rank.
// It disables itself when the pgvector schema is missing.
type SemanticSource struct {
	db        *sql.DB
	embedder  Embedder
	products  string
	threshold float64
	disabled  atomic.Bool
}

// NewSemanticSource creates the source. A non-positive threshold uses DefaultSemanticThreshold.
func NewSemanticSource(db *sql.DB, embedder Embedder, productsTable string, threshold float64) *SemanticSource {
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}
	return &SemanticSource{
		db:        db,
		embedder:  embedder,
		products:  productsTable,
		threshold: threshold,
	}
}

func (s *SemanticSource) Name() string { return "semantic" }

// Search embeds the query and returns the hybrid matches at or above the
// threshold. When none qualify, the best semanticFallback rows are returned
// so a paraphrased mention still gets something to try.
func (s *SemanticSource) Search(ctx context.Context, query string, limit int) ([]catalog.Candidate, error) {
	if s.disabled.Load() {
		return nil, nil
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = catalog.DefaultCandidateLimit
	}

	vec, err := s.embedder.EmbedQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ean, content,
		       1 - (embedding <=> $1::vector) AS vector_score,
		       ts_rank(fts, websearch_to_tsquery('portuguese', $2)) AS keyword_score
		FROM product_embeddings
		WHERE embedding IS NOT NULL
		ORDER BY (1 - (embedding <=> $1::vector)) * %g
		       + ts_rank(fts, websearch_to_tsquery('portuguese', $2)) * %g DESC
		LIMIT $3`, vectorWeight, keywordWeight),
		vectorLiteral(vec), q, limit,
	)
	if err != nil {
		if isMissingVectorSchema(err) {
			slog.Warn("pg.semantic.unavailable", "error", err)
			s.disabled.Store(true)
			return nil, nil
		}
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var hits []hybridHit
	for rows.Next() {
		var h hybridHit
		if err := rows.Scan(&h.Identifier, &h.DisplayName, &h.Vector, &h.Keyword); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return selectHybrid(hits, s.threshold), nil
}

type hybridHit struct {
	catalog.Candidate
	Vector  float64
	Keyword float64
}

func (h hybridHit) combined() float64 {
	return h.Vector*vectorWeight + h.Keyword*keywordWeight
}

// selectHybrid keeps hits (already ordered best first) whose combined score
// reaches threshold, falling back to the top semanticFallback hits.
func selectHybrid(hits []hybridHit, threshold float64) []catalog.Candidate {
	var out []catalog.Candidate
	for _, h := range hits {
		if h.combined() >= threshold {
			out = append(out, h.Candidate)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, h := range hits[:min(semanticFallback, len(hits))] {
		out = append(out, h.Candidate)
	}
	return out
}

// SyncEmbeddingContent copies product names into product_embeddings. Rows
// whose name changed lose their vector so EmbedPending recomputes it.
func SyncEmbeddingContent(ctx context.Context, db *sql.DB, productsTable string) (int64, error) {
	res, err := db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO product_embeddings (ean, content)
		SELECT ean, nome FROM %s
		ON CONFLICT (ean) DO UPDATE
		SET content = EXCLUDED.content, embedding = NULL, updated_at = NOW()
		WHERE product_embeddings.content IS DISTINCT FROM EXCLUDED.content`, quoteTable(productsTable)))
	if err != nil {
		return 0, fmt.Errorf("sync embedding content: %w", err)
	}
	return res.RowsAffected()
}

// EmbedPending syncs product names, then fills every missing vector in
// batches. It returns the number of rows embedded.
func (s *SemanticSource) EmbedPending(ctx context.Context) (int, error) {
	synced, err := SyncEmbeddingContent(ctx, s.db, s.products)
	if err != nil {
		return 0, err
	}
	slog.Info("pg.semantic.synced", "rows", synced)

	total := 0
	for {
		eans, texts, err := s.pendingBatch(ctx)
		if err != nil {
			return total, err
		}
		if len(eans) == 0 {
			return total, nil
		}

		vecs, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != len(eans) {
			return total, fmt.Errorf("embedder returned %d vectors for %d products", len(vecs), len(eans))
		}

		literals := make([]string, len(vecs))
		for i, v := range vecs {
			if len(v) != EmbeddingDims {
				return total, fmt.Errorf("embedding for %s has %d dimensions, want %d", eans[i], len(v), EmbeddingDims)
			}
			literals[i] = vectorLiteral(v)
		}

		if _, err := s.db.ExecContext(ctx, `
			UPDATE product_embeddings AS e
			SET embedding = t.v::vector, updated_at = NOW()
			FROM unnest($1::text[], $2::text[]) AS t(ean, v)
			WHERE e.ean = t.ean`,
			pq.Array(eans), pq.Array(literals),
		); err != nil {
			return total, fmt.Errorf("store embeddings: %w", err)
		}
		total += len(eans)
		slog.Info("pg.semantic.embedded", "batch", len(eans), "total", total)
	}
}

func (s *SemanticSource) pendingBatch(ctx context.Context) ([]string, []string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ean, content FROM product_embeddings WHERE embedding IS NULL ORDER BY ean LIMIT $1`, embedBatch)
	if err != nil {
		return nil, nil, fmt.Errorf("select pending: %w", err)
	}
	defer rows.Close()
	var eans, texts []string
	for rows.Next() {
		var ean, text string
		if err := rows.Scan(&ean, &text); err != nil {
			return nil, nil, fmt.Errorf("scan pending: %w", err)
		}
		eans = append(eans, ean)
		texts = append(texts, text)
	}
	return eans, texts, rows.Err()
}

// vectorLiteral renders v in pgvector's text input format: [0.1,0.2,...].
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v) * 10)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func quoteTable(table string) string {
	if table == "" {
		table = "products"
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func isMissingVectorSchema(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlstateUndefinedTable, sqlstateUndefinedObject, sqlstateUndefinedFunction, sqlstateUndefinedColumn:
		return true
	}
	return false
}
