package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

const (
	similarityThreshold = 0.2
	importChunk         = 1000
)

// SQLSTATE codes that mean the trigram schema is not in place.
const (
	sqlstateUndefinedColumn   = "42703"
	sqlstateUndefinedFunction = "42883"
)

// PGProductStore searches the products table with pg_trgm similarity on the
// normalized name. If the normalized column or the trigram functions are
// missing it switches, once and for good, to a plain ILIKE on the raw name.
type PGProductStore struct {
	db        *sql.DB
	table     string // quoted identifier
	plainOnly atomic.Bool
}

func NewPGProductStore(db *sql.DB, table string) (*PGProductStore, error) {
	if table == "" {
		table = "products"
	}
	parts := strings.Split(table, ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("invalid products table name %q", table)
		}
	}
	return &PGProductStore{db: db, table: pgx.Identifier(parts).Sanitize()}, nil
}

func (s *PGProductStore) Name() string { return "postgres" }

func (s *PGProductStore) Search(ctx context.Context, query string, limit int) ([]catalog.Candidate, error) {
	if limit <= 0 {
		limit = catalog.DefaultCandidateLimit
	}
	q := catalog.Normalize(query)
	if q == "" {
		return nil, nil
	}

	if !s.plainOnly.Load() {
		cands, err := s.searchTrigram(ctx, q, limit)
		if err == nil {
			return cands, nil
		}
		if !isSchemaMismatch(err) {
			return nil, err
		}
		slog.Warn("pg.products.trigram_unavailable", "table", s.table, "error", err)
		s.plainOnly.Store(true)
	}
	return s.searchPlain(ctx, strings.TrimSpace(query), limit)
}

func (s *PGProductStore) searchTrigram(ctx context.Context, q string, limit int) ([]catalog.Candidate, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL pg_trgm.similarity_threshold = %g", similarityThreshold)); err != nil {
		return nil, fmt.Errorf("set threshold: %w", err)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT ean, nome FROM %s
		WHERE nome_normalizado ILIKE $1 OR nome_normalizado %% $2
		ORDER BY (nome_normalizado ILIKE $1) DESC, similarity(nome_normalizado, $2) DESC, length(nome)
		LIMIT $3`, s.table),
		"%"+escapeLike(q)+"%", q, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("trigram search: %w", err)
	}
	return scanCandidates(rows)
}

func (s *PGProductStore) searchPlain(ctx context.Context, q string, limit int) ([]catalog.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ean, nome FROM %s
		WHERE nome ILIKE $1
		ORDER BY length(nome)
		LIMIT $2`, s.table),
		"%"+escapeLike(q)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("plain search: %w", err)
	}
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]catalog.Candidate, error) {
	defer rows.Close()
	var out []catalog.Candidate
	for rows.Next() {
		var ean, name sql.NullString
		if err := rows.Scan(&ean, &name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if !ean.Valid || ean.String == "" {
			continue
		}
		out = append(out, catalog.Candidate{Identifier: ean.String, DisplayName: name.String})
	}
	return out, rows.Err()
}

// Import upserts products by EAN, filling the normalized name used by Search.
func (s *PGProductStore) Import(ctx context.Context, products []catalog.Candidate) (int, error) {
	total := 0
	for start := 0; start < len(products); start += importChunk {
		end := min(start+importChunk, len(products))
		chunk := products[start:end]

		eans := make([]string, len(chunk))
		names := make([]string, len(chunk))
		normalized := make([]string, len(chunk))
		for i, p := range chunk {
			eans[i] = p.Identifier
			names[i] = p.DisplayName
			normalized[i] = catalog.Normalize(p.DisplayName)
		}

		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (ean, nome, nome_normalizado)
			SELECT DISTINCT ON (e) e, n, nn FROM unnest($1::text[], $2::text[], $3::text[]) AS t(e, n, nn)
			ON CONFLICT (ean) DO UPDATE
			SET nome = EXCLUDED.nome, nome_normalizado = EXCLUDED.nome_normalizado, updated_at = NOW()`, s.table),
			pq.Array(eans), pq.Array(names), pq.Array(normalized),
		)
		if err != nil {
			return total, fmt.Errorf("import products: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

func (s *PGProductStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func isSchemaMismatch(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateUndefinedColumn || pgErr.Code == sqlstateUndefinedFunction
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
