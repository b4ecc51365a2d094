// Package sqlite is the standalone catalog index: a single-file product
// table for deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	ean              TEXT PRIMARY KEY,
	nome             TEXT NOT NULL,
	nome_normalizado TEXT NOT NULL,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_nome_normalizado ON products (nome_normalizado);
`

// ProductStore searches product names token by token with LIKE.
type ProductStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the index at path.
func Open(path string) (*ProductStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; modernc serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &ProductStore{db: db}, nil
}

func (s *ProductStore) Name() string { return "sqlite" }

// Search requires every query token to appear in the normalized name.
// Names containing the whole query come first, then shorter names.
func (s *ProductStore) Search(ctx context.Context, query string, limit int) ([]catalog.Candidate, error) {
	q := catalog.Normalize(query)
	tokens := strings.Fields(q)
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = catalog.DefaultCandidateLimit
	}

	var where []string
	var args []any
	for _, tok := range tokens {
		where = append(where, `nome_normalizado LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(tok)+"%")
	}
	args = append(args, q, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ean, nome FROM products
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY instr(nome_normalizado, ?) = 0, length(nome), ean
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Candidate
	for rows.Next() {
		var c catalog.Candidate
		if err := rows.Scan(&c.Identifier, &c.DisplayName); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Import upserts products by EAN in one transaction.
func (s *ProductStore) Import(ctx context.Context, products []catalog.Candidate) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (ean, nome, nome_normalizado) VALUES (?, ?, ?)
		ON CONFLICT (ean) DO UPDATE
		SET nome = excluded.nome, nome_normalizado = excluded.nome_normalizado, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, p := range products {
		if p.Identifier == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, p.Identifier, p.DisplayName, catalog.Normalize(p.DisplayName)); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", p.Identifier, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *ProductStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *ProductStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
