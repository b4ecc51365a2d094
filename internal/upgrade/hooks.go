package upgrade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store/pg"
)

func init() {
	// Postgres has no portable accent folding without the unaccent
	// extension, so names are normalized in Go with the same rules the
	// scorer uses.
	RegisterDataHook(2, "002_backfill_normalized_names", backfillNormalizedNames)
	// Vectors need an API key, so only the text is seeded here; `catalog
	// embed` fills the embeddings.
	RegisterDataHook(3, "003_seed_product_embeddings", seedProductEmbeddings)
}

func seedProductEmbeddings(ctx context.Context, db *sql.DB) (int64, error) {
	return pg.SyncEmbeddingContent(ctx, db, "products")
}

const backfillBatch = 500

func backfillNormalizedNames(ctx context.Context, db *sql.DB) (int64, error) {
	var total int64
	for {
		rows, err := db.QueryContext(ctx,
			`SELECT id, nome FROM products WHERE nome_normalizado IS NULL ORDER BY id LIMIT $1`, backfillBatch)
		if err != nil {
			return total, fmt.Errorf("select products: %w", err)
		}
		type row struct {
			id   int64
			name string
		}
		var batch []row
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.name); err != nil {
				rows.Close()
				return total, fmt.Errorf("scan product: %w", err)
			}
			batch = append(batch, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return total, fmt.Errorf("begin: %w", err)
		}
		for _, r := range batch {
			if _, err := tx.ExecContext(ctx,
				`UPDATE products SET nome_normalizado = $1 WHERE id = $2`, catalog.Normalize(r.name), r.id); err != nil {
				tx.Rollback()
				return total, fmt.Errorf("update product %d: %w", r.id, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return total, fmt.Errorf("commit: %w", err)
		}
		total += int64(len(batch))
	}
}
