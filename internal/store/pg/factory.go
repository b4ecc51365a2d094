package pg

import (
	"fmt"

	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
)

// NewPGStores creates the Postgres-backed stores: the trigram product index
// and, when enabled, the analytics sink.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	products, err := NewPGProductStore(db, cfg.ProductsTable)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &store.Stores{Products: products, DB: db}
	if cfg.Analytics {
		s.Events = NewPGEventSink(db)
	}
	s.AddCloser(db.Close)
	return s, nil
}
