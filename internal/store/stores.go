package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

// ProductStore is a searchable product catalog index. Search follows the
// catalog.CandidateSource contract; Import upserts by identifier.
type ProductStore interface {
	catalog.CandidateSource
	Import(ctx context.Context, products []catalog.Candidate) (int, error)
	Count(ctx context.Context) (int, error)
}

// Analytics event types.
const (
	EventProductSearch = "product_search"
	EventHumanHandoff  = "human_handoff"
)

// Event is one analytics record.
type Event struct {
	SessionID string
	Type      string
	Metadata  map[string]any
	CreatedAt time.Time // zero = now
}

// EventSink persists analytics events. Implementations must be safe for
// concurrent use. A nil EventSink disables analytics.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

// Stores is the top-level container for all storage backends.
// Products is nil when no catalog index is configured; Events is nil
// when analytics is disabled.
type Stores struct {
	Products ProductStore
	Events   EventSink
	DB       *sql.DB // postgres handle for health and schema checks, nil without a DSN

	closers []func() error
}

// AddCloser registers a cleanup function run by Close.
func (s *Stores) AddCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases every backend connection.
func (s *Stores) Close() error {
	var first error
	for _, fn := range s.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StoreConfig selects the storage backends.
type StoreConfig struct {
	PostgresDSN   string
	ProductsTable string
	SQLitePath    string
	Analytics     bool
}
