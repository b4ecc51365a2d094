package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
)

// PGEventSink writes analytics events to the analytics_events table.
type PGEventSink struct {
	db *sql.DB
}

func NewPGEventSink(db *sql.DB) *PGEventSink {
	return &PGEventSink{db: db}
}

func (s *PGEventSink) Record(ctx context.Context, ev store.Event) error {
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, session_id, event_type, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.Must(uuid.NewV7()), ev.SessionID, ev.Type, metaJSON, created,
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}
