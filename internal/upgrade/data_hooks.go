package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// DataHookFunc rewrites catalog rows once the SQL for its schema version is
// in place, and returns how many rows it touched.
type DataHookFunc func(ctx context.Context, db *sql.DB) (int64, error)

type dataHook struct {
	version uint
	name    string
	fn      DataHookFunc
}

// HookResult reports one applied hook.
type HookResult struct {
	Name     string
	Version  uint
	Rows     int64
	Duration time.Duration
}

var hooks []dataHook

// RegisterDataHook adds a hook for schemaVersion. The name is the key in
// catalog_data_migrations, so registering it twice panics.
func RegisterDataHook(schemaVersion uint, name string, fn DataHookFunc) {
	for _, h := range hooks {
		if h.name == name {
			panic("upgrade: duplicate data hook " + name)
		}
	}
	hooks = append(hooks, dataHook{version: schemaVersion, name: name, fn: fn})
}

// dueHooks returns the unapplied hooks at or below schemaVersion, lowest
// version first. Hooks sharing a version keep registration order.
func dueHooks(all []dataHook, applied map[string]bool, schemaVersion uint) []dataHook {
	var out []dataHook
	for _, h := range all {
		if !applied[h.name] && h.version <= schemaVersion {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out
}

// PendingHooks names every registered hook not applied yet.
func PendingHooks(ctx context.Context, db *sql.DB) ([]string, error) {
	applied, err := appliedHooks(ctx, db)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, h := range dueHooks(hooks, applied, math.MaxUint) {
		names = append(names, h.name)
	}
	return names, nil
}

// RunPendingHooks applies the due hooks up to schemaVersion and records each
// one with its row count. It stops at the first failure; hooks already
// applied stay recorded.
func RunPendingHooks(ctx context.Context, db *sql.DB, schemaVersion uint) ([]HookResult, error) {
	applied, err := appliedHooks(ctx, db)
	if err != nil {
		return nil, err
	}

	var results []HookResult
	for _, h := range dueHooks(hooks, applied, schemaVersion) {
		start := time.Now()
		rows, err := h.fn(ctx, db)
		if err != nil {
			return results, fmt.Errorf("data hook %s (v%d): %w", h.name, h.version, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO catalog_data_migrations (name, version, rows_touched) VALUES ($1, $2, $3)`,
			h.name, h.version, rows,
		); err != nil {
			return results, fmt.Errorf("record data hook %s: %w", h.name, err)
		}

		r := HookResult{Name: h.name, Version: h.version, Rows: rows, Duration: time.Since(start)}
		slog.Info("upgrade.data_hook.applied", "name", r.Name, "version", r.Version, "rows", r.Rows, "duration", r.Duration)
		results = append(results, r)
	}
	return results, nil
}

func appliedHooks(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS catalog_data_migrations (
			name         TEXT PRIMARY KEY,
			version      INT NOT NULL,
			rows_touched BIGINT NOT NULL DEFAULT 0,
			applied_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("create catalog_data_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM catalog_data_migrations")
	if err != nil {
		return nil, fmt.Errorf("query catalog_data_migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
