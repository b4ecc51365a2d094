package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/config"
	"github.com/nextlevelbuilder/mercadoclaw/internal/gateway"
	httpapi "github.com/nextlevelbuilder/mercadoclaw/internal/http"
	mcpserver "github.com/nextlevelbuilder/mercadoclaw/internal/mcp"
	"github.com/nextlevelbuilder/mercadoclaw/internal/tracing"
	"github.com/nextlevelbuilder/mercadoclaw/internal/upgrade"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (products, conversations, MCP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// dbPinger adapts *sql.DB to gateway.HealthChecker.
type dbPinger struct{ db *sql.DB }

func (p dbPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing.setup_failed", "error", err)
	}
	defer shutdownTracing(context.Background())

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := gateway.NewServer(cfg, Version)
	server.SetProductsHandler(httpapi.NewProductsHandler(rt.dispatcher, rt.resolver, rt.scorer, rt.fetcher, cfg.Gateway.Token))
	server.SetConversationsHandler(httpapi.NewConversationsHandler(rt.buffer, rt.gate, rt.blocked, cfg.HumanTakeoverTTL(), cfg.Gateway.Token))
	server.SetMCPHandler(mcpserver.HTTPHandler(mcpserver.NewServer(rt.tools, Version)))

	if rt.stores.DB != nil {
		if err := upgrade.CheckSchema(ctx, rt.stores.DB).Err(); err != nil {
			slog.Warn("upgrade.schema_mismatch", "error", err)
		}
		server.SetHealthCheckers(rt.kv, dbPinger{rt.stores.DB})
	} else {
		server.SetHealthCheckers(rt.kv, nil)
	}

	if cfg.Matching.PreferencesFile != "" {
		w, err := config.WatchPreferences(cfg.Matching.PreferencesFile, func(rules []catalog.PreferenceRule) {
			rt.scorer.SetPreferences(rules)
		})
		if err != nil {
			slog.Warn("config.preferences.watch_unavailable", "error", err)
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	slog.Info("mercadoclaw.started",
		"version", Version,
		"kv", kvMode(rt),
		"blocked", rt.blocked.Len(),
		"tools", len(rt.tools.List()),
	)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("mercadoclaw.stopped")
	return nil
}

func kvMode(rt *appRuntime) string {
	if rt.kv.Degraded() {
		return "memory"
	}
	return "redis"
}
