package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/mercadoclaw/internal/bus"
	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
	"github.com/nextlevelbuilder/mercadoclaw/internal/config"
	"github.com/nextlevelbuilder/mercadoclaw/internal/kvstore"
	"github.com/nextlevelbuilder/mercadoclaw/internal/sessions"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store/pg"
	"github.com/nextlevelbuilder/mercadoclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/mercadoclaw/internal/tools"
)

// appRuntime holds the wired components shared by serve, lookup and mcp.
type appRuntime struct {
	cfg        *config.Config
	kv         *kvstore.Store
	stores     *store.Stores
	scorer     *catalog.Scorer
	resolver   *catalog.Resolver
	fetcher    *catalog.AvailabilityClient
	dispatcher *catalog.Dispatcher
	buffer     *bus.Buffer
	gate       *bus.CooldownGate
	blocked    *sessions.BlockList
	tools      *tools.Registry
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStores opens the configured product indexes. Postgres wins over SQLite
// for the primary slot; a configured SQLite index is kept as a second source.
// Semantic search, when enabled, runs right after the trigram index.
func openStores(cfg *config.Config) (*store.Stores, []catalog.CandidateSource, error) {
	stores := &store.Stores{}
	var sources []catalog.CandidateSource

	if cfg.HasPostgres() {
		pgStores, err := pg.NewPGStores(store.StoreConfig{
			PostgresDSN:   cfg.Database.PostgresDSN,
			ProductsTable: cfg.Catalog.ProductsTable,
			Analytics:     cfg.Database.Analytics,
		})
		if err != nil {
			return nil, nil, err
		}
		stores = pgStores
		sources = append(sources, pgStores.Products)

		if cfg.HasSemantic() {
			sem, err := newSemanticSource(cfg, pgStores)
			if err != nil {
				stores.Close()
				return nil, nil, err
			}
			sources = append(sources, sem)
		}
	}

	if cfg.Catalog.SQLitePath != "" {
		idx, err := sqlite.Open(config.ExpandHome(cfg.Catalog.SQLitePath))
		if err != nil {
			stores.Close()
			return nil, nil, err
		}
		stores.AddCloser(idx.Close)
		if stores.Products == nil {
			stores.Products = idx
		}
		sources = append(sources, idx)
	}

	if cfg.Catalog.ResponderURL != "" {
		sources = append(sources, catalog.NewResponderSource(cfg.Catalog.ResponderURL, cfg.Catalog.ResponderToken, cfg.Catalog.Timeout()))
	}
	return stores, sources, nil
}

func newSemanticSource(cfg *config.Config, stores *store.Stores) (*pg.SemanticSource, error) {
	sc := cfg.Catalog.Semantic
	embedder, err := pg.NewOpenAIEmbedder(sc.APIKey, sc.BaseURL, sc.Model)
	if err != nil {
		return nil, err
	}
	return pg.NewSemanticSource(stores.DB, embedder, cfg.Catalog.ProductsTable, sc.Threshold), nil
}

func newRuntime(ctx context.Context, cfg *config.Config) (*appRuntime, error) {
	stores, sources, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		slog.Warn("catalog.no_candidate_sources", "hint", "set MERCADO_POSTGRES_DSN, catalog.sqlite_path or catalog.responder_url")
	}

	kv := kvstore.New(ctx, kvstore.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout(),
		Disabled: cfg.Redis.Disabled,
	})

	scorer := catalog.NewScorer(cfg.Matching.Preferences)
	resolver := catalog.NewResolver(cfg.Matching.CandidateLimit, sources...)
	fetcher := catalog.NewAvailabilityClient(catalog.AvailabilityOptions{
		BaseURL:      cfg.Catalog.StockBaseURL,
		Token:        cfg.Catalog.Token,
		Timeout:      cfg.Catalog.Timeout(),
		RateLimitRPS: cfg.Catalog.RateLimitRPS,
		Rules:        cfg.StockRules(),
	})
	dispatcher := catalog.NewDispatcher(resolver, scorer, fetcher, catalog.DispatcherOptions{
		Workers:     cfg.Catalog.Workers,
		MaxAttempts: cfg.Catalog.MaxAttempts,
	})
	gate := bus.NewCooldownGate(kv)

	reg := tools.NewRegistry()
	reg.Register(tools.NewEANLookupTool(resolver, scorer, stores.Events))
	reg.Register(tools.NewStockPriceTool(fetcher))
	reg.Register(tools.NewBatchLookupTool(dispatcher, stores.Events))
	reg.Register(tools.NewHumanHandoffTool(gate, cfg.HumanTakeoverTTL(), stores.Events))

	return &appRuntime{
		cfg:        cfg,
		kv:         kv,
		stores:     stores,
		scorer:     scorer,
		resolver:   resolver,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		buffer:     bus.NewBuffer(kv, cfg.BufferTTL()),
		gate:       gate,
		blocked:    sessions.NewBlockList(cfg.BlockedNumbers),
		tools:      reg,
	}, nil
}

func (rt *appRuntime) Close() {
	if err := rt.stores.Close(); err != nil {
		slog.Warn("stores.close", "error", err)
	}
	rt.kv.Close()
}
