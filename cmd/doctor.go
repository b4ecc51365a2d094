package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mercadoclaw/internal/config"
	"github.com/nextlevelbuilder/mercadoclaw/internal/kvstore"
	"github.com/nextlevelbuilder/mercadoclaw/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, dependencies and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("mercadoclaw doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Redis
	fmt.Println()
	fmt.Println("  Key-value store:")
	if cfg.Redis.Disabled {
		fmt.Printf("    %-12s disabled (in-process)\n", "Mode:")
	} else {
		kv := kvstore.New(ctx, kvstore.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  cfg.Redis.Timeout(),
		})
		if kv.Degraded() {
			fmt.Printf("    %-12s %s UNREACHABLE (buffer and cooldown fall back to memory)\n", "Redis:", cfg.Redis.Addr())
		} else {
			fmt.Printf("    %-12s %s (OK)\n", "Redis:", cfg.Redis.Addr())
		}
		kv.Close()
	}

	// Product indexes
	fmt.Println()
	fmt.Println("  Catalog:")
	stores, sources, err := openStores(cfg)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Index:", err)
	} else {
		defer stores.Close()
		for _, src := range sources {
			fmt.Printf("    %-12s configured\n", src.Name()+":")
		}
		if len(sources) == 0 {
			fmt.Printf("    %-12s none (candidate lookup will always miss)\n", "Sources:")
		}
		if stores.Products != nil {
			if n, err := stores.Products.Count(ctx); err != nil {
				fmt.Printf("    %-12s COUNT FAILED (%s)\n", "Products:", err)
			} else {
				fmt.Printf("    %-12s %d in %s\n", "Products:", n, stores.Products.Name())
			}
		}
		if stores.DB != nil {
			checkSchema(ctx, stores.DB)
		}
	}
	checkSetting("Stock API", cfg.Catalog.StockBaseURL)
	checkSecret("Stock token", cfg.Catalog.Token)
	checkSetting("Responder", cfg.Catalog.ResponderURL)
	if cfg.Catalog.Semantic.Enabled {
		checkSecret("OpenAI key", cfg.Catalog.Semantic.APIKey)
		if !cfg.HasSemantic() {
			fmt.Printf("    %-12s enabled but inactive (needs MERCADO_POSTGRES_DSN and MERCADO_OPENAI_API_KEY)\n", "Semantic:")
		}
	}

	// Gateway
	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s:%d\n", "Listen:", cfg.Gateway.Host, cfg.Gateway.Port)
	checkSecret("Token", cfg.Gateway.Token)
	fmt.Printf("    %-12s %d\n", "Blocked:", len(cfg.BlockedNumbers))
	fmt.Printf("    %-12s %d rules\n", "Preferences:", len(cfg.Matching.Preferences))

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSchema(ctx context.Context, db *sql.DB) {
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Postgres:", err)
		return
	}
	s := upgrade.CheckSchema(ctx, db)
	switch {
	case s.Compatible():
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	default:
		fmt.Printf("    %-12s %s\n", "Schema:", s.Err())
	}

	pending, err := upgrade.PendingHooks(ctx, db)
	if err == nil && len(pending) > 0 {
		fmt.Printf("    %-12s %d pending\n", "Data hooks:", len(pending))
	} else if err == nil {
		fmt.Printf("    %-12s all applied\n", "Data hooks:")
	}
}

func checkSetting(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	fmt.Printf("    %-12s %s\n", name+":", value)
}

// checkSecret prints a masked secret so doctor output is safe to paste.
func checkSecret(name, secret string) {
	switch {
	case secret == "":
		fmt.Printf("    %-12s (not set)\n", name+":")
	case len(secret) <= 8:
		fmt.Printf("    %-12s %s\n", name+":", strings.Repeat("*", len(secret)))
	default:
		fmt.Printf("    %-12s %s\n", name+":", secret[:4]+strings.Repeat("*", len(secret)-8)+secret[len(secret)-4:])
	}
}
