package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Redis: RedisConfig{
			Host:       "127.0.0.1",
			Port:       6379,
			TimeoutSec: 5,
		},
		Buffer: BufferConfig{
			TTLSeconds: 300,
		},
		Cooldown: CooldownConfig{
			HumanTakeoverTTLSeconds: 28800,
		},
		Catalog: CatalogConfig{
			TimeoutSec:    10,
			ProductsTable: "products",
			Workers:       5,
			MaxAttempts:   3,
		},
		Matching: MatchingConfig{
			CandidateLimit: 15,
			Preferences:    catalog.DefaultPreferences(),
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "mercadoclaw",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.Matching.PreferencesFile != "" {
		rules, err := LoadPreferences(ExpandHome(cfg.Matching.PreferencesFile))
		if err != nil {
			return nil, err
		}
		cfg.Matching.Preferences = rules
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	// Secrets (env only)
	envStr("MERCADO_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("MERCADO_REDIS_PASSWORD", &c.Redis.Password)
	envStr("MERCADO_CATALOG_TOKEN", &c.Catalog.Token)
	envStr("MERCADO_RESPONDER_TOKEN", &c.Catalog.ResponderToken)
	envStr("MERCADO_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("MERCADO_OPENAI_API_KEY", &c.Catalog.Semantic.APIKey)

	// Gateway host/port
	envStr("MERCADO_HOST", &c.Gateway.Host)
	if v := os.Getenv("MERCADO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Redis
	envStr("MERCADO_REDIS_HOST", &c.Redis.Host)
	if v := os.Getenv("MERCADO_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Redis.Port = port
		}
	}
	envInt("MERCADO_REDIS_DB", &c.Redis.DB)

	// Buffer & cooldown windows
	envInt("MERCADO_BUFFER_TTL", &c.Buffer.TTLSeconds)
	envInt("MERCADO_HUMAN_TAKEOVER_TTL", &c.Cooldown.HumanTakeoverTTLSeconds)

	// Catalog
	envStr("MERCADO_STOCK_BASE_URL", &c.Catalog.StockBaseURL)
	envStr("MERCADO_RESPONDER_URL", &c.Catalog.ResponderURL)
	envStr("MERCADO_PRODUCTS_TABLE", &c.Catalog.ProductsTable)
	envStr("MERCADO_SQLITE_PATH", &c.Catalog.SQLitePath)
	envInt("MERCADO_CATALOG_WORKERS", &c.Catalog.Workers)
	envStr("MERCADO_EMBEDDING_MODEL", &c.Catalog.Semantic.Model)
	if v := os.Getenv("MERCADO_SEMANTIC_SEARCH"); v != "" {
		c.Catalog.Semantic.Enabled = v == "true" || v == "1"
	}

	// Matching
	envStr("MERCADO_PREFERENCES_FILE", &c.Matching.PreferencesFile)

	// Telemetry
	envStr("MERCADO_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("MERCADO_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("MERCADO_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("MERCADO_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MERCADO_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
	if v := os.Getenv("MERCADO_ANALYTICS"); v != "" {
		c.Database.Analytics = v == "true" || v == "1"
	}

	// Blocked numbers from env (comma-separated)
	if v := os.Getenv("MERCADO_BLOCKED_NUMBERS"); v != "" {
		var nums []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				nums = append(nums, n)
			}
		}
		c.BlockedNumbers = nums
	}
}

// LoadPreferences reads a keyword preference table from a JSON5 file.
// The file holds an ordered array: [{"keyword": "frango", "qualifiers": ["abatido"]}, ...].
func LoadPreferences(path string) ([]catalog.PreferenceRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	var rules []catalog.PreferenceRule
	if err := json5.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	return rules, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
