package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Phone numbers are often written as bare numbers in hand-edited config files.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the mercadoclaw gateway.
type Config struct {
	Gateway        GatewayConfig       `json:"gateway"`
	Redis          RedisConfig         `json:"redis"`
	Buffer         BufferConfig        `json:"buffer"`
	Cooldown       CooldownConfig      `json:"cooldown"`
	Catalog        CatalogConfig       `json:"catalog"`
	Matching       MatchingConfig      `json:"matching"`
	Database       DatabaseConfig      `json:"database,omitempty"`
	Telemetry      TelemetryConfig     `json:"telemetry,omitempty"`
	BlockedNumbers FlexibleStringSlice `json:"blocked_numbers,omitempty"`
	mu             sync.RWMutex
}

// GatewayConfig controls the HTTP/MCP server.
type GatewayConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"-"` // bearer token for HTTP auth, from env MERCADO_GATEWAY_TOKEN only
}

// RedisConfig configures the key-value store behind the message buffer and cooldown gate.
// Password is NEVER read from config.json, only from env MERCADO_REDIS_PASSWORD.
type RedisConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	DB         int    `json:"db"`
	Password   string `json:"-"`
	TimeoutSec int    `json:"timeout_sec,omitempty"` // dial/read/write timeout (default 5)
	Disabled   bool   `json:"disabled,omitempty"`    // skip redis entirely and run on the in-process store
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Timeout returns the per-operation timeout as a duration.
func (r RedisConfig) Timeout() time.Duration {
	if r.TimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.TimeoutSec) * time.Second
}

// BufferConfig configures inbound message coalescing.
type BufferConfig struct {
	TTLSeconds int `json:"ttl_seconds,omitempty"` // expiry applied to an abandoned buffer (default 300)
}

// CooldownConfig configures automated-reply suppression.
type CooldownConfig struct {
	HumanTakeoverTTLSeconds int `json:"human_takeover_ttl_seconds,omitempty"` // default 28800 (8h)
}

// CatalogConfig configures the live stock/price API and the candidate backends.
type CatalogConfig struct {
	StockBaseURL      string              `json:"stock_base_url"`                 // EAN is appended as the last path segment
	Token             string              `json:"-"`                              // from env MERCADO_CATALOG_TOKEN only
	TimeoutSec        int                 `json:"timeout_sec,omitempty"`          // default 10
	RateLimitRPS      float64             `json:"rate_limit_rps,omitempty"`       // 0 = unlimited
	PerishableMarkers FlexibleStringSlice `json:"perishable_markers,omitempty"`   // category substrings that accept negative stock
	ResponderURL      string              `json:"responder_url,omitempty"`        // optional text candidate backend
	ResponderToken    string              `json:"-"`                              // from env MERCADO_RESPONDER_TOKEN only
	ProductsTable     string              `json:"products_table,omitempty"`       // default "products"
	SQLitePath        string              `json:"sqlite_path,omitempty"`          // standalone candidate index
	Workers           int                 `json:"workers,omitempty"`              // batch concurrency (default 5)
	MaxAttempts       int                 `json:"max_attempts,omitempty"`         // candidates tried per mention (default 3)
	Semantic          SemanticConfig      `json:"semantic,omitempty"`
}

// SemanticConfig configures the embedding-backed candidate source (Postgres
// with pgvector). APIKey is NEVER read from config.json, only from env
// MERCADO_OPENAI_API_KEY.
type SemanticConfig struct {
	Enabled   bool    `json:"enabled,omitempty"`
	APIKey    string  `json:"-"`
	BaseURL   string  `json:"base_url,omitempty"`  // OpenAI-compatible endpoint
	Model     string  `json:"model,omitempty"`     // default text-embedding-3-small
	Threshold float64 `json:"threshold,omitempty"` // combined score cutoff (default 0.3)
}

// Timeout returns the catalog HTTP timeout as a duration.
func (c CatalogConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// MatchingConfig configures candidate ranking.
type MatchingConfig struct {
	CandidateLimit  int                      `json:"candidate_limit,omitempty"`  // default 15
	PreferencesFile string                   `json:"preferences_file,omitempty"` // JSON5 file, watched for changes
	Preferences     []catalog.PreferenceRule `json:"preferences,omitempty"`      // inline table, used when no file is set
}

// DatabaseConfig configures Postgres (products + analytics).
// PostgresDSN is NEVER read from config.json (secret), only from env MERCADO_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Analytics   bool   `json:"analytics,omitempty"` // record analytics_events
}

// TelemetryConfig configures OpenTelemetry export for traces.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "mercadoclaw"
	Headers     map[string]string `json:"headers,omitempty"`
}

// HasPostgres reports whether a Postgres DSN is configured.
func (c *Config) HasPostgres() bool {
	return c.Database.PostgresDSN != ""
}

// HasSemantic reports whether semantic candidate search can run.
func (c *Config) HasSemantic() bool {
	return c.HasPostgres() && c.Catalog.Semantic.Enabled && c.Catalog.Semantic.APIKey != ""
}

// BufferTTL returns the buffer expiry with defaults applied.
func (c *Config) BufferTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Buffer.TTLSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Buffer.TTLSeconds) * time.Second
}

// HumanTakeoverTTL returns the cooldown applied on handoff with defaults applied.
func (c *Config) HumanTakeoverTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Cooldown.HumanTakeoverTTLSeconds <= 0 {
		return 28800 * time.Second
	}
	return time.Duration(c.Cooldown.HumanTakeoverTTLSeconds) * time.Second
}

// StockRules returns the availability rules for the catalog client.
func (c *Config) StockRules() catalog.StockRules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Catalog.PerishableMarkers) == 0 {
		return catalog.DefaultStockRules()
	}
	return catalog.StockRules{PerishableMarkers: append([]string(nil), c.Catalog.PerishableMarkers...)}
}
