// Package config loads process-wide configuration: defaults, then an
// optional noesis.yaml, then NOESIS_-prefixed environment variables.
// The resulting Config is read once at startup and injected into
// components; nothing reads configuration after init.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "noesis.yaml"

// ConfigFileNameAlt is the alternate config file name.
const ConfigFileNameAlt = "noesis.yml"

// EnvPrefix is the prefix for environment variable overrides.
// Nesting uses a double underscore: NOESIS_ANTHROPIC__API_KEY → anthropic.api_key.
const EnvPrefix = "NOESIS_"

// Config holds all noesisd configuration.
type Config struct {
	ListenAddr string          `koanf:"listen_addr"`
	LogLevel   string          `koanf:"log_level"`
	CORS       CORSConfig      `koanf:"cors"`
	Anthropic  AnthropicConfig `koanf:"anthropic"`
	Prompt     PromptConfig    `koanf:"prompt"`
	Pricing    PricingConfig   `koanf:"pricing"`
	Usage      UsageConfig     `koanf:"usage"`
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AnthropicConfig holds upstream model client settings. An empty APIKey is
// not a startup error: the health endpoint reports it and the chat stream
// short-circuits with a single error event.
type AnthropicConfig struct {
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

// Configured reports whether an API key is present.
func (a AnthropicConfig) Configured() bool {
	return strings.TrimSpace(a.APIKey) != ""
}

// PromptConfig gates prompt construction behavior.
type PromptConfig struct {
	// IncludeRawData trades prompt size against model flexibility: when
	// true, every dataset's full rows are serialized into the system
	// prompt; when false, only pre-computed subsets are described.
	IncludeRawData bool `koanf:"include_raw_data"`
}

// PricingConfig drives usage cost computation. The formula is an expr
// expression evaluated against input_tokens, output_tokens,
// input_rate_per_mtok and output_rate_per_mtok, so pricing changes never
// require a code change.
type PricingConfig struct {
	InputPerMTok  float64 `koanf:"input_per_mtok"`
	OutputPerMTok float64 `koanf:"output_per_mtok"`
	CostFormula   string  `koanf:"cost_formula"`
}

// UsageConfig selects the accounting ledger backend.
type UsageConfig struct {
	Backend           string `koanf:"backend"` // none | http | libsql
	Endpoint          string `koanf:"endpoint"`
	DBPath            string `koanf:"db_path"`
	RetentionDays     int    `koanf:"retention_days"`
	RetentionSchedule string `koanf:"retention_schedule"`
}

// DefaultCostFormula charges per-million-token rates on both directions.
const DefaultCostFormula = "(input_tokens * input_rate_per_mtok + output_tokens * output_rate_per_mtok) / 1000000.0"

func defaults() map[string]any {
	return map[string]any{
		"listen_addr":              ":8000",
		"log_level":                "info",
		"cors.allowed_origins":     []string{"http://localhost:5173", "http://localhost:3000", "http://localhost:3001"},
		"anthropic.model":          "claude-sonnet-4-20250514",
		"anthropic.base_url":       "https://api.anthropic.com",
		"anthropic.max_tokens":     4096,
		"anthropic.temperature":    0.7,
		"prompt.include_raw_data":  false,
		"pricing.input_per_mtok":   3.0,
		"pricing.output_per_mtok":  15.0,
		"pricing.cost_formula":     DefaultCostFormula,
		"usage.backend":            "none",
		"usage.retention_days":     0,
		"usage.retention_schedule": "0 3 * * *",
	}
}

// Load builds a Config from defaults, an optional config file, and
// environment variables, in that priority order. When cfgFile is empty the
// working directory is searched for noesis.yaml / noesis.yml.
func Load(cfgFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigFile(".")
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Usage.Backend {
	case "none", "":
	case "http":
		if c.Usage.Endpoint == "" {
			return fmt.Errorf("usage.backend is http but usage.endpoint is empty")
		}
	case "libsql":
		if c.Usage.DBPath == "" {
			return fmt.Errorf("usage.backend is libsql but usage.db_path is empty")
		}
	default:
		return fmt.Errorf("unknown usage.backend %q", c.Usage.Backend)
	}
	if c.Pricing.CostFormula == "" {
		c.Pricing.CostFormula = DefaultCostFormula
	}
	return nil
}

func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
