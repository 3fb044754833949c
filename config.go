package papergraph

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/papergraph/cache"
	"github.com/brunobiangulo/papergraph/llm"
	"github.com/brunobiangulo/papergraph/store"
)

// Config holds all configuration for a papergraph engine and its front ends.
type Config struct {
	Store store.Config `json:"store" yaml:"store"`
	LLM   llm.Config   `json:"llm" yaml:"llm"`
	Cache cache.Config `json:"cache" yaml:"cache"`

	Log    LogConfig    `json:"log" yaml:"log"`
	Server ServerConfig `json:"server" yaml:"server"`

	// IngestConcurrency bounds how many documents IngestAll processes at
	// once. Each document is still extracted and committed sequentially.
	IngestConcurrency int `json:"ingest_concurrency" yaml:"ingest_concurrency"`

	// ExtractTimeout caps a single extraction call. Zero means no limit
	// beyond the caller's context.
	ExtractTimeout time.Duration `json:"extract_timeout" yaml:"extract_timeout"`

	// AtomicBatches commits each document's nodes and edges in a single
	// transaction.
	AtomicBatches bool `json:"atomic_batches" yaml:"atomic_batches"`
}

// LogConfig selects the slog handler installed by the command-line tools.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	UploadDir   string `json:"upload_dir" yaml:"upload_dir"`
	MaxUploadMB int    `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// DefaultConfig returns a Config for a local SQLite graph and the OpenAI API.
func DefaultConfig() Config {
	return Config{
		Store: store.Config{
			Driver: "sqlite",
			DSN:    "papergraph.db",
		},
		LLM: llm.Config{
			Provider: "openai",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:        ":3000",
			UploadDir:   "uploads",
			MaxUploadMB: 50,
		},
		IngestConcurrency: 1,
	}
}

// LoadConfig returns DefaultConfig overlaid with the YAML file at path.
// An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays PAPERGRAPH_* environment variables on c. DATABASE_URL
// and the vendor API key variables are honoured when the PAPERGRAPH_
// equivalents are unset.
func (c *Config) ApplyEnv() error {
	setString(&c.Store.Driver, "PAPERGRAPH_DB_DRIVER")
	if v := os.Getenv("PAPERGRAPH_DB_DSN"); v != "" {
		c.Store.DSN = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if os.Getenv("PAPERGRAPH_DB_DRIVER") == "" {
			c.Store.Driver = driverForURL(v)
		}
	}

	setString(&c.LLM.Provider, "PAPERGRAPH_LLM_PROVIDER")
	setString(&c.LLM.Model, "PAPERGRAPH_LLM_MODEL")
	setString(&c.LLM.BaseURL, "PAPERGRAPH_LLM_BASE_URL")
	setString(&c.LLM.APIKey, "PAPERGRAPH_LLM_API_KEY")
	if c.LLM.APIKey == "" {
		if name, ok := vendorKeyEnv[strings.ToLower(c.LLM.Provider)]; ok {
			c.LLM.APIKey = os.Getenv(name)
		}
	}

	setString(&c.Cache.Backend, "PAPERGRAPH_CACHE")
	if v := os.Getenv("PAPERGRAPH_CACHE_URL"); v != "" {
		c.Cache.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" && c.Cache.URL == "" {
		c.Cache.URL = v
	}
	if err := setInt(&c.Cache.Size, "PAPERGRAPH_CACHE_SIZE"); err != nil {
		return err
	}
	if v := os.Getenv("PAPERGRAPH_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: PAPERGRAPH_CACHE_TTL: %v", ErrInvalidConfig, err)
		}
		c.Cache.TTL = d
	}

	setString(&c.Log.Level, "PAPERGRAPH_LOG_LEVEL")
	setString(&c.Log.Format, "PAPERGRAPH_LOG_FORMAT")

	setString(&c.Server.UploadDir, "PAPERGRAPH_UPLOAD_DIR")
	if v := os.Getenv("PAPERGRAPH_ADDR"); v != "" {
		c.Server.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}

	if err := setInt(&c.IngestConcurrency, "PAPERGRAPH_INGEST_CONCURRENCY"); err != nil {
		return err
	}
	if err := setInt(&c.Server.MaxUploadMB, "PAPERGRAPH_MAX_UPLOAD_MB"); err != nil {
		return err
	}
	if v := os.Getenv("PAPERGRAPH_EXTRACT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: PAPERGRAPH_EXTRACT_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.ExtractTimeout = d
	}
	if v := os.Getenv("PAPERGRAPH_ATOMIC_BATCHES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PAPERGRAPH_ATOMIC_BATCHES: %v", ErrInvalidConfig, err)
		}
		c.AtomicBatches = b
	}
	return nil
}

var vendorKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"xai":        "XAI_API_KEY",
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// driverForURL picks the backend for a DATABASE_URL by its scheme.
func driverForURL(u string) string {
	scheme, _, _ := strings.Cut(u, "://")
	switch strings.ToLower(scheme) {
	case "neo4j", "neo4j+s", "neo4j+ssc", "bolt", "bolt+s", "bolt+ssc":
		return "neo4j"
	}
	return "postgres"
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = n
	return nil
}

// Validate checks the fields the engine depends on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "pgx", "neo4j":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("%w: store dsn is required", ErrInvalidConfig)
	}
	if c.LLM.Provider == "" {
		return fmt.Errorf("%w: llm provider is required", ErrInvalidConfig)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.IngestConcurrency < 0 {
		return fmt.Errorf("%w: ingest_concurrency must be >= 0", ErrInvalidConfig)
	}
	if c.ExtractTimeout < 0 {
		return fmt.Errorf("%w: extract_timeout must be >= 0", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
