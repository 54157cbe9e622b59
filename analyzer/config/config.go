package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	internal "github.com/ZanzyTHEbar/automation-analyzer/analyzer"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Log       LogConfig       `mapstructure:"log"`
}

// CacheConfig controls the content-addressed response caches.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`        // Disable to always hit the compute path
	Backend       string        `mapstructure:"backend"`        // "memory" | "libsql"
	Version       int           `mapstructure:"version"`        // Namespace version suffix
	SubtasksTTL   time.Duration `mapstructure:"subtasks_ttl"`   // Subtask lists
	WorkflowTTL   time.Duration `mapstructure:"workflow_ttl"`   // Workflow blueprints
	JobTextTTL    time.Duration `mapstructure:"jobtext_ttl"`    // Scraped job page text
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 disables the background sweeper
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"`
}

// LLMConfig stores the remote language model settings.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`    // "openai" (any OpenAI-compatible endpoint)
	BaseURL     string        `mapstructure:"base_url"`    // Chat completions endpoint
	APIKey      string        `mapstructure:"api_key"`     // Empty disables the AI path
	Model       string        `mapstructure:"model"`       // Model name
	MaxTokens   int           `mapstructure:"max_tokens"`  // Max tokens to generate
	Temperature float64       `mapstructure:"temperature"` // Sampling temperature
	Timeout     time.Duration `mapstructure:"timeout"`     // Client-side timeout before heuristic fallback
	MaxRetries  int           `mapstructure:"max_retries"` // Retries on 429/5xx
}

// ScraperConfig stores the job page scraping backend settings.
type ScraperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"` // Optional proxy endpoint; empty fetches the URL directly
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"` // Response body limit
}

// RateLimitConfig throttles calls to the LLM backend.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Capacity   int           `mapstructure:"capacity"`
	RefillRate time.Duration `mapstructure:"refill_rate"`
}

// AnalysisConfig controls job analysis fan-out.
type AnalysisConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Max concurrent subtask computations
	MaxTasks    int `mapstructure:"max_tasks"`   // Tasks extracted per job
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Loader reads configuration with its own viper instance so that repeated loads
// and config watching do not share global state.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader for configPath. An empty path searches the default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("ANALYZER")
	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. llm.api_key becomes ANALYZER_LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("llm.api_key", "ANALYZER_LLM_API_KEY", "OPENAI_API_KEY")

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", internal.DefaultCacheBackend)
	v.SetDefault("cache.version", internal.CacheVersion)
	v.SetDefault("cache.subtasks_ttl", internal.DefaultSubtasksTTL.String())
	v.SetDefault("cache.workflow_ttl", internal.DefaultWorkflowTTL.String())
	v.SetDefault("cache.jobtext_ttl", internal.DefaultJobTextTTL.String())
	v.SetDefault("cache.sweep_interval", "0s")

	// LibSQL embedded defaults only
	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.type", internal.DefaultDatabaseType)
	v.SetDefault("database.libsql_data_dir", internal.DefaultDatabaseDir)

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", internal.DefaultComputeTimeout.String())
	v.SetDefault("llm.max_retries", 2)

	// Scraper defaults
	v.SetDefault("scraper.enabled", true)
	v.SetDefault("scraper.timeout", internal.DefaultScrapeTimeout.String())
	v.SetDefault("scraper.max_bytes", 2<<20) // 2MB

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_rate", "1s")

	v.SetDefault("analysis.concurrency", 4)
	v.SetDefault("analysis.max_tasks", 12)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the config file (if any) and decodes it.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found in the search paths; defaults and env are used.
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-decodes the config whenever the file changes and hands the result to onChange.
// Load must have succeeded with a config file for changes to be observed.
func (l *Loader) Watch(onChange func(*Config, error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(l.decode())
	})
	l.v.WatchConfig()
}

// Settings returns every resolved key, nested by section, after defaults, file and env.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "libsql":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Version < 1 {
		return fmt.Errorf("cache version must be >= 1, got %d", c.Cache.Version)
	}
	if c.Cache.SubtasksTTL <= 0 || c.Cache.WorkflowTTL <= 0 || c.Cache.JobTextTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("analysis concurrency must be >= 1, got %d", c.Analysis.Concurrency)
	}
	return nil
}

// AIEnabled reports whether the LLM path has the credentials it needs.
func (c *LLMConfig) AIEnabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}
