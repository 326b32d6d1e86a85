// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig configures the zap logger and optional rotating file sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ScorerProfile selects the similarity scorer quality tier. The acceptance
// threshold tracks the profile because scorer quality varies: the lightweight
// lexical scorer is usable at 0.1, while a high-confidence embedding scorer
// only means something above 0.8.
type ScorerProfile string

const (
	ProfileLightweight ScorerProfile = "lightweight"
	ProfileEmbedding   ScorerProfile = "embedding"
)

// ResolverConfig tunes the locator recovery engine.
type ResolverConfig struct {
	Profile ScorerProfile `mapstructure:"profile" yaml:"profile"`
	// Threshold overrides the profile's default acceptance threshold when
	// non-zero.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	// ScanParallelism bounds concurrent fingerprint extraction during the
	// global scan.
	ScanParallelism int `mapstructure:"scan_parallelism" yaml:"scan_parallelism"`
	// AncestorScoring swaps the flat positional similarity term for the
	// ancestor-chain variant.
	AncestorScoring bool `mapstructure:"ancestor_scoring" yaml:"ancestor_scoring"`
}

// EffectiveThreshold resolves the acceptance threshold from the explicit
// override or the profile default.
func (r ResolverConfig) EffectiveThreshold() float64 {
	if r.Threshold > 0 {
		return r.Threshold
	}
	if r.Profile == ProfileEmbedding {
		return 0.8
	}
	return 0.1
}

// OracleConfig governs the external suggestion oracle.
type OracleConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// RequestsPerMinute rate-limits suggestion calls; the oracle is a shared,
	// rate-limited service and must not be hammered by a flaky suite.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	// SnapshotLimit truncates the DOM snapshot included in prompts, in bytes.
	SnapshotLimit int `mapstructure:"snapshot_limit" yaml:"snapshot_limit"`
	// Timeout caps a single suggestion round trip. The resolver blocks for
	// the duration of the call, so this is the host-imposed deadline the
	// concurrency model requires.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig wraps the LLM stack configuration.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// StoreConfig selects the optional element-memory durability backend.
type StoreConfig struct {
	// Backend is "file", "postgres", or empty for no persistence.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the snapshot directory for the file backend; defaults to
	// ~/.relock.
	Path string `mapstructure:"path" yaml:"path"`
	// DatabaseURL is the connection string for the postgres backend.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// BrowserConfig holds the few knobs the CLI's live mode needs to join an
// existing or freshly launched Chrome. Browser lifecycle otherwise belongs to
// the calling test framework.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "relock")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Resolver --
	v.SetDefault("resolver.profile", string(ProfileLightweight))
	v.SetDefault("resolver.threshold", 0.0)
	v.SetDefault("resolver.scan_parallelism", 4)
	v.SetDefault("resolver.ancestor_scoring", false)

	// -- Oracle --
	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.requests_per_minute", 6.0)
	v.SetDefault("oracle.burst", 2)
	v.SetDefault("oracle.snapshot_limit", 32768)
	v.SetDefault("oracle.timeout", 45*time.Second)

	// -- Agent / LLM --
	v.SetDefault("agent.llm.default_fast_model", "gemini-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-pro")

	// -- Store --
	v.SetDefault("store.backend", "")
	v.SetDefault("store.path", "")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
}

// Load reads the configuration from the optional file plus RELOCK_*
// environment variables and returns the unmarshalled Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("RELOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with pure defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}
