package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	HubSpot   HubSpotConfig   `yaml:"hubspot" mapstructure:"hubspot"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is one of memory,
// sqlite or postgres. DatabaseURL is a file path for sqlite and a
// connection string for postgres.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LLMConfig selects the completion provider: openai or anthropic.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// HubSpotConfig holds HubSpot private-app settings.
type HubSpotConfig struct {
	Token        string  `yaml:"token" mapstructure:"token"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DefaultStage string  `yaml:"default_stage" mapstructure:"default_stage"`
	Pipeline     string  `yaml:"pipeline" mapstructure:"pipeline"`

	// BreakerThreshold is the number of consecutive transient failures
	// after which creates are rejected for BreakerCooldownSecs. 0 disables.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// SyncConfig configures the sync orchestrator.
type SyncConfig struct {
	DedupeConcurrent bool `yaml:"dedupe_concurrent" mapstructure:"dedupe_concurrent"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Command modes accepted by Validate.
const (
	ModeServe   = "serve"
	ModeExtract = "extract"
	ModeSync    = "sync"
	ModePing    = "ping"
)

// Load reads configuration from config.yaml in the working directory and
// CRM_-prefixed environment variables. The conventional OPENAI_API_KEY,
// ANTHROPIC_API_KEY and HUBSPOT_ACCESS_TOKEN variables are honoured too.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"openai.key":         "OPENAI_API_KEY",
		"anthropic.key":      "ANTHROPIC_API_KEY",
		"hubspot.token":      "HUBSPOT_ACCESS_TOKEN",
		"store.database_url": "DATABASE_URL",
	} {
		if err := v.BindEnv(key, "CRM_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("hubspot.token", "")
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.rate_limit", 10)
	v.SetDefault("hubspot.timeout_secs", 30)
	v.SetDefault("hubspot.default_stage", "qualifiedtobuy")
	v.SetDefault("hubspot.pipeline", "default")
	v.SetDefault("hubspot.breaker_threshold", 0)
	v.SetDefault("hubspot.breaker_cooldown_secs", 30)
	v.SetDefault("sync.dedupe_concurrent", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Missing credentials
// are reported as configuration errors naming the key.
func (c *Config) Validate(mode string) error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return apperr.Configuration("config: store.database_url is required for the postgres driver")
		}
	default:
		return apperr.Configuration("config: unknown store.driver %q (want memory, sqlite or postgres)", c.Store.Driver)
	}

	switch mode {
	case ModeExtract:
		return c.ValidateLLM()
	case ModeSync:
		return c.ValidateHubSpot()
	case ModeServe, ModePing:
		if _, err := c.provider(); err != nil {
			return err
		}
		if c.Server.Port <= 0 && mode == ModeServe {
			return apperr.Configuration("config: server.port must be positive")
		}
		return nil
	default:
		return apperr.Configuration("config: unknown mode %q", mode)
	}
}

// ValidateLLM checks that the selected completion provider has a key.
func (c *Config) ValidateLLM() error {
	p, err := c.provider()
	if err != nil {
		return err
	}
	switch p {
	case "anthropic":
		if c.Anthropic.Key == "" {
			return apperr.Configuration("config: anthropic.key is required (CRM_ANTHROPIC_KEY or ANTHROPIC_API_KEY)")
		}
	default:
		if c.OpenAI.Key == "" {
			return apperr.Configuration("config: openai.key is required (CRM_OPENAI_KEY or OPENAI_API_KEY)")
		}
	}
	return nil
}

// ValidateHubSpot checks that a HubSpot token is configured.
func (c *Config) ValidateHubSpot() error {
	if strings.TrimSpace(c.HubSpot.Token) == "" {
		return apperr.Configuration("config: hubspot.token is required (CRM_HUBSPOT_TOKEN or HUBSPOT_ACCESS_TOKEN)")
	}
	return nil
}

func (c *Config) provider() (string, error) {
	p := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch p {
	case "", "openai":
		return "openai", nil
	case "anthropic":
		return p, nil
	default:
		return "", apperr.Configuration("config: unknown llm.provider %q (want openai or anthropic)", c.LLM.Provider)
	}
}

// Provider returns the normalized completion provider name.
func (c *Config) Provider() string {
	p, err := c.provider()
	if err != nil {
		return c.LLM.Provider
	}
	return p
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
