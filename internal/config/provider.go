package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig defines how docexplain connects to an OpenAI-compatible gateway.
type ProviderConfig struct {
	// APIBaseURL is the base URL for OpenAI-compatible chat completions.
	APIBaseURL string `mapstructure:"api_base_url"`
	// APIKey is the bearer token used for Authorization; optional behind a proxy.
	APIKey string `mapstructure:"api_key"`
	// TimeoutMS configures request timeout in milliseconds.
	TimeoutMS int `mapstructure:"timeout_ms"`
	// DefaultModel is used when no CLI override is provided.
	DefaultModel string `mapstructure:"default_model"`
	// ModelAliases maps friendly names to provider model ids.
	ModelAliases map[string]string `mapstructure:"model_aliases"`
	// Headers are sent with every request, e.g. proxy routing headers.
	Headers map[string]string `mapstructure:"headers"`
	// PromptTemplate overrides the built-in explanation prompt.
	PromptTemplate string `mapstructure:"prompt_template"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// LogFile receives structured logs; empty disables logging.
	LogFile string `mapstructure:"log_file"`
}

// envPrefix scopes environment overrides, e.g. DOCEXPLAIN_API_KEY.
const envPrefix = "DOCEXPLAIN"

var (
	// ErrProviderConfigMissing is returned when no config file or environment settings exist.
	ErrProviderConfigMissing = errors.New("provider config missing")
	// ErrProviderConfigInvalid is returned when required fields are missing.
	ErrProviderConfigInvalid = errors.New("provider config invalid")
)

// ProviderConfigPath returns the default provider config path.
func ProviderConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".docexplain", "config.json"), nil
}

// LoadProviderConfig reads defaults, then the config file, then DOCEXPLAIN_*
// environment variables, and validates the result.
func LoadProviderConfig(path string) (*ProviderConfig, error) {
	if path == "" {
		var err error
		path, err = ProviderConfigPath()
		if err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetDefault("api_base_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("timeout_ms", 600000)
	v.SetDefault("default_model", "")
	v.SetDefault("model_aliases", map[string]string{})
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("prompt_template", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing file is fine when the environment supplies everything.
	fileFound := true
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat provider config: %w", err)
		}
		fileFound = false
	}
	if fileFound {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read provider config: %w", err)
		}
	}

	var cfg ProviderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}

	// Validate required fields.
	if cfg.APIBaseURL == "" || cfg.DefaultModel == "" {
		if !fileFound {
			return nil, ErrProviderConfigMissing
		}
		return nil, ErrProviderConfigInvalid
	}

	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 600000
	}
	if cfg.ModelAliases == nil {
		cfg.ModelAliases = make(map[string]string)
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return &cfg, nil
}

// Timeout returns the request timeout as a duration.
func (cfg *ProviderConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMS) * time.Millisecond
}

// ResolveModel returns the model for a session; the CLI value wins over the default.
func ResolveModel(cfg *ProviderConfig, cliModel string) string {
	if cliModel != "" {
		return aliasModel(cfg, cliModel)
	}
	if cfg == nil {
		return ""
	}
	return aliasModel(cfg, cfg.DefaultModel)
}

// aliasModel resolves an alias to a provider model name.
func aliasModel(cfg *ProviderConfig, name string) string {
	if cfg == nil {
		return name
	}
	if aliased, ok := cfg.ModelAliases[name]; ok {
		return aliased
	}
	return name
}
