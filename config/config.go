// Package config loads runtime settings from the environment, optionally on
// top of a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/entityagent/unifiedllm"
)

// Config holds every tunable of the CLI host. Environment variables win
// over the YAML file, which wins over the defaults. API keys are read from
// the environment only.
type Config struct {
	Provider        string `env:"LLM_PROVIDER" envDefault:"openai" yaml:"provider" validate:"oneof=openai anthropic"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY" yaml:"-"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" yaml:"-"`

	Model       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini" yaml:"model" validate:"required"`
	Temperature float64 `env:"OPENAI_TEMPERATURE" envDefault:"0.3" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `env:"OPENAI_MAX_TOKENS" envDefault:"2000" yaml:"max_tokens" validate:"gt=0"`

	MaxIterations    int           `env:"AGENT_MAX_ITERATIONS" envDefault:"10" yaml:"max_iterations" validate:"gt=0"`
	ExecutionTimeout time.Duration `env:"AGENT_EXECUTION_TIMEOUT" envDefault:"2m" yaml:"execution_timeout" validate:"gte=0"`
	ToolTimeout      time.Duration `env:"AGENT_TOOL_TIMEOUT" envDefault:"30s" yaml:"tool_timeout" validate:"gte=0"`
	ParallelTools    bool          `env:"AGENT_PARALLEL_TOOLS" envDefault:"false" yaml:"parallel_tools"`
	LoopDetection    bool          `env:"AGENT_LOOP_DETECTION" envDefault:"true" yaml:"loop_detection"`
	InferOperations  bool          `env:"AGENT_INFER_OPERATIONS" envDefault:"false" yaml:"infer_operations"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text" yaml:"log_format" validate:"oneof=text json"`
	Environment string `env:"ENVIRONMENT" envDefault:"development" yaml:"environment"`

	// TraceSpans logs every finished span at debug level. Hosts embedding
	// the runtime install their own provider instead.
	TraceSpans bool `env:"AGENT_TRACE_SPANS" envDefault:"false" yaml:"trace_spans"`
}

// noDefaults names a tag no field carries, so a parse with it only applies
// variables that are actually set.
const noDefaults = "envOverride"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the process environment over the YAML file at path. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	return LoadFrom(path, env.ToMap(os.Environ()))
}

// LoadFrom is Load with an explicit environment.
func LoadFrom(path string, environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Environment:         environ,
		DefaultValueTagName: noDefaults,
	}); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges and that the selected provider has a key.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.APIKey(c.Provider) == "" {
		return fmt.Errorf("invalid config: no API key for provider %s", c.Provider)
	}
	return nil
}

// APIKey returns the key configured for provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}

// Providers returns one entry per provider with a key. The selected
// provider uses the configured model; the others use their catalog default
// so requests naming their models can still be routed.
func (c *Config) Providers(counter unifiedllm.TokenCounter) []unifiedllm.ProviderConfig {
	var out []unifiedllm.ProviderConfig
	for _, name := range []string{"openai", "anthropic"} {
		key := c.APIKey(name)
		if key == "" {
			continue
		}
		opts := []unifiedllm.GollmAdapterOption{
			unifiedllm.WithTemperature(c.Temperature),
			unifiedllm.WithMaxTokens(c.MaxTokens),
			unifiedllm.WithTokenCounter(counter),
		}
		if name == c.Provider {
			opts = append(opts, unifiedllm.WithModel(c.Model))
		}
		out = append(out, unifiedllm.ProviderConfig{Name: name, APIKey: key, Options: opts})
	}
	return out
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	var h slog.Handler
	if c.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("environment", c.Environment)
}
