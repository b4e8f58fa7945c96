// File: config/config.go

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/aiarch/llmstream/utils"
)

const (
	DefaultProvider      = "deepseek"
	DefaultModel         = "deepseek-chat"
	DefaultSystemPrompt  = "You are a helpful assistant that provides answers in Markdown format."
	DefaultHeaderTimeout = 60 * time.Second
)

// Config is injected per client; nothing in the module reads process-wide
// credentials on its own.
type Config struct {
	Provider          string            `yaml:"provider,omitempty" env:"LLM_PROVIDER" validate:"required" jsonschema:"description=Provider preset name such as deepseek or openai"`
	BaseURL           string            `yaml:"base_url,omitempty" env:"LLM_BASE_URL" validate:"omitempty,url" jsonschema:"description=API base URL; /chat/completions is appended"`
	Model             string            `yaml:"model,omitempty" env:"LLM_MODEL" validate:"required" jsonschema:"description=Model identifier"`
	APIKey            string            `yaml:"api_key,omitempty" env:"LLM_API_KEY" jsonschema:"description=Bearer credential"`
	SystemPrompt      string            `yaml:"system_prompt,omitempty" env:"LLM_SYSTEM_PROMPT" validate:"required" jsonschema:"description=System message sent before every prompt"`
	HeaderTimeout     time.Duration     `yaml:"header_timeout,omitempty" env:"LLM_HEADER_TIMEOUT" validate:"gte=0s" jsonschema:"description=Maximum wait for response headers (0 disables)"`
	RequestsPerSecond float64           `yaml:"requests_per_second,omitempty" env:"LLM_RATE_LIMIT" validate:"gte=0" jsonschema:"description=Client-side request rate (0 is unlimited)"`
	RateBurst         int               `yaml:"rate_burst,omitempty" env:"LLM_RATE_BURST" validate:"gte=1" jsonschema:"description=Burst size for the request rate limiter"`
	CountTokens       bool              `yaml:"count_tokens,omitempty" env:"LLM_COUNT_TOKENS" jsonschema:"description=Estimate token usage with tiktoken when the provider does not report it"`
	LogLevel          utils.LogLevel    `yaml:"log_level,omitempty" env:"LLM_LOG_LEVEL"`
	ExtraHeaders      map[string]string `yaml:"extra_headers,omitempty" jsonschema:"description=Additional HTTP headers sent with every request"`
	Logger            utils.Logger      `yaml:"-" json:"-" validate:"-"`
}

type ConfigOption func(*Config)

var validate = validator.New()

// NewConfig returns the code defaults. Environment and file loading start
// from these values.
func NewConfig() *Config {
	return &Config{
		Provider:      DefaultProvider,
		Model:         DefaultModel,
		SystemPrompt:  DefaultSystemPrompt,
		HeaderTimeout: DefaultHeaderTimeout,
		RateBurst:     1,
		LogLevel:      utils.LogLevelWarn,
		ExtraHeaders:  make(map[string]string),
	}
}

// LoadConfig reads LLM_* variables over the defaults.
func LoadConfig() (*Config, error) {
	cfg := NewConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML file over the defaults, then applies the
// environment on top so deployments can override a checked-in file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if cfg.ExtraHeaders == nil {
		cfg.ExtraHeaders = make(map[string]string)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv only touches fields whose variable is set; defaults come from
// NewConfig so a file value is never clobbered by an envDefault.
func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = providerAPIKey(cfg.Provider)
	}
	return nil
}

// providerAPIKey looks up <PROVIDER>_API_KEY, e.g. DEEPSEEK_API_KEY.
func providerAPIKey(provider string) string {
	if provider == "" {
		return ""
	}
	name := strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	return os.Getenv(name)
}

// Validate checks the struct tags. Whether an API key is needed depends on
// the provider preset and is checked when the client is built.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func ApplyOptions(cfg *Config, options ...ConfigOption) {
	for _, option := range options {
		option(cfg)
	}
}

func SetProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

func SetBaseURL(baseURL string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

func SetModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

func SetAPIKey(apiKey string) ConfigOption {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

func SetSystemPrompt(prompt string) ConfigOption {
	return func(c *Config) {
		c.SystemPrompt = prompt
	}
}

func SetHeaderTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.HeaderTimeout = timeout
	}
}

// SetRateLimit caps outgoing requests. A zero rate disables limiting.
func SetRateLimit(requestsPerSecond float64, burst int) ConfigOption {
	return func(c *Config) {
		if burst < 1 {
			burst = 1
		}
		c.RequestsPerSecond = requestsPerSecond
		c.RateBurst = burst
	}
}

func SetCountTokens(enabled bool) ConfigOption {
	return func(c *Config) {
		c.CountTokens = enabled
	}
}

func SetLogLevel(level utils.LogLevel) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

func SetLogger(logger utils.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func SetExtraHeaders(headers map[string]string) ConfigOption {
	return func(c *Config) {
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = make(map[string]string)
		}
		for k, v := range headers {
			c.ExtraHeaders[k] = v
		}
	}
}

// Schema returns the JSON Schema of the YAML config file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:   "yaml",
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "llmstream configuration"

	if p, ok := s.Properties.Get("header_timeout"); ok {
		p.Type = "string"
		p.Pattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`
	}
	if p, ok := s.Properties.Get("log_level"); ok {
		p.Type = "string"
		p.Enum = []any{"OFF", "ERROR", "WARN", "INFO", "DEBUG"}
		p.Description = "Log level"
	}

	return json.MarshalIndent(s, "", "  ")
}
