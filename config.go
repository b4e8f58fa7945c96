// Package llmstream streams chat completions from OpenAI-compatible LLM
// APIs. This file re-exports configuration types and functions from the
// config package.
package llmstream

import (
	"github.com/aiarch/llmstream/config"
	"github.com/aiarch/llmstream/utils"
)

// Re-export core configuration types for easier access
type (
	// Config holds provider, credentials, system prompt and transport
	// settings. See config.Config for field documentation.
	//
	// Example usage:
	//   cfg := NewConfig()
	//   ApplyOptions(cfg, SetProvider("openai"), SetModel("gpt-4o-mini"))
	Config = config.Config

	// ConfigOption modifies a Config instance.
	ConfigOption = config.ConfigOption

	// LogLevel defines the verbosity of logging output, from LogLevelOff
	// through LogLevelDebug.
	LogLevel = utils.LogLevel

	// Logger is the structured logger used across the module.
	Logger = utils.Logger
)

// Re-export core configuration functions
var (
	// NewConfig returns a Config holding the defaults.
	NewConfig = config.NewConfig

	// LoadConfig starts from the defaults and applies LLM_* environment
	// variables. An unset LLM_API_KEY falls back to <PROVIDER>_API_KEY,
	// e.g. DEEPSEEK_API_KEY.
	//
	// Example usage:
	//   cfg, err := LoadConfig()
	//   if err != nil {
	//       log.Fatal(err)
	//   }
	LoadConfig = config.LoadConfig

	// LoadConfigFile reads a YAML file, then applies the environment on top.
	LoadConfigFile = config.LoadConfigFile

	// ApplyOptions applies ConfigOptions to a Config in order.
	ApplyOptions = config.ApplyOptions

	SetProvider      = config.SetProvider
	SetBaseURL       = config.SetBaseURL
	SetModel         = config.SetModel
	SetAPIKey        = config.SetAPIKey
	SetSystemPrompt  = config.SetSystemPrompt
	SetHeaderTimeout = config.SetHeaderTimeout
	SetRateLimit     = config.SetRateLimit
	SetCountTokens   = config.SetCountTokens
	SetLogLevel      = config.SetLogLevel
	SetLogger        = config.SetLogger
	SetExtraHeaders  = config.SetExtraHeaders

	// ConfigSchema returns the JSON Schema of the YAML config file.
	ConfigSchema = config.Schema
)

// Log levels
const (
	LogLevelOff   = utils.LogLevelOff
	LogLevelError = utils.LogLevelError
	LogLevelWarn  = utils.LogLevelWarn
	LogLevelInfo  = utils.LogLevelInfo
	LogLevelDebug = utils.LogLevelDebug
)
