// Package providers describes the OpenAI-compatible chat-completions wire
// format and the provider presets that speak it (DeepSeek, OpenAI, Groq,
// Mistral, OpenRouter and local servers such as Ollama, LM Studio and vLLM).
package providers

import "github.com/aiarch/llmstream/utils"

// Provider builds requests for and parses responses from one chat-completions
// API. Implementations hold no per-request state and are safe for concurrent
// use once configured.
type Provider interface {
	Name() string
	Model() string
	Endpoint() string
	Headers() map[string]string
	RequiresAPIKey() bool

	SetBaseURL(baseURL string)
	SetExtraHeaders(extraHeaders map[string]string)
	SetLogger(logger utils.Logger)

	// PrepareRequest encodes {"model", "messages", "stream"}.
	PrepareRequest(messages []Message, stream bool) ([]byte, error)

	// ParseStreamFrame decodes the payload of one "data: " line.
	ParseStreamFrame(payload []byte) (*Delta, error)

	// ParseResponse decodes a non-streaming completion body.
	ParseResponse(body []byte) (*Response, error)

	// ErrorMessage extracts a human-readable message from a non-2xx body.
	ErrorMessage(statusCode int, body []byte) string
}

// ProviderConfig holds the static description of a provider preset.
type ProviderConfig struct {
	// Name is the provider identifier
	Name string

	// BaseURL is joined with "/chat/completions"
	BaseURL string

	// DefaultModel is used when the caller leaves the model empty
	DefaultModel string

	// AuthHeader is the header key used for authentication
	AuthHeader string

	// AuthPrefix is the prefix to use before the API key (e.g., "Bearer ")
	AuthPrefix string

	// RequiredHeaders are additional headers always needed
	RequiredHeaders map[string]string

	// Keyless marks local servers that accept unauthenticated requests
	Keyless bool
}

// ProviderConstructor creates a provider instance for a preset.
type ProviderConstructor func(apiKey, model string, extraHeaders map[string]string) Provider
