package llmstream

import (
	"github.com/aiarch/llmstream/llm"
	"github.com/aiarch/llmstream/providers"
)

type (
	// Client sends prompts to one configured provider.
	Client = llm.Client

	// CompletionStream is a single in-flight streamed completion.
	CompletionStream = llm.CompletionStream

	// StreamToken is one content delta.
	StreamToken = llm.StreamToken

	// Handlers receive OnChunk, OnError and OnComplete for one request.
	Handlers = llm.Handlers

	// Result is the terminal value of one request.
	Result = llm.Result

	ClientOption  = llm.ClientOption
	RetryStrategy = llm.RetryStrategy
	TokenCounter  = llm.TokenCounter
	Metrics       = llm.Metrics
	LLMError      = llm.LLMError
	ErrorType     = llm.ErrorType
	StreamState   = llm.StreamState
	Usage         = providers.Usage
)

var (
	WithHTTPClient         = llm.WithHTTPClient
	WithRegistry           = llm.WithRegistry
	WithMetrics            = llm.WithMetrics
	WithTokenCounter       = llm.WithTokenCounter
	WithLogger             = llm.WithLogger
	WithRequestIDGenerator = llm.WithRequestIDGenerator

	NewMetrics              = llm.NewMetrics
	NewDefaultRetryStrategy = llm.NewDefaultRetryStrategy
	IsErrorType             = llm.IsErrorType
	IsRetryable             = llm.IsRetryable
	StatusCode              = llm.StatusCode
)

const (
	ErrorTypeTransportSetup = llm.ErrorTypeTransportSetup
	ErrorTypeHTTPStatus     = llm.ErrorTypeHTTPStatus
	ErrorTypeStreamRead     = llm.ErrorTypeStreamRead
	ErrorTypeCancelled      = llm.ErrorTypeCancelled
	ErrorTypeRateLimit      = llm.ErrorTypeRateLimit
	ErrorTypeInvalidInput   = llm.ErrorTypeInvalidInput
	ErrorTypeResponse       = llm.ErrorTypeResponse
)

// NewClient loads the environment configuration, applies opts and builds
// a client.
//
// Example usage:
//
//	client, err := llmstream.NewClient(
//	    llmstream.SetProvider("deepseek"),
//	    llmstream.SetAPIKey(os.Getenv("DEEPSEEK_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := client.Request(ctx, "Hello", llmstream.Handlers{
//	    OnChunk: func(text string) { fmt.Print(text) },
//	})
func NewClient(opts ...ConfigOption) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	ApplyOptions(cfg, opts...)
	return llm.NewClient(cfg)
}

// NewClientFromConfig builds a client from an explicit Config.
func NewClientFromConfig(cfg *Config, opts ...ClientOption) (*Client, error) {
	return llm.NewClient(cfg, opts...)
}
