// Package llm streams chat completions from OpenAI-compatible APIs.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aiarch/llmstream/config"
	"github.com/aiarch/llmstream/providers"
	"github.com/aiarch/llmstream/utils"
)

// maxErrorBody caps how much of a non-2xx body is read for the message.
const maxErrorBody = 64 << 10

// ChatRequest is one prompt bound to a request ID.
type ChatRequest struct {
	ID       string `validate:"required"`
	Prompt   string `validate:"notblank"`
	Messages []providers.Message

	started time.Time
}

// Client sends prompts to a single configured provider. A Client is safe
// for concurrent use; each request gets its own CompletionStream.
type Client struct {
	provider     providers.Provider
	httpClient   *http.Client
	systemPrompt string
	limiter      *rate.Limiter
	tokens       TokenCounter
	metrics      *Metrics
	logger       utils.Logger
	registry     *providers.ProviderRegistry
	newID        func() string
}

// NewClient builds a client from cfg. A nil cfg uses config.NewConfig().
func NewClient(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewLLMError(ErrorTypeInvalidInput, "invalid configuration", err)
	}

	c := &Client{
		systemPrompt: cfg.SystemPrompt,
		logger:       cfg.Logger,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = utils.NewLogger(cfg.LogLevel)
	}
	if c.registry == nil {
		c.registry = providers.GetDefaultRegistry()
	}

	provider, err := c.registry.Get(cfg.Provider, cfg.APIKey, cfg.Model, cfg.ExtraHeaders)
	if err != nil {
		return nil, NewLLMError(ErrorTypeInvalidInput, "failed to resolve provider", err)
	}
	provider.SetBaseURL(cfg.BaseURL)
	provider.SetLogger(c.logger)
	if provider.RequiresAPIKey() && cfg.APIKey == "" {
		return nil, NewLLMError(ErrorTypeInvalidInput, fmt.Sprintf("missing API key for provider %s", cfg.Provider), nil)
	}
	c.provider = provider

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.HeaderTimeout
		// No overall Timeout: it would cut off long-running streams.
		c.httpClient = &http.Client{Transport: transport}
	}

	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.RateBurst, 1))
	}

	if cfg.CountTokens && c.tokens == nil {
		counter, err := NewTiktokenCounter(provider.Model())
		if err != nil {
			c.logger.Warn("Token counting disabled", "model", provider.Model(), "error", err)
		} else {
			c.tokens = counter
		}
	}

	c.logger.Debug("Client created", "provider", provider.Name(), "model", provider.Model(), "endpoint", provider.Endpoint())
	return c, nil
}

func (c *Client) Provider() providers.Provider {
	return c.provider
}

func (c *Client) Logger() utils.Logger {
	return c.logger
}

// NewRequest validates prompt and builds the [system, user] message pair.
func (c *Client) NewRequest(prompt string) (*ChatRequest, error) {
	req := &ChatRequest{
		ID:       c.newID(),
		Prompt:   prompt,
		Messages: providers.NewMessages(c.systemPrompt, prompt),
		started:  time.Now(),
	}
	if err := Validate(req); err != nil {
		return nil, NewLLMError(ErrorTypeInvalidInput, "prompt must not be empty", err)
	}
	return req, nil
}

// Stream sends prompt with stream=true and returns the open stream once
// response headers arrive with a 2xx status. Errors before that point are
// returned directly and no stream is created.
func (c *Client) Stream(ctx context.Context, prompt string) (*CompletionStream, error) {
	req, err := c.NewRequest(prompt)
	if err != nil {
		return nil, c.failed(nil, err)
	}

	resp, err := c.send(ctx, req, true)
	if err != nil {
		return nil, c.failed(req, err)
	}

	c.metrics.streamStarted()
	c.logger.Debug("Stream opened", "request_id", req.ID, "status", resp.StatusCode)
	return newCompletionStream(ctx, c, req, resp.Body), nil
}

// Generate sends prompt with stream=false and returns the whole message.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req, err := c.NewRequest(prompt)
	if err != nil {
		return "", c.failed(nil, err)
	}

	resp, err := c.send(ctx, req, false)
	if err != nil {
		return "", c.failed(req, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", c.failed(req, cancelledError(ctx))
		}
		return "", c.failed(req, NewLLMError(ErrorTypeResponse, "failed to read response body", err))
	}

	result, err := c.provider.ParseResponse(body)
	if err != nil {
		return "", c.failed(req, NewLLMError(ErrorTypeResponse, "failed to parse response", err))
	}

	c.finished(Result{
		ContentProduced: result.Content != "",
		Content:         result.Content,
		FinishReason:    result.FinishReason,
		Usage:           result.Usage,
		RequestID:       req.ID,
		Duration:        time.Since(req.started),
	})
	return result.Content, nil
}

// send waits for the rate limiter, posts the request and checks the status.
// On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, req *ChatRequest, stream bool) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	reqBody, err := c.provider.PrepareRequest(req.Messages, stream)
	if err != nil {
		return nil, NewLLMError(ErrorTypeTransportSetup, "failed to prepare request", err)
	}
	c.logger.Debug("Request body", "provider", c.provider.Name(), "request_id", req.ID, "body", string(reqBody))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.Endpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, NewLLMError(ErrorTypeTransportSetup, "failed to create request", err)
	}
	for k, v := range c.provider.Headers() {
		httpReq.Header.Set(k, v)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	httpReq.Header.Set("X-Request-ID", req.ID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelledError(ctx)
		}
		return nil, NewLLMError(ErrorTypeTransportSetup, "failed to send request", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := c.provider.ErrorMessage(resp.StatusCode, body)
		c.logger.Error("API error", "provider", c.provider.Name(), "request_id", req.ID, "status", resp.StatusCode, "message", message)
		return nil, newHTTPStatusError(resp.StatusCode, message)
	}

	return resp, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelledError(ctx)
		}
		return NewLLMError(ErrorTypeRateLimit, "rate limiter wait failed", err)
	}
	return nil
}

// failed records a request that never produced a stream.
func (c *Client) failed(req *ChatRequest, err error) error {
	res := Result{Err: err}
	if req != nil {
		res.RequestID = req.ID
		res.Duration = time.Since(req.started)
	}
	c.finished(res)
	return err
}

// finished logs and records the terminal result of a request.
func (c *Client) finished(res Result) {
	c.metrics.observe(res)
	if res.Err != nil {
		fields := []any{"request_id", res.RequestID, "outcome", res.Outcome()}
		var llmErr *LLMError
		if errors.As(res.Err, &llmErr) {
			fields = append(fields, llmErr.LoggableFields()...)
		} else {
			fields = append(fields, "error", res.Err)
		}
		c.logger.Debug("Request finished", fields...)
		return
	}
	c.logger.Debug("Request finished",
		"request_id", res.RequestID,
		"outcome", res.Outcome(),
		"chunks", res.Chunks,
		"finish_reason", res.FinishReason,
		"duration", res.Duration,
	)
}

// estimateUsage counts tokens locally when a counter is configured.
func (c *Client) estimateUsage(req *ChatRequest, content string) *providers.Usage {
	if c.tokens == nil {
		return nil
	}
	usage := providers.NewUsage(
		int64(c.tokens.Count(c.systemPrompt)+c.tokens.Count(req.Prompt)),
		0,
		int64(c.tokens.Count(content)),
	)
	usage.Estimated = true
	return usage
}
