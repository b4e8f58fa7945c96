package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aiarch/llmstream/utils"
)

const (
	chatCompletionsPath = "/chat/completions"

	// errorSnippetLength bounds how much of a non-JSON error body ends up in
	// the surfaced message.
	errorSnippetLength = 100
)

// ErrInvalidResponse is returned when a completion body has no message.
var ErrInvalidResponse = errors.New("invalid response structure from LLM API")

// ChatProvider speaks the OpenAI-compatible chat-completions protocol. The
// preset only changes the base URL, auth header and defaults.
type ChatProvider struct {
	apiKey       string
	model        string
	baseURL      string
	config       ProviderConfig
	extraHeaders map[string]string
	logger       utils.Logger
}

// NewChatProvider creates a provider for the given preset. An empty model
// falls back to the preset's default.
func NewChatProvider(cfg ProviderConfig, apiKey, model string, extraHeaders map[string]string) *ChatProvider {
	if extraHeaders == nil {
		extraHeaders = make(map[string]string)
	}
	if model == "" {
		model = cfg.DefaultModel
	}
	return &ChatProvider{
		apiKey:       apiKey,
		model:        model,
		baseURL:      cfg.BaseURL,
		config:       cfg,
		extraHeaders: extraHeaders,
		logger:       utils.NewNopLogger(),
	}
}

func (p *ChatProvider) Name() string {
	return p.config.Name
}

func (p *ChatProvider) Model() string {
	return p.model
}

// Endpoint returns <base>/chat/completions.
func (p *ChatProvider) Endpoint() string {
	return strings.TrimRight(p.baseURL, "/") + chatCompletionsPath
}

func (p *ChatProvider) RequiresAPIKey() bool {
	return !p.config.Keyless
}

// SetBaseURL overrides the preset base URL. An empty value keeps the preset.
func (p *ChatProvider) SetBaseURL(baseURL string) {
	if baseURL != "" {
		p.baseURL = baseURL
	}
}

func (p *ChatProvider) SetExtraHeaders(extraHeaders map[string]string) {
	if extraHeaders == nil {
		extraHeaders = make(map[string]string)
	}
	p.extraHeaders = extraHeaders
}

func (p *ChatProvider) SetLogger(logger utils.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Headers returns the HTTP headers required for API requests.
func (p *ChatProvider) Headers() map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}

	for k, v := range p.config.RequiredHeaders {
		headers[k] = v
	}

	if p.apiKey != "" && p.config.AuthHeader != "" {
		headers[p.config.AuthHeader] = p.config.AuthPrefix + p.apiKey
	}

	for k, v := range p.extraHeaders {
		headers[k] = v
	}

	return headers
}

func (p *ChatProvider) PrepareRequest(messages []Message, stream bool) ([]byte, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}
	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	p.logger.Debug("Request prepared", "provider", p.Name(), "model", p.model, "stream", stream, "messages", len(messages))
	return body, nil
}

// ParseStreamFrame decodes one data payload. Only the first choice is read.
// A frame without choices yields an empty Delta (nil Content), which is
// not an error.
func (p *ChatProvider) ParseStreamFrame(payload []byte) (*Delta, error) {
	var frame streamFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, err
	}

	delta := &Delta{Usage: frame.Usage.toUsage()}
	if len(frame.Choices) == 0 {
		return delta, nil
	}

	choice := frame.Choices[0]
	if choice.FinishReason != nil {
		delta.FinishReason = *choice.FinishReason
	}
	if choice.Delta != nil {
		delta.Content = stringContent(choice.Delta.Content)
	}
	return delta, nil
}

// stringContent returns nil unless raw is a JSON string.
func stringContent(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func (p *ChatProvider) ParseResponse(body []byte) (*Response, error) {
	var completion completionBody
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(completion.Choices) == 0 ||
		completion.Choices[0].Message == nil ||
		completion.Choices[0].Message.Content == nil ||
		*completion.Choices[0].Message.Content == "" {
		return nil, ErrInvalidResponse
	}

	choice := completion.Choices[0]
	resp := &Response{
		Content: *choice.Message.Content,
		Usage:   completion.Usage.toUsage(),
	}
	if choice.FinishReason != nil {
		resp.FinishReason = *choice.FinishReason
	}
	return resp, nil
}

// ErrorMessage prefers {"error":{"message"}}. A JSON body without that
// field keeps the generic status message; a non-JSON body is appended as a
// short snippet.
func (p *ChatProvider) ErrorMessage(statusCode int, body []byte) string {
	msg := fmt.Sprintf("API request failed with status %d", statusCode)

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		return msg
	}

	if snippet := truncate(strings.TrimSpace(string(body)), errorSnippetLength); snippet != "" {
		msg += ": " + snippet
	}
	return msg
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
