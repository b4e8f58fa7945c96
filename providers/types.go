package providers

import (
	"encoding/json"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the "messages" array.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewMessages returns the fixed [system, user] pair sent with every request.
func NewMessages(systemPrompt, prompt string) []Message {
	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: prompt},
	}
}

// Delta is what one stream frame contributes.
type Delta struct {
	// Content is nil when the frame carries no string content field. An
	// empty string is still a delta.
	Content *string

	// FinishReason is empty while the choice is still generating.
	FinishReason string

	// Usage is only present on the final frame of providers that report it.
	Usage *Usage
}

// Text returns the content or "".
func (d *Delta) Text() string {
	if d == nil || d.Content == nil {
		return ""
	}
	return *d.Content
}

// Response is a parsed non-streaming completion.
type Response struct {
	Content      string
	FinishReason string
	Usage        *Usage
}

// Usage represents the token usage information for a response.
type Usage struct {
	InputTokens       int64 // Prompt tokens, including cached ones
	CachedInputTokens int64 // Prompt tokens served from the provider cache
	OutputTokens      int64 // Completion tokens
	TotalTokens       int64
	Estimated         bool // Counted locally rather than reported by the provider
}

func NewUsage(inputTokens, cachedInputTokens, outputTokens int64) *Usage {
	return &Usage{
		InputTokens:       inputTokens,
		CachedInputTokens: cachedInputTokens,
		OutputTokens:      outputTokens,
		TotalTokens:       inputTokens + outputTokens,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type wireUsage struct {
	PromptTokens         int64 `json:"prompt_tokens"`
	CompletionTokens     int64 `json:"completion_tokens"`
	TotalTokens          int64 `json:"total_tokens"`
	PromptCacheHitTokens int64 `json:"prompt_cache_hit_tokens"`
	PromptTokensDetails  *struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

func (u *wireUsage) toUsage() *Usage {
	if u == nil {
		return nil
	}
	cached := u.PromptCacheHitTokens
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		cached = u.PromptTokensDetails.CachedTokens
	}
	usage := NewUsage(u.PromptTokens, cached, u.CompletionTokens)
	if u.TotalTokens > 0 {
		usage.TotalTokens = u.TotalTokens
	}
	return usage
}

type streamFrame struct {
	Choices []struct {
		Delta *struct {
			// Raw so that a non-string content value is ignored rather than
			// failing the whole frame.
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type completionBody struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type errorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
