package llm

import (
	"net/http"

	"github.com/aiarch/llmstream/providers"
	"github.com/aiarch/llmstream/utils"
)

// ClientOption customizes a Client at construction time.
type ClientOption func(*Client)

// WithHTTPClient replaces the default transport. The header timeout from
// the config is not applied to a caller-supplied client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRegistry resolves the provider from registry instead of the default.
func WithRegistry(registry *providers.ProviderRegistry) ClientOption {
	return func(c *Client) {
		c.registry = registry
	}
}

func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithTokenCounter enables usage estimation with counter.
func WithTokenCounter(counter TokenCounter) ClientOption {
	return func(c *Client) {
		c.tokens = counter
	}
}

func WithLogger(logger utils.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestIDGenerator overrides the UUID request IDs.
func WithRequestIDGenerator(newID func() string) ClientOption {
	return func(c *Client) {
		if newID != nil {
			c.newID = newID
		}
	}
}
