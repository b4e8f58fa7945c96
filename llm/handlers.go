package llm

import (
	"context"
)

// Handlers receive the events of one request. Any of them may be nil.
// OnChunk fires once per delta in arrival order. Exactly one OnComplete
// fires per request, after every OnChunk; OnError, when it fires, comes
// immediately before OnComplete.
type Handlers struct {
	OnChunk    func(text string)
	OnComplete func(contentProduced bool)
	OnError    func(err error)
}

func (h Handlers) chunk(text string) {
	if h.OnChunk != nil {
		h.OnChunk(text)
	}
}

func (h Handlers) complete(contentProduced bool) {
	if h.OnComplete != nil {
		h.OnComplete(contentProduced)
	}
}

func (h Handlers) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Request streams prompt and reports it through h. It blocks until the
// request is finalized and returns the same result the handlers saw.
func (c *Client) Request(ctx context.Context, prompt string, h Handlers) Result {
	stream, err := c.Stream(ctx, prompt)
	if err != nil {
		return failedBeforeStream(err, h)
	}
	return drain(ctx, stream, h)
}

// RequestAsync runs Request on its own goroutine. The channel receives the
// result once and is then closed.
func (c *Client) RequestAsync(ctx context.Context, prompt string, h Handlers) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- c.Request(ctx, prompt, h)
	}()
	return out
}

func drain(ctx context.Context, stream *CompletionStream, h Handlers) Result {
	defer stream.Close()

	for {
		token, err := stream.Next(ctx)
		if err != nil {
			break
		}
		h.chunk(token.Text)
	}

	res := stream.Result()
	if res.Err != nil {
		h.error(res.Err)
	}
	h.complete(res.ContentProduced)
	return res
}

func failedBeforeStream(err error, h Handlers) Result {
	h.error(err)
	h.complete(false)
	return Result{Err: err}
}
