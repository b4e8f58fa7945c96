package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aiarch/llmstream/providers"
)

const readBufferSize = 4096

// StreamToken represents a single delta from the streaming response.
type StreamToken struct {
	// Text is the delta content; it may be empty
	Text string

	// Type is "text" for content deltas
	Type string

	// Index is the position of this token in the sequence
	Index int

	// Metadata carries provider details such as finish_reason
	Metadata map[string]any
}

// TokenStream represents a stream of tokens from the LLM.
// It follows Go's io.ReadCloser pattern but with token-level granularity.
type TokenStream interface {
	// Next returns the next token in the stream.
	// When the stream is finished, it returns io.EOF.
	Next(context.Context) (*StreamToken, error)

	// Close releases any resources associated with the stream.
	io.Closer
}

// Result is the terminal value of one request.
type Result struct {
	// ContentProduced is true once any non-empty delta was delivered.
	ContentProduced bool
	Content         string
	Chunks          int
	FinishReason    string
	Usage           *providers.Usage
	// Err is nil for a successful stream, including an empty one.
	Err       error
	RequestID string
	Duration  time.Duration
}

// Outcome is "success", "empty", "cancelled" or "error".
func (r Result) Outcome() string {
	switch {
	case r.Err == nil && r.ContentProduced:
		return "success"
	case r.Err == nil:
		return "empty"
	case IsErrorType(r.Err, ErrorTypeCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

// CompletionStream consumes one streamed chat completion. Next must be
// called from a single goroutine; Close, Result and State may be called
// from any goroutine.
type CompletionStream struct {
	client  *Client
	request *ChatRequest
	ctx     context.Context
	started time.Time

	body    io.ReadCloser
	reader  io.Reader
	decoder FrameDecoder
	readBuf []byte
	eof     bool

	state streamState
	done  chan struct{}

	// mu guards the progress fields below and the Open -> Finalizing
	// transition, so a delta is either part of the result or dropped.
	mu           sync.Mutex
	contentSeen  bool
	content      strings.Builder
	chunks       int
	finishReason string
	usage        *providers.Usage
	stopWatch    func() bool

	result Result
}

var _ TokenStream = (*CompletionStream)(nil)

func newCompletionStream(ctx context.Context, c *Client, req *ChatRequest, body io.ReadCloser) *CompletionStream {
	s := &CompletionStream{
		client:  c,
		request: req,
		ctx:     ctx,
		started: req.started,
		body:    body,
		reader:  newUTF8Reader(body),
		readBuf: make([]byte, readBufferSize),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.stopWatch = context.AfterFunc(ctx, func() {
		s.finalize(cancelledError(ctx))
	})
	s.mu.Unlock()

	return s
}

// RequestID returns the X-Request-ID sent with the request.
func (s *CompletionStream) RequestID() string {
	return s.request.ID
}

func (s *CompletionStream) State() StreamState {
	return s.state.load()
}

// Done is closed once the stream has been finalized.
func (s *CompletionStream) Done() <-chan struct{} {
	return s.done
}

// Result waits for finalization and returns the terminal value.
func (s *CompletionStream) Result() Result {
	<-s.done
	return s.result
}

// Close stops the stream and releases the response body. Closing a stream
// that has not reached a terminal frame finalizes it as cancelled.
func (s *CompletionStream) Close() error {
	s.finalize(NewLLMError(ErrorTypeCancelled, "stream closed before completion", nil))
	<-s.done
	return nil
}

// Next returns the next delta in arrival order. After a successful end it
// returns io.EOF; after a failure it keeps returning the terminal error.
// Cancelling ctx finalizes the stream as cancelled.
func (s *CompletionStream) Next(ctx context.Context) (*StreamToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	stop := context.AfterFunc(ctx, func() {
		s.finalize(cancelledError(ctx))
	})
	defer stop()

	for {
		if !s.state.isOpen() {
			return nil, s.terminal()
		}

		if line, ok := s.decoder.Next(); ok {
			if token := s.handleLine(line); token != nil {
				return token, nil
			}
			continue
		}

		if s.eof {
			// The provider closed without [DONE]; the unterminated tail is
			// still a frame.
			if rest := s.decoder.Flush(); rest != "" {
				if token := s.handleLine(rest); token != nil {
					return token, nil
				}
				continue
			}
			s.finalize(nil)
			return nil, s.terminal()
		}

		n, err := s.reader.Read(s.readBuf)
		if !s.state.isOpen() {
			return nil, s.terminal()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			s.finalize(s.readError(ctx, err))
			return nil, s.terminal()
		}
		if n > 0 {
			s.decoder.Write(s.readBuf[:n])
		}
		if err != nil {
			s.eof = true
		}
	}
}

// handleLine processes one trimmed line and returns a token when the frame
// carried string content.
func (s *CompletionStream) handleLine(line string) *StreamToken {
	kind, payload := classifyLine(line)
	switch kind {
	case frameIgnored:
		return nil
	case frameDone:
		s.finalize(nil)
		return nil
	}

	delta, err := s.client.provider.ParseStreamFrame([]byte(payload))
	if err != nil {
		parseErr := NewLLMError(ErrorTypeFrameParse, "skipping malformed stream frame", err)
		s.client.logger.Warn(parseErr.Message, append(parseErr.LoggableFields(), "request_id", s.request.ID, "payload", payload)...)
		s.client.metrics.malformedFrame()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.isOpen() {
		return nil
	}
	if delta.FinishReason != "" {
		s.finishReason = delta.FinishReason
	}
	if delta.Usage != nil {
		s.usage = delta.Usage
	}
	if delta.Content == nil {
		return nil
	}

	text := *delta.Content
	if text != "" {
		s.contentSeen = true
	}
	s.content.WriteString(text)
	token := &StreamToken{Text: text, Type: "text", Index: s.chunks}
	if delta.FinishReason != "" {
		token.Metadata = map[string]any{"finish_reason": delta.FinishReason}
	}
	s.chunks++
	s.client.metrics.chunk()
	return token
}

// finalize is the single exit of the stream. The first caller wins; later
// calls return false and change nothing.
func (s *CompletionStream) finalize(err error) bool {
	s.mu.Lock()
	if !s.state.begin() {
		s.mu.Unlock()
		return false
	}
	res := Result{
		ContentProduced: s.contentSeen,
		Content:         s.content.String(),
		Chunks:          s.chunks,
		FinishReason:    s.finishReason,
		Usage:           s.usage,
		Err:             err,
		RequestID:       s.request.ID,
		Duration:        time.Since(s.started),
	}
	stopWatch := s.stopWatch
	s.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if cerr := s.body.Close(); cerr != nil {
		s.client.logger.Debug("Closing response body failed", "request_id", s.request.ID, "error", cerr)
	}

	if res.Usage == nil {
		res.Usage = s.client.estimateUsage(s.request, res.Content)
	}

	s.result = res
	s.state.finish()
	close(s.done)

	s.client.finished(res)
	return true
}

func (s *CompletionStream) terminal() error {
	<-s.done
	if s.result.Err != nil {
		return s.result.Err
	}
	return io.EOF
}

// readError classifies a body read failure. Reads fail with the context's
// error when the transport notices cancellation before our watcher does.
func (s *CompletionStream) readError(ctx context.Context, err error) error {
	if s.ctx.Err() != nil {
		return cancelledError(s.ctx)
	}
	if ctx.Err() != nil {
		return cancelledError(ctx)
	}
	return NewLLMError(ErrorTypeStreamRead, "failed to read stream", err)
}

func cancelledError(ctx context.Context) error {
	return NewLLMError(ErrorTypeCancelled, "request cancelled", context.Cause(ctx))
}
