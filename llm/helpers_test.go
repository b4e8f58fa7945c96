package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiarch/llmstream/config"
	"github.com/aiarch/llmstream/utils"
)

// frame builds one SSE data line carrying a content delta.
func frame(content string) string {
	encoded, _ := json.Marshal(content)
	return fmt.Sprintf("data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", encoded)
}

const doneFrame = "data: [DONE]\n\n"

func testConfig(baseURL string) *config.Config {
	cfg := config.NewConfig()
	config.ApplyOptions(cfg,
		config.SetProvider("openai"),
		config.SetModel("test-model"),
		config.SetAPIKey("test-key"),
		config.SetBaseURL(baseURL),
		config.SetLogger(utils.NewNopLogger()),
	)
	return cfg
}

// newServerClient points a client at an httptest server running handler.
func newServerClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(testConfig(server.URL), opts...)
	require.NoError(t, err)
	return client
}

// sseHandler writes each piece and flushes between them.
func sseHandler(pieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, p := range pieces {
			_, _ = io.WriteString(w, p)
			flusher.Flush()
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// newBodyClient serves every request with the body returned by newBody.
func newBodyClient(t *testing.T, newBody func() io.ReadCloser, opts ...ClientOption) *Client {
	t.Helper()
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       newBody(),
			Request:    r,
		}, nil
	})
	opts = append([]ClientOption{WithHTTPClient(&http.Client{Transport: transport})}, opts...)
	client, err := NewClient(testConfig("http://llm.test/v1"), opts...)
	require.NoError(t, err)
	return client
}

// chunkedBody returns its pieces one Read at a time, then readErr (io.EOF
// when nil). It counts Close calls.
type chunkedBody struct {
	mu      sync.Mutex
	pieces  [][]byte
	readErr error
	closes  atomic.Int32
}

func newChunkedBody(pieces ...string) *chunkedBody {
	b := &chunkedBody{}
	for _, p := range pieces {
		b.pieces = append(b.pieces, []byte(p))
	}
	return b
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pieces) == 0 {
		if b.readErr != nil {
			return 0, b.readErr
		}
		return 0, io.EOF
	}
	n := copy(p, b.pieces[0])
	b.pieces[0] = b.pieces[0][n:]
	if len(b.pieces[0]) == 0 {
		b.pieces = b.pieces[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closes.Add(1)
	return nil
}

var errBodyClosed = errors.New("body closed")

// blockingBody hands out its pieces and then blocks until closed, like a
// provider that keeps the connection open.
type blockingBody struct {
	pieces  chan string
	closed  chan struct{}
	once    sync.Once
	closes  atomic.Int32
	pending []byte
	readMu  sync.Mutex
}

func newBlockingBody(pieces ...string) *blockingBody {
	b := &blockingBody{
		pieces: make(chan string, len(pieces)+16),
		closed: make(chan struct{}),
	}
	for _, p := range pieces {
		b.pieces <- p
	}
	return b
}

func (b *blockingBody) push(piece string) {
	b.pieces <- piece
}

func (b *blockingBody) Read(p []byte) (int, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()
	if len(b.pending) == 0 {
		select {
		case piece := <-b.pieces:
			b.pending = []byte(piece)
		case <-b.closed:
			return 0, errBodyClosed
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *blockingBody) Close() error {
	b.closes.Add(1)
	b.once.Do(func() { close(b.closed) })
	return nil
}

// recorder collects handler events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	chunks []string
	errs   []error
	done   []bool
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnChunk: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "chunk")
			r.chunks = append(r.chunks, text)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "error")
			r.errs = append(r.errs, err)
		},
		OnComplete: func(contentProduced bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "complete")
			r.done = append(r.done, contentProduced)
		},
	}
}

func (r *recorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.chunks, "")
}

func (r *recorder) snapshot() ([]string, []error, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]error(nil), r.errs...), append([]bool(nil), r.done...)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
