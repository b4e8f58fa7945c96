package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiarch/llmstream/utils"
)

func TestRequestHello(t *testing.T) {
	client := newServerClient(t, sseHandler(frame("Hel"), frame("lo"), doneFrame))

	rec := &recorder{}
	res := client.Request(testContext(t), "Say hello", rec.handlers())

	events, errs, done := rec.snapshot()
	assert.Equal(t, []string{"chunk", "chunk", "complete"}, events)
	assert.Equal(t, []string{"Hel", "lo"}, rec.chunks)
	assert.Empty(t, errs)
	assert.Equal(t, []bool{true}, done)

	require.NoError(t, res.Err)
	assert.True(t, res.ContentProduced)
	assert.Equal(t, "Hello", res.Content)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, "success", res.Outcome())
	assert.NotEmpty(t, res.RequestID)
}

func TestChunkBoundaryInvariance(t *testing.T) {
	payload := frame("héllo ") + frame("世界 🎉") + ": keep-alive\n\n" + frame("") + frame("done") + doneFrame
	want := []string{"héllo ", "世界 🎉", "", "done"}

	splits := map[string][]string{
		"single piece": {payload},
		"one byte":     splitBytes(payload, 1),
		"three bytes":  splitBytes(payload, 3),
		"seven bytes":  splitBytes(payload, 7),
	}
	for i := 1; i < len(payload); i += 5 {
		splits[fmt.Sprintf("split at %d", i)] = []string{payload[:i], payload[i:]}
	}

	for name, pieces := range splits {
		t.Run(name, func(t *testing.T) {
			client := newBodyClient(t, func() io.ReadCloser { return newChunkedBody(pieces...) })

			rec := &recorder{}
			res := client.Request(testContext(t), "split", rec.handlers())

			require.NoError(t, res.Err)
			assert.Equal(t, want, rec.chunks)
			assert.Equal(t, "héllo 世界 🎉done", res.Content)
		})
	}
}

// splitBytes cuts s every n bytes, ignoring rune boundaries.
func splitBytes(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func TestDoneFinalizesWithoutWaitingForEOF(t *testing.T) {
	body := newBlockingBody(frame("only"), doneFrame)
	client := newBodyClient(t, func() io.ReadCloser { return body })

	resCh := client.RequestAsync(testContext(t), "hi", (&recorder{}).handlers())

	select {
	case res := <-resCh:
		require.NoError(t, res.Err)
		assert.Equal(t, "only", res.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not finish after [DONE]")
	}
	assert.EqualValues(t, 1, body.closes.Load())
}

func TestUnterminatedTailIsFlushedAtEOF(t *testing.T) {
	tail := strings.TrimSuffix(frame("tail"), "\n\n")
	client := newBodyClient(t, func() io.ReadCloser { return newChunkedBody(frame("head"), tail) })

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"head", "tail"}, rec.chunks)
	assert.Equal(t, []bool{true}, rec.done)
}

func TestEOFWithoutDoneIsSuccess(t *testing.T) {
	client := newServerClient(t, sseHandler(frame("a"), frame("b")))

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	require.NoError(t, res.Err)
	assert.Equal(t, "ab", rec.text())
	assert.Equal(t, []string{"chunk", "chunk", "complete"}, rec.events)
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	logger := utils.NewRecordingLogger()
	metrics := NewMetrics(nil)
	client := newServerClient(t,
		sseHandler(frame("A"), "data: {not json\n\n", frame("B"), doneFrame),
		WithLogger(logger), WithMetrics(metrics),
	)

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"A", "B"}, rec.chunks)
	assert.Empty(t, rec.errs)

	warnings, last := logger.Warnings()
	assert.Equal(t, 1, warnings)
	assert.Equal(t, "skipping malformed stream frame", last)
}

func TestIgnoredLines(t *testing.T) {
	client := newServerClient(t, sseHandler(
		": comment\n",
		"event: message\n",
		"data:\n",
		"data: \n",
		"id: 7\n",
		"data: {\"choices\":[]}\n",
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":42}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":null}}]}\n",
		frame("x"),
		doneFrame,
	))

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"x"}, rec.chunks)
}

func TestEmptyStream(t *testing.T) {
	client := newServerClient(t, sseHandler(doneFrame))

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	assert.Equal(t, []string{"complete"}, rec.events)
	assert.Equal(t, []bool{false}, rec.done)
	assert.NoError(t, res.Err)
	assert.Equal(t, "empty", res.Outcome())
}

func TestEmptyDeltaDoesNotCountAsContent(t *testing.T) {
	client := newServerClient(t, sseHandler(frame(""), doneFrame))

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	assert.Equal(t, []string{"chunk", "complete"}, rec.events)
	assert.Equal(t, []string{""}, rec.chunks)
	assert.Equal(t, []bool{false}, rec.done)
	assert.False(t, res.ContentProduced)
	assert.Equal(t, 1, res.Chunks)
}

func TestFramesAfterDoneAreNotDelivered(t *testing.T) {
	client := newServerClient(t, sseHandler(frame("a")+doneFrame+frame("late")))

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"a"}, rec.chunks)
}

func TestFinishReasonAndUsage(t *testing.T) {
	client := newServerClient(t, sseHandler(
		frame("hi"),
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n",
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":1,\"total_tokens\":13}}\n\n",
		doneFrame,
	))

	res := client.Request(testContext(t), "hi", Handlers{})

	require.NoError(t, res.Err)
	assert.Equal(t, "stop", res.FinishReason)
	require.NotNil(t, res.Usage)
	assert.EqualValues(t, 12, res.Usage.InputTokens)
	assert.EqualValues(t, 1, res.Usage.OutputTokens)
	assert.False(t, res.Usage.Estimated)
}

func TestUsageEstimatedWhenProviderOmitsIt(t *testing.T) {
	words := TokenCounterFunc(func(text string) int { return len(strings.Fields(text)) })
	client := newServerClient(t, sseHandler(frame("one two "), frame("three"), doneFrame), WithTokenCounter(words))

	res := client.Request(testContext(t), "count these words", Handlers{})

	require.NoError(t, res.Err)
	require.NotNil(t, res.Usage)
	assert.True(t, res.Usage.Estimated)
	systemWords := len(strings.Fields(client.systemPrompt))
	assert.EqualValues(t, systemWords+3, res.Usage.InputTokens)
	assert.EqualValues(t, 3, res.Usage.OutputTokens)
	assert.EqualValues(t, systemWords+6, res.Usage.TotalTokens)
}

func TestReadErrorMidStream(t *testing.T) {
	readErr := errors.New("connection reset by peer")
	body := newChunkedBody(frame("partial"), "data: {\"choices\":[{\"delta\":{\"content\":\"lost")
	body.readErr = readErr
	client := newBodyClient(t, func() io.ReadCloser { return body })

	rec := &recorder{}
	res := client.Request(testContext(t), "hi", rec.handlers())

	events, errs, done := rec.snapshot()
	assert.Equal(t, []string{"chunk", "error", "complete"}, events)
	assert.Equal(t, []string{"partial"}, rec.chunks)
	require.Len(t, errs, 1)
	assert.True(t, IsErrorType(errs[0], ErrorTypeStreamRead))
	assert.ErrorIs(t, errs[0], readErr)
	assert.Equal(t, []bool{true}, done)
	assert.Equal(t, res.Err, errs[0])
	assert.EqualValues(t, 1, body.closes.Load())
}

func TestCancelMidStream(t *testing.T) {
	body := newBlockingBody(frame("first"))
	client := newBodyClient(t, func() io.ReadCloser { return body })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	h := rec.handlers()
	onChunk := h.OnChunk
	h.OnChunk = func(text string) {
		onChunk(text)
		cancel()
	}
	res := client.Request(ctx, "hi", h)

	events, errs, done := rec.snapshot()
	assert.Equal(t, []string{"chunk", "error", "complete"}, events)
	require.Len(t, errs, 1)
	assert.True(t, IsErrorType(errs[0], ErrorTypeCancelled))
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.Equal(t, []bool{true}, done)
	assert.Equal(t, "cancelled", res.Outcome())
	assert.EqualValues(t, 1, body.closes.Load())
}

func TestCancelBeforeResponse(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rec := &recorder{}
	res := client.Request(ctx, "hi", rec.handlers())

	assert.Equal(t, []string{"error", "complete"}, rec.events)
	assert.True(t, IsErrorType(res.Err, ErrorTypeCancelled))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestCloseStopsBlockedNext(t *testing.T) {
	body := newBlockingBody(frame("first"))
	client := newBodyClient(t, func() io.ReadCloser { return body })

	stream, err := client.Stream(testContext(t), "hi")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, stream.State())

	token, err := stream.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "first", token.Text)
	assert.Equal(t, 0, token.Index)

	nextErr := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		nextErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case err := <-nextErr:
		assert.True(t, IsErrorType(err, ErrorTypeCancelled))
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}

	assert.Equal(t, StateClosed, stream.State())
	assert.EqualValues(t, 1, body.closes.Load())

	res := stream.Result()
	assert.True(t, res.ContentProduced)
	assert.Equal(t, "first", res.Content)
	assert.True(t, IsErrorType(res.Err, ErrorTypeCancelled))
}

func TestNextContextCancels(t *testing.T) {
	body := newBlockingBody()
	client := newBodyClient(t, func() io.ReadCloser { return body })

	stream, err := client.Stream(testContext(t), "hi")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = stream.Next(ctx)

	assert.True(t, IsErrorType(err, ErrorTypeCancelled))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, stream.Result().ContentProduced)
}

func TestConcurrentFinalizeClosesBodyOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		body := newBlockingBody(frame("x"))
		client := newBodyClient(t, func() io.ReadCloser { return body })

		ctx, cancel := context.WithCancel(context.Background())
		stream, err := client.Stream(ctx, "hi")
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_ = stream.Close()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			cancel()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				if _, err := stream.Next(context.Background()); err != nil {
					return
				}
			}
		}()

		close(start)
		wg.Wait()

		assert.EqualValues(t, 1, body.closes.Load())
		assert.Equal(t, StateClosed, stream.State())
		assert.Error(t, stream.Result().Err)
		cancel()
	}
}

func TestNextAfterTerminal(t *testing.T) {
	t.Run("success returns EOF", func(t *testing.T) {
		client := newServerClient(t, sseHandler(frame("a"), doneFrame))
		stream, err := client.Stream(testContext(t), "hi")
		require.NoError(t, err)

		token, err := stream.Next(testContext(t))
		require.NoError(t, err)
		assert.Equal(t, "a", token.Text)

		for i := 0; i < 3; i++ {
			_, err = stream.Next(testContext(t))
			assert.ErrorIs(t, err, io.EOF)
		}
		assert.NoError(t, stream.Result().Err)
	})

	t.Run("failure is sticky", func(t *testing.T) {
		body := newChunkedBody()
		body.readErr = errors.New("boom")
		client := newBodyClient(t, func() io.ReadCloser { return body })
		stream, err := client.Stream(testContext(t), "hi")
		require.NoError(t, err)

		_, first := stream.Next(testContext(t))
		_, second := stream.Next(testContext(t))
		assert.True(t, IsErrorType(first, ErrorTypeStreamRead))
		assert.Same(t, first, second)
	})

	t.Run("close after success keeps result", func(t *testing.T) {
		client := newServerClient(t, sseHandler(doneFrame))
		stream, err := client.Stream(testContext(t), "hi")
		require.NoError(t, err)

		_, err = stream.Next(testContext(t))
		assert.ErrorIs(t, err, io.EOF)
		require.NoError(t, stream.Close())
		assert.NoError(t, stream.Result().Err)
	})
}

func TestStreamTokenIndexes(t *testing.T) {
	client := newServerClient(t, sseHandler(frame("a"), frame("b"), frame("c"), doneFrame))
	stream, err := client.Stream(testContext(t), "hi")
	require.NoError(t, err)
	defer stream.Close()

	var tokens []*StreamToken
	for {
		token, err := stream.Next(testContext(t))
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		tokens = append(tokens, token)
	}

	require.Len(t, tokens, 3)
	for i, token := range tokens {
		assert.Equal(t, i, token.Index)
		assert.Equal(t, "text", token.Type)
	}
}
