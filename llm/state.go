package llm

import "sync/atomic"

// StreamState is the lifecycle of one CompletionStream.
type StreamState int32

const (
	// StateOpen delivers tokens.
	StateOpen StreamState = iota
	// StateFinalizing is held by the single caller that won finalization
	// while it releases the body and records the result.
	StateFinalizing
	// StateClosed is terminal; the result is readable.
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// streamState guards the Open -> Finalizing -> Closed transitions. Only one
// caller of begin ever gets true.
type streamState struct {
	v atomic.Int32
}

func (s *streamState) load() StreamState {
	return StreamState(s.v.Load())
}

func (s *streamState) isOpen() bool {
	return s.load() == StateOpen
}

// begin moves Open to Finalizing and reports whether this caller won.
func (s *streamState) begin() bool {
	return s.v.CompareAndSwap(int32(StateOpen), int32(StateFinalizing))
}

// finish moves Finalizing to Closed. It is a no-op from any other state.
func (s *streamState) finish() bool {
	return s.v.CompareAndSwap(int32(StateFinalizing), int32(StateClosed))
}
