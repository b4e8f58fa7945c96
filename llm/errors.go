package llm

import (
	"errors"
	"fmt"

	"github.com/aiarch/llmstream/utils"
)

// ErrorType represents the type of an error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransportSetup covers request construction, DNS, dial and TLS
	// failures before any response byte was read.
	ErrorTypeTransportSetup
	// ErrorTypeHTTPStatus is a non-2xx response; StatusCode is set.
	ErrorTypeHTTPStatus
	// ErrorTypeFrameParse is a malformed data frame. It is logged and never
	// returned to callers.
	ErrorTypeFrameParse
	// ErrorTypeStreamRead is a failure while reading the body mid-stream.
	ErrorTypeStreamRead
	// ErrorTypeCancelled means the context was cancelled or the stream was
	// closed before it reached a terminal frame.
	ErrorTypeCancelled
	ErrorTypeRateLimit
	ErrorTypeInvalidInput
	// ErrorTypeResponse is a non-streaming body without a message.
	ErrorTypeResponse
)

// LLMError is the error surfaced by the client.
type LLMError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Err        error
}

func (e *LLMError) Error() string {
	prefix := e.TypeString()
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("%s (status %d)", prefix, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

func (e *LLMError) TypeString() string {
	switch e.Type {
	case ErrorTypeTransportSetup:
		return "TransportSetupError"
	case ErrorTypeHTTPStatus:
		return "HTTPStatusError"
	case ErrorTypeFrameParse:
		return "FrameParseError"
	case ErrorTypeStreamRead:
		return "StreamReadError"
	case ErrorTypeCancelled:
		return "CancelledError"
	case ErrorTypeRateLimit:
		return "RateLimitError"
	case ErrorTypeInvalidInput:
		return "InvalidInputError"
	case ErrorTypeResponse:
		return "ResponseError"
	default:
		return "UnknownError"
	}
}

// LoggableFields returns the error as slog-style key/value pairs.
func (e *LLMError) LoggableFields() []any {
	fields := []any{
		"error_type", e.TypeString(),
		"message", e.Message,
		"error", e.Err,
	}
	if e.StatusCode != 0 {
		fields = append(fields, "status", e.StatusCode)
	}
	return fields
}

// NewLLMError creates a new LLMError
func NewLLMError(errType ErrorType, message string, err error) *LLMError {
	return &LLMError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

func newHTTPStatusError(statusCode int, message string) *LLMError {
	return &LLMError{
		Type:       ErrorTypeHTTPStatus,
		Message:    message,
		StatusCode: statusCode,
	}
}

// IsErrorType reports whether err is an LLMError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var llmErr *LLMError
	return errors.As(err, &llmErr) && llmErr.Type == t
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.StatusCode
	}
	return 0
}

// HandleError logs err with its structured fields.
func HandleError(err error, logger utils.Logger) {
	if err == nil {
		return
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		logger.Error(llmErr.Message, llmErr.LoggableFields()...)
		return
	}
	logger.Error("An error occurred", "error", err)
}
