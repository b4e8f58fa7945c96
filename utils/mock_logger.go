package utils

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockLogger records calls through testify's mock. Expectations are
// optional: RecordOnly loggers accept every call.
type MockLogger struct {
	mock.Mock
	mu               sync.Mutex
	recordOnly       bool
	ErrorCallCount   int
	WarnCallCount    int
	LastErrorMessage string
	LastWarnMessage  string
}

// NewRecordingLogger returns a MockLogger that needs no On(...) setup and
// only counts Warn/Error calls.
func NewRecordingLogger() *MockLogger {
	return &MockLogger{recordOnly: true}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.mu.Lock()
	m.WarnCallCount++
	m.LastWarnMessage = msg
	m.mu.Unlock()
	m.called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.mu.Lock()
	m.ErrorCallCount++
	m.LastErrorMessage = msg
	m.mu.Unlock()
	m.called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level LogLevel) {
	if m.recordOnly {
		return
	}
	m.Called(level)
}

func (m *MockLogger) Warnings() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WarnCallCount, m.LastWarnMessage
}

func (m *MockLogger) Errors() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ErrorCallCount, m.LastErrorMessage
}

func (m *MockLogger) called(msg string, keysAndValues []any) {
	if m.recordOnly {
		return
	}
	m.Called(msg, keysAndValues)
}
