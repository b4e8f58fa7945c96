package providers

import (
	"errors"
	"sync"
)

// MockProvider decodes like ChatProvider but lets tests inject failures
// and inspect the payloads it was handed.
type MockProvider struct {
	*ChatProvider

	mu         sync.Mutex
	prepareErr error
	frameErr   error
	failFrame  func(payload []byte) bool
	frames     []string
}

// NewMockProvider creates a mock pointed at baseURL.
func NewMockProvider(baseURL, model string, extraHeaders map[string]string) *MockProvider {
	cfg := ProviderConfig{
		Name:         "mock",
		BaseURL:      baseURL,
		DefaultModel: "mock-model",
		Keyless:      true,
	}
	return &MockProvider{ChatProvider: NewChatProvider(cfg, "", model, extraHeaders)}
}

// SetMockError makes PrepareRequest fail with err; nil clears it.
func (p *MockProvider) SetMockError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepareErr = err
}

// SetFrameError makes ParseStreamFrame fail for payloads matching match.
func (p *MockProvider) SetFrameError(match func(payload []byte) bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFrame = match
	p.frameErr = err
}

// Frames returns every payload passed to ParseStreamFrame.
func (p *MockProvider) Frames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.frames...)
}

func (p *MockProvider) PrepareRequest(messages []Message, stream bool) ([]byte, error) {
	p.mu.Lock()
	err := p.prepareErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.ChatProvider.PrepareRequest(messages, stream)
}

func (p *MockProvider) ParseStreamFrame(payload []byte) (*Delta, error) {
	p.mu.Lock()
	p.frames = append(p.frames, string(payload))
	fail := p.failFrame != nil && p.failFrame(payload)
	err := p.frameErr
	p.mu.Unlock()

	if fail {
		if err == nil {
			err = errors.New("mock frame error")
		}
		return nil, err
	}
	return p.ChatProvider.ParseStreamFrame(payload)
}
