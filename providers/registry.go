package providers

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderRegistry manages provider presets and their constructors. It is
// safe for concurrent use.
type ProviderRegistry struct {
	providers map[string]ProviderConstructor
	configs   map[string]ProviderConfig
	mutex     sync.RWMutex
}

var (
	defaultRegistry     *ProviderRegistry
	defaultRegistryOnce sync.Once
)

// GetDefaultRegistry returns the process-wide registry holding every
// standard preset.
func GetDefaultRegistry() *ProviderRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewProviderRegistry()
	})
	return defaultRegistry
}

// NewProviderRegistry creates a registry with the named presets, or with
// all standard presets when none are named.
func NewProviderRegistry(providerNames ...string) *ProviderRegistry {
	registry := &ProviderRegistry{
		providers: make(map[string]ProviderConstructor),
		configs:   make(map[string]ProviderConfig),
	}

	standard := getStandardConfigs()
	if len(providerNames) == 0 {
		for name := range standard {
			providerNames = append(providerNames, name)
		}
	}

	for _, name := range providerNames {
		if cfg, ok := standard[name]; ok {
			registry.registerConfigLocked(cfg)
		}
	}

	return registry
}

func getStandardConfigs() map[string]ProviderConfig {
	bearer := func(name, baseURL, model string) ProviderConfig {
		return ProviderConfig{
			Name:         name,
			BaseURL:      baseURL,
			DefaultModel: model,
			AuthHeader:   "Authorization",
			AuthPrefix:   "Bearer ",
		}
	}
	local := func(name, baseURL string) ProviderConfig {
		cfg := bearer(name, baseURL, "")
		cfg.Keyless = true
		return cfg
	}

	return map[string]ProviderConfig{
		"deepseek":   bearer("deepseek", "https://api.deepseek.com", "deepseek-chat"),
		"openai":     bearer("openai", "https://api.openai.com/v1", "gpt-4o-mini"),
		"groq":       bearer("groq", "https://api.groq.com/openai/v1", "llama-3.1-8b-instant"),
		"mistral":    bearer("mistral", "https://api.mistral.ai/v1", "mistral-small-latest"),
		"openrouter": bearer("openrouter", "https://openrouter.ai/api/v1", "openrouter/auto"),
		"ollama":     local("ollama", "http://localhost:11434/v1"),
		"lmstudio":   local("lmstudio", "http://localhost:1234/v1"),
		"vllm":       local("vllm", "http://localhost:8000/v1"),
	}
}

// RegisterProviderConfig registers a preset served by ChatProvider.
func (r *ProviderRegistry) RegisterProviderConfig(cfg ProviderConfig) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.registerConfigLocked(cfg)
}

func (r *ProviderRegistry) registerConfigLocked(cfg ProviderConfig) {
	r.configs[cfg.Name] = cfg
	r.providers[cfg.Name] = func(apiKey, model string, extraHeaders map[string]string) Provider {
		return NewChatProvider(cfg, apiKey, model, extraHeaders)
	}
}

// Register adds a custom constructor, replacing any preset of that name.
func (r *ProviderRegistry) Register(name string, constructor ProviderConstructor) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.providers[name] = constructor
}

// GetProviderConfig returns the preset for name.
func (r *ProviderRegistry) GetProviderConfig(name string) (ProviderConfig, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cfg, exists := r.configs[name]
	return cfg, exists
}

// Names lists registered providers in sorted order.
func (r *ProviderRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get creates a provider instance by name.
func (r *ProviderRegistry) Get(name, apiKey, model string, extraHeaders map[string]string) (Provider, error) {
	r.mutex.RLock()
	constructor, exists := r.providers[name]
	r.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	return constructor(apiKey, model, extraHeaders), nil
}

// IsKnownProvider reports whether the default registry has name.
func IsKnownProvider(name string) bool {
	_, err := GetDefaultRegistry().Get(name, "", "", nil)
	return err == nil
}
