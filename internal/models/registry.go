package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/lazytasks/internal/config"
)

// ProviderEntry holds a lazily-initialized model instance.
type ProviderEntry struct {
	Config config.ProviderConfig
	model  model.BaseChatModel
	once   sync.Once
	err    error
}

// Registry manages named model providers with lazy initialization.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*ProviderEntry
	jsonVariant map[string]*ProviderEntry
	defaultName string
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{
		providers:   make(map[string]*ProviderEntry),
		jsonVariant: make(map[string]*ProviderEntry),
		defaultName: cfg.Default,
	}

	for name, provCfg := range cfg.Providers {
		r.providers[name] = &ProviderEntry{Config: provCfg}
	}

	return r
}

// Register installs an already-built model under name.
func (r *Registry) Register(name string, m model.BaseChatModel) {
	entry := &ProviderEntry{model: m}
	entry.once.Do(func() {})

	r.mu.Lock()
	r.providers[name] = entry
	r.mu.Unlock()
}

// Get returns the named model, initializing it lazily. An empty name selects the default.
func (r *Registry) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return nil, fmt.Errorf("no default model configured")
	}

	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}

	entry.once.Do(func() {
		entry.model, entry.err = CreateModel(ctx, entry.Config)
		if entry.err != nil {
			entry.err = fmt.Errorf("create model %q: %w", name, entry.err)
		}
	})

	return entry.model, entry.err
}

// GetJSON returns a variant of the named model constrained to emit JSON, for
// drivers that support it (openai, ollama). Other drivers get the plain model.
func (r *Registry) GetJSON(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = r.Resolve(name)

	r.mu.Lock()
	base, ok := r.providers[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("model provider %q not found", name)
	}
	cfg, supported := jsonConfig(base.Config)
	if !supported {
		r.mu.Unlock()
		return r.Get(ctx, name)
	}
	entry, ok := r.jsonVariant[name]
	if !ok {
		entry = &ProviderEntry{Config: cfg}
		r.jsonVariant[name] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.model, entry.err = CreateModel(ctx, entry.Config)
		if entry.err != nil {
			entry.err = fmt.Errorf("create json model %q: %w", name, entry.err)
		}
	})
	return entry.model, entry.err
}

func jsonConfig(cfg config.ProviderConfig) (config.ProviderConfig, bool) {
	opts := make(map[string]any, len(cfg.Options)+1)
	for k, v := range cfg.Options {
		opts[k] = v
	}
	switch strings.ToLower(cfg.Driver) {
	case "openai":
		opts["response_format"] = "json_object"
	case "ollama":
		opts["format"] = "json"
	default:
		return cfg, false
	}
	cfg.Options = opts
	return cfg, true
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Resolve maps an empty provider name to the default one.
func (r *Registry) Resolve(name string) string {
	if name == "" {
		return r.defaultName
	}
	return name
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
