package secrets

import (
	"fmt"
	"sync"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
)

// Constructor builds a Hook given the configured secrets path (may be
// empty for modules that don't need one, like "env").
type Constructor func(path string) (Hook, error)

// Registry maps a secrets-module name to its constructor, following the
// same explicit-registration shape as internal/registry's connector and
// step registries.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

func (r *Registry) Build(name, path string) (Hook, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("secrets: no module registered with name %q", name)
	}
	return ctor(path)
}

// RegisterBuiltins adds the "env" and "file" modules.
func RegisterBuiltins(reg *Registry) {
	reg.Register("env", func(string) (Hook, error) { return EnvHook{}, nil })
	reg.Register("file", func(path string) (Hook, error) { return NewFileHook(path) })
}

// Load resolves the secrets hook from Settings: AETHERFLOW_SECRETS_MODULE
// picks the module explicitly; otherwise a non-empty
// AETHERFLOW_SECRETS_PATH implies the "file" module; with neither set,
// the result is Passthrough.
func Load(cfg *afconfig.Settings) (Hook, error) {
	if cfg.SecretsModule == "" && cfg.SecretsPath == "" {
		return Passthrough{}, nil
	}
	module := cfg.SecretsModule
	if module == "" {
		module = "file"
	}
	reg := NewRegistry()
	RegisterBuiltins(reg)
	return reg.Build(module, cfg.SecretsPath)
}
