package model

import (
	"fmt"

	"bistrobooks/internal/config"
	"bistrobooks/internal/port"
)

// ProviderFactory is a function that creates a ModelInvoker from a backend config.
type ProviderFactory func(cfg *config.BackendConfig) (port.ModelInvoker, error)

// registry of backend provider factories, populated by init() in each
// provider package or explicitly via Register.
var providers = map[string]ProviderFactory{}

// Register registers a backend provider factory by name.
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// New creates a ModelInvoker from a backend config using the registered factory.
func New(cfg *config.BackendConfig) (port.ModelInvoker, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}
	return factory(cfg)
}
