// Package providers adapts concrete LLM services to transport.Provider.
package providers

import (
	"fmt"
	"net/http"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
	"github.com/ahrav/strategybench/internal/llm/transport"
)

// NewProvider builds the adapter named by cfg.Name.
func NewProvider(cfg configuration.ProviderConfig, client *http.Client) (transport.Provider, error) {
	switch cfg.Name {
	case configuration.ProviderOpenAI:
		return NewOpenAIAdapter(cfg, client), nil
	case configuration.ProviderAnthropic:
		return NewAnthropicAdapter(cfg, client), nil
	default:
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, cfg.Name)
	}
}

// NewRouter creates a router with the given adapters registered by name.
func NewRouter(adapters ...transport.Provider) transport.Router {
	r := &router{adapters: make(map[string]transport.Provider, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

type router struct {
	adapters map[string]transport.Provider
}

// Pick returns the adapter registered for provider.
func (r *router) Pick(provider string) (transport.Provider, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
