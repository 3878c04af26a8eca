// Package rpc is the chain provider registry: per-network JSON-RPC receipt
// lookup plus the optional explorer REST endpoint used for history backfill.
package rpc

import (
	"fmt"
	"time"
)

// Provider is one configured network: an RPC endpoint and, when the network
// has an explorer, its base URL.
type Provider struct {
	ID              string
	Name            string
	RPCURL          string
	ExplorerBaseURL string

	client   *Client
	explorer *Explorer
}

// Client returns the provider's JSON-RPC client.
func (p *Provider) Client() *Client {
	return p.client
}

// Explorer returns the provider's explorer client, or nil when the network has
// no explorer configured.
func (p *Provider) Explorer() *Explorer {
	return p.explorer
}

// HasExplorer reports whether history backfill is possible on this network.
func (p *Provider) HasExplorer() bool {
	return p.explorer != nil
}

// Registry holds all configured providers keyed by id. Read-only after build.
type Registry struct {
	providers map[string]*Provider
	order     []string
}

// ProviderConfig is the registry's slice of the application config.
type ProviderConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	RPCURL          string `yaml:"rpc_url"`
	ExplorerBaseURL string `yaml:"explorer_base_url"`
}

// NewRegistry builds the provider registry from configuration.
func NewRegistry(cfgs []ProviderConfig, timeout time.Duration) (*Registry, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := &Registry{providers: make(map[string]*Provider)}
	for _, cfg := range cfgs {
		if cfg.ID == "" || cfg.RPCURL == "" {
			return nil, fmt.Errorf("provider config needs id and rpc_url (got id=%q)", cfg.ID)
		}
		if _, ok := r.providers[cfg.ID]; ok {
			return nil, fmt.Errorf("duplicate provider id %q", cfg.ID)
		}

		p := &Provider{
			ID:              cfg.ID,
			Name:            cfg.Name,
			RPCURL:          cfg.RPCURL,
			ExplorerBaseURL: cfg.ExplorerBaseURL,
			client:          NewClient(cfg.Name, cfg.RPCURL, timeout),
		}
		if cfg.ExplorerBaseURL != "" {
			p.explorer = NewExplorer(cfg.ExplorerBaseURL, timeout)
		}
		r.providers[cfg.ID] = p
		r.order = append(r.order, cfg.ID)
	}
	return r, nil
}

// Get returns the provider for id, or nil.
func (r *Registry) Get(id string) *Provider {
	return r.providers[id]
}

// All returns every provider in configuration order.
func (r *Registry) All() []*Provider {
	out := make([]*Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}
