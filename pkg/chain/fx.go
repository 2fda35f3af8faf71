package chain

import (
	"rewards-engine/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("chain",
	fx.Provide(NewFromConfig),
)

// NewFromConfig builds a pool of Solana RPC endpoints in LEDGER.ENDPOINTS order.
func NewFromConfig(cfg *config.Config) (*Pool, error) {
	endpoints := make([]Endpoint, 0, len(cfg.Ledger.Endpoints))
	for _, ep := range cfg.Ledger.Endpoints {
		endpoints = append(endpoints, Endpoint{
			Name:    ep.Name,
			Timeout: ep.Timeout,
			Retries: ep.Retries,
			Fetcher: NewSolanaFetcher(ep.URL),
		})
	}

	return NewPool(PoolConfig{
		IndexingDelay: cfg.Ledger.IndexingDelay,
		BaseBackoff:   cfg.Ledger.BaseBackoff,
		MaxBackoff:    cfg.Ledger.MaxBackoff,
	}, endpoints...)
}
