package pricing

import (
	"fmt"

	"rewards-engine/pkg/config"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewFromConfig(p Params) (*Oracle, error) {
	cfg := p.Config.Pricing

	sources := make([]Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		switch s.Type {
		case "coingecko":
			sources = append(sources, NewCoinGecko(s.Name, s.URL, s.ApiKey, cfg.NativeID, cfg.RewardID, cfg.Timeout))
		case "jupiter":
			sources = append(sources, NewJupiter(s.Name, s.URL, cfg.NativeMint, p.Config.Payment.RewardMint, cfg.Timeout))
		default:
			return nil, fmt.Errorf("pricing: unknown source type %q", s.Type)
		}
	}

	opts := Options{
		TTL:               cfg.TTL,
		DegradedTTL:       cfg.DegradedTTL,
		SourceTimeout:     cfg.Timeout,
		FallbackNativeUSD: decimal.NewFromFloat(cfg.FallbackNativeUSD),
		FallbackRewardUSD: decimal.NewFromFloat(cfg.FallbackRewardUSD),
	}
	if p.Redis != nil {
		opts.Store = NewRedisStore(p.Redis)
	}

	return NewOracle(opts, sources...), nil
}
