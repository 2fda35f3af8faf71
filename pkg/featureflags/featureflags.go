package featureflags

import (
	"context"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-engine/pkg/config"
	"rewards-engine/pkg/logger"
)

var Module = fx.Module("featureflags", fx.Provide(New))

// PurchasesEnabled switches purchase intake on and off without a deploy.
const PurchasesEnabled = "purchases_enabled"

type flagSource interface {
	GetEnvironmentFlags() (flagsmith.Flags, error)
}

type Flags struct {
	client flagSource
}

// New returns a Flags backed by Flagsmith, or one that always answers with
// the caller's fallback when FLAGSMITH.API_KEY is empty.
func New(cfg *config.Config) *Flags {
	if cfg.Flagsmith.ApiKey == "" {
		return &Flags{}
	}

	opts := []flagsmith.Option{flagsmith.WithAnalytics()}
	if cfg.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(cfg.Flagsmith.Addr))
	}

	return &Flags{client: flagsmith.NewClient(cfg.Flagsmith.ApiKey, opts...)}
}

// Enabled reports whether the named environment flag is on. Lookup failures
// return fallback.
func (f *Flags) Enabled(ctx context.Context, name string, fallback bool) bool {
	if f == nil || f.client == nil {
		return fallback
	}

	flags, err := f.client.GetEnvironmentFlags()
	if err != nil {
		logger.L(ctx).Warn("feature flag lookup failed", zap.String("flag", name), zap.Error(err))
		return fallback
	}

	on, err := flags.IsFeatureEnabled(name)
	if err != nil {
		return fallback
	}
	return on
}
