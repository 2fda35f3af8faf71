package entries

import (
	"rewards-engine/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("entries",
	fx.Provide(func(cfg *config.Config) *Calculator {
		return NewCalculator(cfg.Entries.Ceiling, cfg.Entries.USDPerEntry)
	}),
)
