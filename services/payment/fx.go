package payment

import (
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"rewards-engine/pkg/config"
)

var Module = fx.Module("payment",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg *config.Config) *Verifier {
	return NewVerifier(Config{
		Tolerance:      decimal.NewFromFloat(cfg.Payment.Tolerance),
		TreasuryWallet: cfg.Payment.TreasuryWallet,
		RewardMint:     cfg.Payment.RewardMint,
		StableMint:     cfg.Payment.StableMint,
	})
}
