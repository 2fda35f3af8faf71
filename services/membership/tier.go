package membership

import (
	"sort"

	"github.com/shopspring/decimal"

	"rewards-engine/pkg/config"
)

// TierTable resolves a holdings valuation to a tier.
type TierTable struct {
	tiers []config.Tier
}

func NewTierTable(tiers []config.Tier) TierTable {
	if len(tiers) == 0 {
		tiers = config.DefaultTiers()
	}
	sorted := make([]config.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinHoldingsUSD < sorted[j].MinHoldingsUSD
	})
	return TierTable{tiers: sorted}
}

// Resolve returns the highest tier whose threshold holdingsUSD reaches.
// Below every threshold it returns NONE with multiplier 1.
func (t TierTable) Resolve(holdingsUSD decimal.Decimal) config.Tier {
	resolved := config.Tier{Name: TierNone, Multiplier: 1}
	for _, tier := range t.tiers {
		if holdingsUSD.GreaterThanOrEqual(decimal.NewFromFloat(tier.MinHoldingsUSD)) {
			resolved = tier
		}
	}
	if resolved.Multiplier < 1 {
		resolved.Multiplier = 1
	}
	return resolved
}
