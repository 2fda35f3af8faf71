package membership

import (
	"time"

	"github.com/shopspring/decimal"
)

const TierNone = "NONE"

// Membership is the per-wallet holdings and tier record. It is written by
// balance syncs and subscriptions, and read on every purchase.
type Membership struct {
	ID                    string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Wallet                string          `gorm:"column:wallet;type:varchar(64);uniqueIndex;not null"`
	Holdings              decimal.Decimal `gorm:"column:holdings;type:decimal(38,9);not null;default:0"`
	HoldingsUSD           decimal.Decimal `gorm:"column:holdings_usd;type:decimal(20,8);not null;default:0"`
	Tier                  string          `gorm:"column:tier;type:varchar(32);not null;default:'NONE'"`
	Multiplier            int64           `gorm:"column:multiplier;not null;default:1"`
	BaselineEntries       int64           `gorm:"column:baseline_entries;not null;default:0"`
	SubscriptionExpiresAt *time.Time      `gorm:"column:subscription_expires_at;index"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Membership) SubscriptionActive(now time.Time) bool {
	return m.SubscriptionExpiresAt != nil && now.Before(*m.SubscriptionExpiresAt)
}

// Snapshot is the read-only view used for entry calculation.
type Snapshot struct {
	Wallet                string          `json:"wallet"`
	Tier                  string          `json:"tier"`
	Multiplier            int64           `json:"multiplier"`
	BaselineEntries       int64           `json:"baselineEntries"`
	Holdings              decimal.Decimal `json:"holdings"`
	HoldingsUSD           decimal.Decimal `json:"holdingsUsd"`
	SubscriptionExpiresAt *time.Time      `json:"subscriptionExpiresAt,omitempty"`
}

// Default is the snapshot of a wallet without a membership record.
func Default(wallet string) Snapshot {
	return Snapshot{
		Wallet:      wallet,
		Tier:        TierNone,
		Multiplier:  1,
		Holdings:    decimal.Zero,
		HoldingsUSD: decimal.Zero,
	}
}

func (m *Membership) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Wallet:                m.Wallet,
		Tier:                  m.Tier,
		Multiplier:            m.Multiplier,
		BaselineEntries:       m.BaselineEntries,
		Holdings:              m.Holdings,
		HoldingsUSD:           m.HoldingsUSD,
		SubscriptionExpiresAt: m.SubscriptionExpiresAt,
	}
	if s.Multiplier < 1 {
		s.Multiplier = 1
	}
	if !m.SubscriptionActive(now) {
		s.BaselineEntries = 0
	}
	return s
}
