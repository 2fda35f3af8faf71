package membership

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-engine/pkg/config"
	"rewards-engine/pkg/db/option"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/logger"
	"rewards-engine/pkg/repository"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	tiers TierTable
	now   func() time.Time

	membership repository.Repository[Membership]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		node:       p.Node,
		tiers:      NewTierTable(p.Config.Membership.Tiers),
		now:        time.Now,
		membership: repository.ProvideStore[Membership](p.DB),
	}
}

// GetMembership returns the wallet's snapshot. Wallets without a record get
// the NONE tier, and expired subscriptions contribute no baseline entries.
func (s *Service) GetMembership(ctx context.Context, wallet string) (Snapshot, error) {
	m, err := s.membership.FindOne(ctx, &Membership{Wallet: wallet})
	if err != nil {
		logger.L(ctx).Error("failed to load membership", zap.String("wallet", wallet), zap.Error(err))
		return Snapshot{}, err
	}
	if m == nil {
		return Default(wallet), nil
	}
	return m.Snapshot(s.now()), nil
}

type UpsertParams struct {
	Wallet      string
	Holdings    decimal.Decimal
	HoldingsUSD decimal.Decimal
}

// Upsert records a balance sync and recomputes the tier from holdings USD.
func (s *Service) Upsert(ctx context.Context, p UpsertParams) (*Membership, error) {
	if p.Wallet == "" {
		return nil, errutil.BadRequest("wallet is required", nil)
	}
	if p.Holdings.IsNegative() || p.HoldingsUSD.IsNegative() {
		return nil, errutil.BadRequest("holdings must not be negative", nil)
	}

	tier := s.tiers.Resolve(p.HoldingsUSD)

	var out *Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.membership.WithTrx(tx)
		existing, err := repo.FindOne(ctx, &Membership{Wallet: p.Wallet}, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		if existing == nil {
			out = &Membership{
				ID:          s.node.Generate().String(),
				Wallet:      p.Wallet,
				Holdings:    p.Holdings,
				HoldingsUSD: p.HoldingsUSD,
				Tier:        tier.Name,
				Multiplier:  tier.Multiplier,
			}
			return repo.Create(ctx, out)
		}

		updates := map[string]any{
			"holdings":     p.Holdings,
			"holdings_usd": p.HoldingsUSD,
			"tier":         tier.Name,
			"multiplier":   tier.Multiplier,
			"updated_at":   s.now(),
		}
		if err := repo.Update(ctx, existing.ID, &updates); err != nil {
			return err
		}
		existing.Holdings = p.Holdings
		existing.HoldingsUSD = p.HoldingsUSD
		existing.Tier = tier.Name
		existing.Multiplier = tier.Multiplier
		out = existing
		return nil
	})
	if err != nil {
		logger.L(ctx).Error("failed to upsert membership", zap.String("wallet", p.Wallet), zap.Error(err))
		return nil, err
	}

	return out, nil
}

// Subscribe extends the wallet's subscription until the given time and grants
// the current tier's baseline entries on top of any accumulated ones.
func (s *Service) Subscribe(ctx context.Context, wallet string, until time.Time) (*Membership, error) {
	var out *Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.membership.WithTrx(tx)
		existing, err := repo.FindOne(ctx, &Membership{Wallet: wallet}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if existing == nil {
			return errutil.NotFound("membership not found", nil)
		}

		tier := s.tiers.Resolve(existing.HoldingsUSD)
		baseline := tier.BaselineEntries
		if existing.SubscriptionActive(s.now()) {
			baseline += existing.BaselineEntries
		}

		updates := map[string]any{
			"baseline_entries":        baseline,
			"subscription_expires_at": until,
			"updated_at":              s.now(),
		}
		if err := repo.Update(ctx, existing.ID, &updates); err != nil {
			return err
		}
		existing.BaselineEntries = baseline
		existing.SubscriptionExpiresAt = &until
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetExpired zeroes baseline entries of subscriptions that ended before now.
func (s *Service) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Membership{}).
		Where("subscription_expires_at IS NOT NULL AND subscription_expires_at <= ? AND baseline_entries > 0", now).
		Updates(map[string]any{
			"baseline_entries": 0,
			"updated_at":       now,
		})
	if res.Error != nil {
		zap.L().Error("failed to reset expired memberships", zap.Error(res.Error))
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
