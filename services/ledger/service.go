package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-engine/pkg/db/option"
	"rewards-engine/pkg/db/pagination"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/logger"
	"rewards-engine/pkg/repository"
	"rewards-engine/services/campaign"
	"rewards-engine/services/entries"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	calc *entries.Calculator
	now  func() time.Time

	purchase repository.Repository[PurchaseRecord]
	entry    repository.Repository[CampaignEntry]
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Calculator *entries.Calculator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		calc:     p.Calculator,
		now:      time.Now,
		purchase: repository.ProvideStore[PurchaseRecord](p.DB),
		entry:    repository.ProvideStore[CampaignEntry](p.DB),
	}
}

// Holdings is the membership view that feeds entry recomputation.
type Holdings struct {
	HoldingsUSD     decimal.Decimal
	BaselineEntries int64
	Multiplier      int64
}

type Delta struct {
	PurchasedEntries int64
	SpentUSD         decimal.Decimal
}

type Commit struct {
	Purchase   *PurchaseRecord
	Delta      Delta
	Membership Holdings
}

// FindBySignature returns the purchase paid by signature, or nil.
func (s *Service) FindBySignature(ctx context.Context, signature string) (*PurchaseRecord, error) {
	rec, err := s.purchase.FindOne(ctx, &PurchaseRecord{Signature: signature})
	if err != nil {
		logger.L(ctx).Error("failed to query purchase by signature", zap.String("signature", signature), zap.Error(err))
		return nil, err
	}
	return rec, nil
}

// Commit persists a verified purchase and the wallet's recomputed campaign
// entries in one transaction. A second commit of the same signature fails
// with a Conflict error; a ceiling breach rolls everything back.
func (s *Service) Commit(ctx context.Context, c Commit) (*PurchaseRecord, *CampaignEntry, error) {
	p := c.Purchase
	if p == nil || p.Signature == "" || p.CampaignID == "" || p.Wallet == "" {
		return nil, nil, errutil.Fail(errutil.KindInvalidRequest, "purchase is incomplete")
	}
	if c.Delta.PurchasedEntries <= 0 {
		return nil, nil, errutil.Fail(errutil.KindInvalidRequest, "purchased entries must be positive")
	}

	log := logger.L(ctx).With(
		zap.String("campaign_id", p.CampaignID),
		zap.String("wallet", p.Wallet),
		zap.String("signature", p.Signature),
	)

	var entry *CampaignEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		if err := lockCampaign(tx, p.CampaignID); err != nil {
			return err
		}

		last, err := s.lastPurchase(ctx, tx, p.CampaignID)
		if err != nil {
			return err
		}
		previousHash := GenesisHash
		if last != nil {
			previousHash = last.Hash
		}

		multiplier := max(c.Membership.Multiplier, 1)
		p.ID = s.node.Generate().String()
		p.Status = StatusConfirmed
		p.Amount = p.Amount.Round(9)
		p.ActualUSD = p.ActualUSD.Round(8)
		p.EntriesPurchased = c.Delta.PurchasedEntries
		p.Multiplier = multiplier
		p.EntriesAwarded = c.Delta.PurchasedEntries * multiplier
		p.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
		p.PreviousHash = previousHash
		p.Hash = p.GenerateHash()

		if err := s.purchase.WithTrx(tx).Create(ctx, p); err != nil {
			return err
		}

		entry, err = s.applyEntry(ctx, tx, p.CampaignID, p.Wallet, c.Membership, c.Delta, p.Signature)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Info("purchase already committed")
			return nil, nil, errutil.Fail(errutil.KindConflict, "payment signature already recorded", errutil.WithCause(err))
		}
		if _, ok := errutil.KindOf(err); !ok {
			log.Error("failed to commit purchase", zap.Error(err))
		}
		return nil, nil, err
	}

	log.Info("purchase committed",
		zap.String("purchase_id", p.ID),
		zap.Int64("entries_awarded", p.EntriesAwarded),
		zap.Int64("final_entries", entry.FinalEntries),
	)

	return p, entry, nil
}

// AllocateHoldings creates or refreshes a wallet's campaign entries from its
// holdings alone.
func (s *Service) AllocateHoldings(ctx context.Context, campaignID, wallet string, h Holdings) (*CampaignEntry, error) {
	var entry *CampaignEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		if err := lockCampaign(tx, campaignID); err != nil {
			return err
		}

		var err error
		entry, err = s.applyEntry(ctx, tx, campaignID, wallet, h, Delta{SpentUSD: decimal.Zero}, "")
		return err
	})
	if err != nil {
		if _, ok := errutil.KindOf(err); !ok {
			logger.L(ctx).Error("failed to allocate holdings", zap.String("campaign_id", campaignID), zap.String("wallet", wallet), zap.Error(err))
		}
		return nil, err
	}
	return entry, nil
}

func (s *Service) GetEntry(ctx context.Context, campaignID, wallet string) (*CampaignEntry, error) {
	return s.entry.FindOne(ctx, &CampaignEntry{CampaignID: campaignID, Wallet: wallet})
}

func (s *Service) ListPurchases(ctx context.Context, campaignID string, page pagination.Pagination) ([]*PurchaseRecord, *pagination.PageInfo, error) {
	records, err := s.purchase.Find(ctx, &PurchaseRecord{CampaignID: campaignID}, option.ApplyPagination(page))
	if err != nil {
		logger.L(ctx).Error("failed to list purchases", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, nil, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	records, info := pagination.BuildCursorPageInfo(records, limit, func(r *PurchaseRecord) pagination.Cursor {
		return pagination.Cursor{ID: r.ID}
	})
	return records, info, nil
}

type ChainReport struct {
	Valid    bool   `json:"valid"`
	Checked  int    `json:"checked"`
	BrokenAt string `json:"brokenAt,omitempty"`
}

// VerifyChain recomputes every purchase hash of a campaign in id order.
func (s *Service) VerifyChain(ctx context.Context, campaignID string) (*ChainReport, error) {
	records, err := s.purchase.Find(ctx, &PurchaseRecord{CampaignID: campaignID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "id",
		OrderBy: "asc",
		Allow:   map[string]bool{"id": true},
	}))
	if err != nil {
		logger.L(ctx).Error("failed to query purchases", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, err
	}

	report := &ChainReport{Valid: true}
	lastHash := GenesisHash
	for _, r := range records {
		if r.PreviousHash != lastHash || r.Hash != r.GenerateHash() {
			report.Valid = false
			report.BrokenAt = r.ID
			return report, nil
		}
		lastHash = r.Hash
		report.Checked++
	}
	return report, nil
}

func (s *Service) lastPurchase(ctx context.Context, tx *gorm.DB, campaignID string) (*PurchaseRecord, error) {
	return s.purchase.WithTrx(tx).FindOne(ctx, &PurchaseRecord{CampaignID: campaignID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "id",
		OrderBy: "desc",
		Allow:   map[string]bool{"id": true},
	}))
}

// applyEntry must run inside a transaction holding the campaign row lock.
func (s *Service) applyEntry(ctx context.Context, tx *gorm.DB, campaignID, wallet string, h Holdings, d Delta, signature string) (*CampaignEntry, error) {
	entryTx := s.entry.WithTrx(tx)

	entry, err := entryTx.FindOne(ctx, &CampaignEntry{CampaignID: campaignID, Wallet: wallet})
	if err != nil {
		return nil, err
	}

	created := entry == nil
	if created {
		entry = &CampaignEntry{
			ID:            s.node.Generate().String(),
			CampaignID:    campaignID,
			Wallet:        wallet,
			TotalSpentUSD: decimal.Zero,
		}
	}
	previousFinal := entry.FinalEntries

	entry.PurchasedEntries += d.PurchasedEntries
	entry.BaseEntries = s.calc.BaseEntries(h.HoldingsUSD)
	entry.VIPEntries = max(h.BaselineEntries, 0)
	entry.Multiplier = max(h.Multiplier, 1)
	entry.TotalSpentUSD = entry.TotalSpentUSD.Add(d.SpentUSD).Round(8)
	if signature != "" {
		if err := entry.appendSignature(signature); err != nil {
			return nil, err
		}
	}

	final, err := s.calc.Compute(entries.Input{
		HoldingsUSD:     h.HoldingsUSD,
		BaselineEntries: entry.VIPEntries,
		PurchasedTotal:  entry.PurchasedEntries,
		Multiplier:      entry.Multiplier,
	})
	if err != nil {
		return nil, err
	}
	entry.FinalEntries = final

	if created {
		if err := entryTx.Create(ctx, entry); err != nil {
			return nil, err
		}
	} else {
		updates := map[string]any{
			"base_entries":      entry.BaseEntries,
			"vip_entries":       entry.VIPEntries,
			"purchased_entries": entry.PurchasedEntries,
			"multiplier":        entry.Multiplier,
			"final_entries":     entry.FinalEntries,
			"total_spent_usd":   entry.TotalSpentUSD,
			"signatures":        entry.Signatures,
			"updated_at":        s.now(),
		}
		if err := entryTx.Update(ctx, entry.ID, &updates); err != nil {
			return nil, err
		}
	}

	if delta := final - previousFinal; delta != 0 {
		if err := tx.Session(&gorm.Session{}).Model(&campaign.Campaign{}).
			Where("id = ?", campaignID).
			UpdateColumn("total_entries", gorm.Expr("total_entries + ?", delta)).Error; err != nil {
			return nil, err
		}
	}

	return entry, nil
}

func lockCampaign(tx *gorm.DB, campaignID string) error {
	var c campaign.Campaign
	err := tx.Session(&gorm.Session{}).Select("id").Where("id = ?", campaignID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errutil.Fail(errutil.KindNotFound, "campaign not found")
	}
	return err
}
