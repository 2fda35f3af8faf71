package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-engine/pkg/db/option"
	"rewards-engine/pkg/db/pagination"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/repository"
	"rewards-engine/services/campaign"
	"rewards-engine/services/entries"
	"rewards-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func newTestService(t *testing.T, ceiling int64) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &campaign.Campaign{}, &campaign.Package{}, &PurchaseRecord{}, &CampaignEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&campaign.Campaign{ID: "cmp-1", Slug: "launch", Name: "Launch", Status: campaign.StatusActive}).Error)

	return NewService(ServiceParams{DB: db, Node: node, Calculator: entries.NewCalculator(ceiling, 10)}), db
}

func purchaseFor(sig, wallet string) *PurchaseRecord {
	return &PurchaseRecord{
		CampaignID: "cmp-1",
		PackageID:  "pkg-1",
		Wallet:     wallet,
		Signature:  sig,
		Currency:   "SOL",
		Amount:     decimal.RequireFromString("0.25"),
		ActualUSD:  decimal.NewFromInt(50),
	}
}

func TestNewService(t *testing.T) {
	svc, _ := newTestService(t, 50000)

	require.NotNil(t, svc.purchase)
	require.NotNil(t, svc.entry)
}

func TestCommitCreatesPurchaseAndEntry(t *testing.T) {
	svc, db := newTestService(t, 50000)
	ctx := context.Background()

	rec, entry, err := svc.Commit(ctx, Commit{
		Purchase:   purchaseFor("sig-1", "wallet-1"),
		Delta:      Delta{PurchasedEntries: 10, SpentUSD: decimal.NewFromInt(50)},
		Membership: Holdings{HoldingsUSD: decimal.NewFromInt(150), BaselineEntries: 5, Multiplier: 2},
	})
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, rec.Status)
	require.Equal(t, int64(20), rec.EntriesAwarded)
	require.Equal(t, int64(2), rec.Multiplier)
	require.Equal(t, GenesisHash, rec.PreviousHash)

	// (15 base + 5 vip + 10 purchased) * 2
	require.Equal(t, int64(15), entry.BaseEntries)
	require.Equal(t, int64(60), entry.FinalEntries)
	sigs, err := entry.SignatureList()
	require.NoError(t, err)
	require.Equal(t, []string{"sig-1"}, sigs)

	var cmp campaign.Campaign
	require.NoError(t, db.Take(&cmp, "id = ?", "cmp-1").Error)
	require.Equal(t, int64(60), cmp.TotalEntries)

	found, err := svc.FindBySignature(ctx, "sig-1")
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)
}

func TestCommitAccumulatesPurchases(t *testing.T) {
	svc, db := newTestService(t, 50000)
	ctx := context.Background()
	holdings := Holdings{Multiplier: 1}

	_, _, err := svc.Commit(ctx, Commit{Purchase: purchaseFor("sig-1", "wallet-1"), Delta: Delta{PurchasedEntries: 10, SpentUSD: decimal.NewFromInt(50)}, Membership: holdings})
	require.NoError(t, err)
	second, entry, err := svc.Commit(ctx, Commit{Purchase: purchaseFor("sig-2", "wallet-1"), Delta: Delta{PurchasedEntries: 25, SpentUSD: decimal.NewFromInt(100)}, Membership: holdings})
	require.NoError(t, err)

	require.Equal(t, int64(35), entry.PurchasedEntries)
	require.Equal(t, int64(35), entry.FinalEntries)
	require.True(t, entry.TotalSpentUSD.Equal(decimal.NewFromInt(150)))
	sigs, err := entry.SignatureList()
	require.NoError(t, err)
	require.Equal(t, []string{"sig-1", "sig-2"}, sigs)
	require.NotEqual(t, GenesisHash, second.PreviousHash)

	var cmp campaign.Campaign
	require.NoError(t, db.Take(&cmp, "id = ?", "cmp-1").Error)
	require.Equal(t, int64(35), cmp.TotalEntries)
}

func TestCommitDuplicateSignatureConflict(t *testing.T) {
	svc, _ := newTestService(t, 50000)
	ctx := context.Background()
	c := Commit{Delta: Delta{PurchasedEntries: 10, SpentUSD: decimal.NewFromInt(50)}, Membership: Holdings{Multiplier: 1}}

	c.Purchase = purchaseFor("sig-1", "wallet-1")
	_, _, err := svc.Commit(ctx, c)
	require.NoError(t, err)

	c.Purchase = purchaseFor("sig-1", "wallet-1")
	_, _, err = svc.Commit(ctx, c)
	require.True(t, errutil.IsKind(err, errutil.KindConflict))

	entry, err := svc.GetEntry(ctx, "cmp-1", "wallet-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.PurchasedEntries)
}

func TestCommitCeilingRollsBack(t *testing.T) {
	svc, db := newTestService(t, 100)
	ctx := context.Background()

	_, _, err := svc.Commit(ctx, Commit{
		Purchase:   purchaseFor("sig-big", "wallet-1"),
		Delta:      Delta{PurchasedEntries: 60, SpentUSD: decimal.NewFromInt(300)},
		Membership: Holdings{Multiplier: 2},
	})
	require.True(t, errutil.IsKind(err, errutil.KindLimitExceeded))

	rec, err := svc.FindBySignature(ctx, "sig-big")
	require.NoError(t, err)
	require.Nil(t, rec)

	entry, err := svc.GetEntry(ctx, "cmp-1", "wallet-1")
	require.NoError(t, err)
	require.Nil(t, entry)

	var cmp campaign.Campaign
	require.NoError(t, db.Take(&cmp, "id = ?", "cmp-1").Error)
	require.Zero(t, cmp.TotalEntries)
}

func TestCommitCorruptSignaturesRollsBack(t *testing.T) {
	svc, db := newTestService(t, 50000)
	ctx := context.Background()
	holdings := Holdings{Multiplier: 1}

	_, _, err := svc.Commit(ctx, Commit{Purchase: purchaseFor("sig-1", "wallet-1"), Delta: Delta{PurchasedEntries: 10, SpentUSD: decimal.NewFromInt(50)}, Membership: holdings})
	require.NoError(t, err)
	require.NoError(t, db.Model(&CampaignEntry{}).Where("wallet = ?", "wallet-1").Update("signatures", "{not json").Error)

	_, _, err = svc.Commit(ctx, Commit{Purchase: purchaseFor("sig-2", "wallet-1"), Delta: Delta{PurchasedEntries: 10, SpentUSD: decimal.NewFromInt(50)}, Membership: holdings})
	require.ErrorContains(t, err, "decode signatures")

	rec, err := svc.FindBySignature(ctx, "sig-2")
	require.NoError(t, err)
	require.Nil(t, rec)

	entry, err := svc.GetEntry(ctx, "cmp-1", "wallet-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.PurchasedEntries)
	_, err = entry.SignatureList()
	require.Error(t, err)
}

func TestCommitUnknownCampaign(t *testing.T) {
	svc, _ := newTestService(t, 50000)

	p := purchaseFor("sig-1", "wallet-1")
	p.CampaignID = "missing"
	_, _, err := svc.Commit(context.Background(), Commit{Purchase: p, Delta: Delta{PurchasedEntries: 1}})
	require.True(t, errutil.IsKind(err, errutil.KindNotFound))
}

func TestCommitRejectsIncompletePurchase(t *testing.T) {
	svc, _ := newTestService(t, 50000)

	_, _, err := svc.Commit(context.Background(), Commit{Purchase: &PurchaseRecord{}})
	require.True(t, errutil.IsKind(err, errutil.KindInvalidRequest))
}

func TestAllocateHoldings(t *testing.T) {
	svc, db := newTestService(t, 50000)
	ctx := context.Background()

	entry, err := svc.AllocateHoldings(ctx, "cmp-1", "wallet-1", Holdings{HoldingsUSD: decimal.NewFromInt(255), Multiplier: 3})
	require.NoError(t, err)
	require.Equal(t, int64(25), entry.BaseEntries)
	require.Equal(t, int64(75), entry.FinalEntries)
	sigs, err := entry.SignatureList()
	require.NoError(t, err)
	require.Empty(t, sigs)

	entry, err = svc.AllocateHoldings(ctx, "cmp-1", "wallet-1", Holdings{HoldingsUSD: decimal.NewFromInt(100), Multiplier: 1})
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.FinalEntries)

	var cmp campaign.Campaign
	require.NoError(t, db.Take(&cmp, "id = ?", "cmp-1").Error)
	require.Equal(t, int64(10), cmp.TotalEntries)
}

func TestListPurchasesPaginates(t *testing.T) {
	svc, _ := newTestService(t, 50000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := svc.Commit(ctx, Commit{
			Purchase:   purchaseFor(fmt.Sprintf("sig-%d", i), fmt.Sprintf("wallet-%d", i)),
			Delta:      Delta{PurchasedEntries: 1, SpentUSD: decimal.NewFromInt(10)},
			Membership: Holdings{Multiplier: 1},
		})
		require.NoError(t, err)
	}

	page, info, err := svc.ListPurchases(ctx, "cmp-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "sig-0", page[0].Signature)

	seen := len(page)
	cursor := info.NextCursor
	for cursor != "" {
		page, info, err = svc.ListPurchases(ctx, "cmp-1", pagination.Pagination{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		seen += len(page)
		cursor = info.NextCursor
	}
	require.Equal(t, 5, seen)
}

func TestVerifyChainAfterCommits(t *testing.T) {
	svc, db := newTestService(t, 50000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.Commit(ctx, Commit{
			Purchase:   purchaseFor(fmt.Sprintf("sig-%d", i), "wallet-1"),
			Delta:      Delta{PurchasedEntries: 2, SpentUSD: decimal.NewFromInt(10)},
			Membership: Holdings{Multiplier: 1},
		})
		require.NoError(t, err)
	}

	report, err := svc.VerifyChain(ctx, "cmp-1")
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, 3, report.Checked)

	require.NoError(t, db.Model(&PurchaseRecord{}).Where("signature = ?", "sig-1").Update("entries_awarded", 999).Error)

	report, err = svc.VerifyChain(ctx, "cmp-1")
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.NotEmpty(t, report.BrokenAt)
}

func TestVerifyChainBrokenLink(t *testing.T) {
	first := &PurchaseRecord{ID: "1", CampaignID: "cmp-1", Signature: "a", PreviousHash: GenesisHash}
	first.Hash = first.GenerateHash()

	second := &PurchaseRecord{ID: "2", CampaignID: "cmp-1", Signature: "b", PreviousHash: "not-first"}
	second.Hash = second.GenerateHash()

	svc := &Service{
		purchase: &repoMock[PurchaseRecord]{
			findFn: func(ctx context.Context, _ *PurchaseRecord, opts ...option.QueryOption) ([]*PurchaseRecord, error) {
				return []*PurchaseRecord{first, second}, nil
			},
		},
	}

	report, err := svc.VerifyChain(context.Background(), "cmp-1")
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, "2", report.BrokenAt)
	require.Equal(t, 1, report.Checked)
}

func TestFindBySignatureError(t *testing.T) {
	svc := &Service{
		purchase: &repoMock[PurchaseRecord]{
			findOneFn: func(ctx context.Context, _ *PurchaseRecord, opts ...option.QueryOption) (*PurchaseRecord, error) {
				return nil, errors.New("db down")
			},
		},
	}

	rec, err := svc.FindBySignature(context.Background(), "sig")
	require.Nil(t, rec)
	require.Error(t, err)
}
