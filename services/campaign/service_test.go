package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewards-engine/pkg/celengine"
	"rewards-engine/pkg/errutil"
	"rewards-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type seqStub struct {
	code string
	err  error
}

func (s seqStub) NextCampaignCode(context.Context) (string, error) { return s.code, s.err }
func (s seqStub) NextJobCode(context.Context) (string, error)      { return "", nil }

func newTestService(t *testing.T, seq seqStub) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Campaign{}, &Package{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node, Seq: seq})
}

func TestCreateAndGetCampaign(t *testing.T) {
	svc := newTestService(t, seqStub{code: "CMP-261019-001"})
	ctx := context.Background()

	created, err := svc.CreateCampaign(ctx, CreateParams{
		Name:   "Launch",
		Status: StatusActive,
		Packages: []PackageParams{
			{Name: "small", Entries: 10, PriceUSD: decimal.NewFromInt(50)},
			{Name: "large", Entries: 25, PriceUSD: decimal.NewFromInt(100)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "CMP-261019-001", created.Code)
	require.Len(t, created.Packages, 2)

	got, err := svc.GetCampaign(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, StatusActive, got.Status)
	require.Len(t, got.Packages, 2)

	pkg := got.Package(created.Packages[1].ID)
	require.NotNil(t, pkg)
	require.Equal(t, int64(25), pkg.Entries)
	require.True(t, pkg.PriceUSD.Equal(decimal.NewFromInt(100)))
	require.Nil(t, got.Package("missing"))
}

func TestCreateCampaignCodeFailureIsNotFatal(t *testing.T) {
	svc := newTestService(t, seqStub{err: errors.New("redis down")})

	created, err := svc.CreateCampaign(context.Background(), CreateParams{Name: "No code"})
	require.NoError(t, err)
	require.Empty(t, created.Code)
	require.Equal(t, StatusUpcoming, created.Status)
}

func TestCreateCampaignSlug(t *testing.T) {
	svc := newTestService(t, seqStub{})
	ctx := context.Background()

	created, err := svc.CreateCampaign(ctx, CreateParams{Name: "Summer Drop 2026"})
	require.NoError(t, err)
	require.Equal(t, "summer-drop-2026", created.Slug)

	got, err := svc.GetCampaignBySlug(ctx, "summer-drop-2026")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, created.ID, got.ID)

	_, err = svc.CreateCampaign(ctx, CreateParams{Name: "Summer drop 2026"})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusConflict, be.Status())

	other, err := svc.CreateCampaign(ctx, CreateParams{Name: "Summer drop 2026", Slug: "summer-drop-2026-b"})
	require.NoError(t, err)
	require.Equal(t, "summer-drop-2026-b", other.Slug)
}

func TestCreateCampaignValidation(t *testing.T) {
	svc := newTestService(t, seqStub{})

	_, err := svc.CreateCampaign(context.Background(), CreateParams{})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadRequest, be.Status())

	_, err = svc.CreateCampaign(context.Background(), CreateParams{
		Name:     "Bad package",
		Packages: []PackageParams{{Entries: 0, PriceUSD: decimal.NewFromInt(1)}},
	})
	require.Error(t, err)
}

func TestCreateCampaignEligibility(t *testing.T) {
	svc := newTestService(t, seqStub{})
	ctx := context.Background()

	gold := []PackageParams{{Name: "vip", Entries: 50, PriceUSD: decimal.NewFromInt(20), Eligibility: `tier == "GOLD"`}}

	_, err := svc.CreateCampaign(ctx, CreateParams{Name: "VIP", Packages: gold})
	require.Error(t, err, "eligibility needs the rule engine")

	svc.rules, err = celengine.New()
	require.NoError(t, err)

	created, err := svc.CreateCampaign(ctx, CreateParams{Name: "VIP", Packages: gold})
	require.NoError(t, err)
	require.Equal(t, `tier == "GOLD"`, created.Packages[0].Eligibility)

	bad := []PackageParams{{Name: "vip", Entries: 50, PriceUSD: decimal.NewFromInt(20), Eligibility: `tier ==`}}
	_, err = svc.CreateCampaign(ctx, CreateParams{Name: "VIP", Packages: bad})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
}

func TestGetCampaignMissing(t *testing.T) {
	svc := newTestService(t, seqStub{})

	got, err := svc.GetCampaign(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateStatus(t *testing.T) {
	svc := newTestService(t, seqStub{})
	ctx := context.Background()

	created, err := svc.CreateCampaign(ctx, CreateParams{Name: "Flow"})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, created.ID, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, updated.Status)

	_, err = svc.UpdateStatus(ctx, created.ID, StatusUpcoming)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())

	_, err = svc.UpdateStatus(ctx, "missing", StatusActive)
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestIsOpen(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	require.True(t, (&Campaign{Status: StatusActive}).IsOpen(now))
	require.True(t, (&Campaign{Status: StatusActive, StartAt: &before, EndAt: &after}).IsOpen(now))
	require.False(t, (&Campaign{Status: StatusUpcoming}).IsOpen(now))
	require.False(t, (&Campaign{Status: StatusEnded}).IsOpen(now))
	require.False(t, (&Campaign{Status: StatusActive, StartAt: &after}).IsOpen(now))
	require.False(t, (&Campaign{Status: StatusActive, EndAt: &before}).IsOpen(now))
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusUpcoming.CanTransitionTo(StatusActive))
	require.True(t, StatusActive.CanTransitionTo(StatusEnded))
	require.True(t, StatusEnded.CanTransitionTo(StatusDrawn))
	require.False(t, StatusDrawn.CanTransitionTo(StatusActive))
	require.False(t, StatusActive.CanTransitionTo(StatusUpcoming))
}
