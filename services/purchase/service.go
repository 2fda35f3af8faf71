package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-engine/pkg/celengine"
	"rewards-engine/pkg/chain"
	"rewards-engine/pkg/config"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/featureflags"
	"rewards-engine/pkg/logger"
	"rewards-engine/pkg/pricing"
	"rewards-engine/pkg/ratelimit"
	"rewards-engine/services/campaign"
	"rewards-engine/services/entries"
	"rewards-engine/services/ledger"
	"rewards-engine/services/membership"
	"rewards-engine/services/payment"
)

const notVisibleDetail = "payment not yet visible on-chain, please retry in 30 seconds"

type TransactionFetcher interface {
	FetchConfirmedTransaction(ctx context.Context, signature string) (*chain.Transaction, error)
	Budget() time.Duration
}

type RateProvider interface {
	GetRates(ctx context.Context) pricing.Rates
}

type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
}

type MembershipStore interface {
	GetMembership(ctx context.Context, wallet string) (membership.Snapshot, error)
}

type PurchaseLedger interface {
	FindBySignature(ctx context.Context, signature string) (*ledger.PurchaseRecord, error)
	GetEntry(ctx context.Context, campaignID, wallet string) (*ledger.CampaignEntry, error)
	Commit(ctx context.Context, c ledger.Commit) (*ledger.PurchaseRecord, *ledger.CampaignEntry, error)
	AllocateHoldings(ctx context.Context, campaignID, wallet string, h ledger.Holdings) (*ledger.CampaignEntry, error)
}

type Limiter interface {
	Allow(key string) bool
}

type FeatureGate interface {
	Enabled(ctx context.Context, name string, fallback bool) bool
}

type Service struct {
	fetcher     TransactionFetcher
	rates       RateProvider
	campaigns   CampaignStore
	memberships MembershipStore
	ledger      PurchaseLedger
	limiter     Limiter
	gate        FeatureGate
	rules       *celengine.Engine
	verifier    *payment.Verifier
	calc        *entries.Calculator

	allowedCurrencies []string
	priceTimeout      time.Duration
	now               func() time.Time
	tracer            trace.Tracer
}

type ServiceParams struct {
	fx.In

	Config      *config.Config
	Pool        *chain.Pool
	Oracle      *pricing.Oracle
	Campaigns   *campaign.Service
	Memberships *membership.Service
	Ledger      *ledger.Service
	Limiter     *ratelimit.Limiter
	Flags       *featureflags.Flags `optional:"true"`
	Rules       *celengine.Engine
	Verifier    *payment.Verifier
	Calculator  *entries.Calculator
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		fetcher:           p.Pool,
		rates:             p.Oracle,
		campaigns:         p.Campaigns,
		memberships:       p.Memberships,
		ledger:            p.Ledger,
		limiter:           p.Limiter,
		rules:             p.Rules,
		verifier:          p.Verifier,
		calc:              p.Calculator,
		allowedCurrencies: p.Config.Payment.AllowedCurrencies,
		priceTimeout:      p.Config.Pricing.Timeout,
		now:               time.Now,
		tracer:            otel.Tracer("rewards-engine/purchase"),
	}
	if p.Flags != nil {
		s.gate = p.Flags
	}
	return s
}

// Deadline bounds one purchase: the full ledger retry budget plus one price lookup.
func (s *Service) Deadline() time.Duration {
	return s.fetcher.Budget() + s.priceTimeout
}

// Purchase verifies an on-chain payment and awards the package's entries.
// Repeating a request with the same signature returns the stored result.
func (s *Service) Purchase(ctx context.Context, req Request) (resp *Response, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "purchase.Purchase", trace.WithAttributes(
		attribute.String("campaign.id", req.CampaignID),
		attribute.String("package.id", req.PackageID),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	log := logger.L(ctx).With(
		zap.String("campaign_id", req.CampaignID),
		zap.String("wallet", req.Wallet),
		zap.String("signature", req.PaymentSignature),
	)

	defer func() {
		outcome := "accepted"
		if err != nil {
			outcome = string(kindOrUnavailable(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		outcomes.WithLabelValues(outcome, req.Currency).Inc()
		duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	currency, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	if s.gate != nil && !s.gate.Enabled(ctx, featureflags.PurchasesEnabled, true) {
		return nil, errutil.Fail(errutil.KindUnavailable, "purchases are paused, please retry later")
	}

	if s.limiter != nil && !s.limiter.Allow(req.Wallet) {
		return nil, errutil.Fail(errutil.KindRateLimited, "too many purchase attempts for this wallet", errutil.WithRetryAfter(time.Second))
	}

	ctx, cancel := context.WithTimeout(ctx, s.Deadline())
	defer cancel()

	existing, err := s.ledger.FindBySignature(ctx, req.PaymentSignature)
	if err != nil {
		return nil, unavailable(err)
	}
	if existing != nil {
		log.Info("signature already recorded")
		return replay(existing, req)
	}

	cmp, err := s.campaigns.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, unavailable(err)
	}
	if cmp == nil {
		return nil, errutil.Fail(errutil.KindNotFound, "campaign not found")
	}
	pkg := cmp.Package(req.PackageID)
	if pkg == nil {
		return nil, errutil.Fail(errutil.KindNotFound, "package not found in campaign")
	}
	if !cmp.IsOpen(s.now()) {
		return nil, errutil.Failf(errutil.KindCampaignClosed, "campaign is %s", cmp.Status)
	}

	snap, err := s.memberships.GetMembership(ctx, req.Wallet)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := s.checkEligibility(pkg, snap); err != nil {
		return nil, err
	}

	tx, err := s.fetcher.FetchConfirmedTransaction(ctx, req.PaymentSignature)
	if err != nil {
		return nil, fetchError(err)
	}

	rates := s.rates.GetRates(ctx)
	if rates.Degraded {
		log.Warn("verifying against degraded prices", zap.String("price_source", rates.Source))
	}

	verified, err := s.verifier.Verify(payment.Request{
		Tx:          tx,
		Payer:       req.Wallet,
		ExpectedUSD: pkg.PriceUSD,
		Currency:    currency,
		Rates:       rates,
	})
	if err != nil {
		log.Info("payment rejected", zap.Error(err))
		return nil, err
	}

	holdings := ledger.Holdings{
		HoldingsUSD:     snap.HoldingsUSD,
		BaselineEntries: snap.BaselineEntries,
		Multiplier:      snap.Multiplier,
	}
	if err := s.precheckCeiling(ctx, req, holdings, pkg.Entries); err != nil {
		if errutil.IsKind(err, errutil.KindLimitExceeded) {
			// A concurrent duplicate may have committed since the first lookup.
			if rec, ferr := s.ledger.FindBySignature(ctx, req.PaymentSignature); ferr == nil && rec != nil {
				return replay(rec, req)
			}
		}
		return nil, err
	}

	rec, _, err := s.ledger.Commit(ctx, ledger.Commit{
		Purchase: &ledger.PurchaseRecord{
			CampaignID: req.CampaignID,
			PackageID:  req.PackageID,
			Wallet:     req.Wallet,
			Signature:  req.PaymentSignature,
			Currency:   string(verified.Currency),
			Amount:     verified.ActualAmount,
			ActualUSD:  verified.ActualUSD,
			Degraded:   verified.Degraded,
		},
		Delta: ledger.Delta{
			PurchasedEntries: pkg.Entries,
			SpentUSD:         verified.ActualUSD,
		},
		Membership: holdings,
	})
	if err != nil {
		if errutil.IsKind(err, errutil.KindConflict) {
			return s.recoverConflict(ctx, req)
		}
		if _, ok := errutil.KindOf(err); ok {
			return nil, err
		}
		return nil, unavailable(err)
	}

	return responseFrom(rec), nil
}

// Lookup returns the stored result for a payment signature.
func (s *Service) Lookup(ctx context.Context, signature string) (*Response, error) {
	rec, err := s.ledger.FindBySignature(ctx, signature)
	if err != nil {
		return nil, unavailable(err)
	}
	if rec == nil {
		return nil, errutil.Fail(errutil.KindNotFound, "no purchase for this signature")
	}
	return responseFrom(rec), nil
}

// SyncEntries recomputes a wallet's holdings-based entries for a campaign.
func (s *Service) SyncEntries(ctx context.Context, campaignID, wallet string) (*ledger.CampaignEntry, error) {
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return nil, errutil.Fail(errutil.KindInvalidRequest, "wallet is not a valid public key")
	}

	cmp, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, unavailable(err)
	}
	if cmp == nil {
		return nil, errutil.Fail(errutil.KindNotFound, "campaign not found")
	}
	if !cmp.IsOpen(s.now()) {
		return nil, errutil.Failf(errutil.KindCampaignClosed, "campaign is %s", cmp.Status)
	}

	snap, err := s.memberships.GetMembership(ctx, wallet)
	if err != nil {
		return nil, unavailable(err)
	}

	entry, err := s.ledger.AllocateHoldings(ctx, campaignID, wallet, ledger.Holdings{
		HoldingsUSD:     snap.HoldingsUSD,
		BaselineEntries: snap.BaselineEntries,
		Multiplier:      snap.Multiplier,
	})
	if err != nil {
		if _, ok := errutil.KindOf(err); ok {
			return nil, err
		}
		return nil, unavailable(err)
	}
	return entry, nil
}

func (s *Service) validate(req Request) (payment.Currency, error) {
	if req.CampaignID == "" || req.PackageID == "" {
		return "", errutil.Fail(errutil.KindInvalidRequest, "campaignId and packageId are required")
	}
	if _, err := solana.PublicKeyFromBase58(req.Wallet); err != nil {
		return "", errutil.Fail(errutil.KindInvalidRequest, "wallet is not a valid public key", errutil.WithDetail("wallet", req.Wallet))
	}
	if _, err := solana.SignatureFromBase58(req.PaymentSignature); err != nil {
		return "", errutil.Fail(errutil.KindInvalidRequest, "paymentSignature is not a valid signature")
	}
	currency, ok := payment.ParseCurrency(req.Currency, s.allowedCurrencies)
	if !ok {
		return "", errutil.Failf(errutil.KindUnsupportedCurrency, "currency %q is not accepted", req.Currency)
	}
	return currency, nil
}

func (s *Service) checkEligibility(pkg *campaign.Package, snap membership.Snapshot) error {
	if pkg.Eligibility == "" {
		return nil
	}
	if s.rules == nil {
		return errutil.Fail(errutil.KindUnavailable, "package eligibility rules are not loaded")
	}

	ok, err := s.rules.Evaluate(pkg.Eligibility, map[string]any{
		celengine.VarTier:        snap.Tier,
		celengine.VarMultiplier:  snap.Multiplier,
		celengine.VarHoldingsUSD: snap.HoldingsUSD.InexactFloat64(),
		celengine.VarWallet:      snap.Wallet,
	})
	if err != nil {
		return errutil.Fail(errutil.KindUnavailable, "package eligibility could not be evaluated", errutil.WithCause(err))
	}
	if !ok {
		return errutil.Fail(errutil.KindInvalidRequest, "wallet does not meet this package's membership requirement",
			errutil.WithDetail("tier", snap.Tier))
	}
	return nil
}

func (s *Service) precheckCeiling(ctx context.Context, req Request, h ledger.Holdings, add int64) error {
	var purchased int64
	entry, err := s.ledger.GetEntry(ctx, req.CampaignID, req.Wallet)
	if err != nil {
		return unavailable(err)
	}
	if entry != nil {
		purchased = entry.PurchasedEntries
	}

	_, err = s.calc.Compute(entries.Input{
		HoldingsUSD:     h.HoldingsUSD,
		BaselineEntries: h.BaselineEntries,
		PurchasedTotal:  purchased + add,
		Multiplier:      h.Multiplier,
	})
	return err
}

// recoverConflict handles losing a same-signature race at commit time.
func (s *Service) recoverConflict(ctx context.Context, req Request) (*Response, error) {
	rec, err := s.ledger.FindBySignature(ctx, req.PaymentSignature)
	if err != nil {
		return nil, unavailable(err)
	}
	if rec == nil {
		return nil, errutil.Fail(errutil.KindUnavailable, "purchase state is settling, please retry")
	}
	return replay(rec, req)
}

func replay(rec *ledger.PurchaseRecord, req Request) (*Response, error) {
	if rec.CampaignID != req.CampaignID {
		return nil, errutil.Fail(errutil.KindSignatureReused, "payment signature was already used for another campaign")
	}
	if rec.Wallet != req.Wallet {
		return nil, errutil.Fail(errutil.KindWrongSigner, "payment signature belongs to another wallet")
	}
	return responseFrom(rec), nil
}

func fetchError(err error) error {
	var unavail *chain.UnavailableError
	switch {
	case errors.Is(err, chain.ErrNotFound):
		return errutil.Fail(errutil.KindNoTransferFound, notVisibleDetail, errutil.WithCause(err))
	case errors.As(err, &unavail):
		return errutil.Fail(errutil.KindUnavailable, notVisibleDetail, errutil.WithCause(err), errutil.WithRetryAfter(unavail.RetryAfter))
	default:
		return unavailable(err)
	}
}

func unavailable(err error) error {
	if _, ok := errutil.KindOf(err); ok {
		return err
	}
	return errutil.Fail(errutil.KindUnavailable, notVisibleDetail, errutil.WithCause(err))
}

func kindOrUnavailable(err error) errutil.Kind {
	if k, ok := errutil.KindOf(err); ok {
		return k
	}
	return errutil.KindUnavailable
}
