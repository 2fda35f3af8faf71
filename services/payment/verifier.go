package payment

import (
	"github.com/shopspring/decimal"

	"rewards-engine/pkg/chain"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/pricing"
)

type Config struct {
	Tolerance      decimal.Decimal
	TreasuryWallet string
	RewardMint     string
	StableMint     string
}

// Verifier checks a fetched transaction against a claimed payment. It does no
// I/O; the transaction and rates are fetched by the caller.
type Verifier struct {
	cfg Config
}

func NewVerifier(cfg Config) *Verifier {
	return &Verifier{cfg: cfg}
}

type Request struct {
	Tx          *chain.Transaction
	Payer       string
	ExpectedUSD decimal.Decimal
	Currency    Currency
	Rates       pricing.Rates
}

type Result struct {
	ActualUSD    decimal.Decimal
	ActualAmount decimal.Decimal
	Currency     Currency
	Degraded     bool
}

// Band returns the inclusive range of USD values accepted for expected.
func (v *Verifier) Band(expected decimal.Decimal) (lo, hi decimal.Decimal) {
	one := decimal.NewFromInt(1)
	return expected.Mul(one.Sub(v.cfg.Tolerance)), expected.Mul(one.Add(v.cfg.Tolerance))
}

func (v *Verifier) Verify(req Request) (*Result, error) {
	tx := req.Tx
	if tx == nil {
		return nil, errutil.Fail(errutil.KindNoTransferFound, "transaction not found")
	}
	if tx.Failed {
		return nil, errutil.Failf(errutil.KindExecutionFailed, "transaction failed on chain: %s", tx.Err)
	}

	payerIdx := tx.AccountIndex(req.Payer)
	if payerIdx < 0 || !tx.IsSigner(payerIdx) {
		return nil, errutil.Fail(errutil.KindWrongSigner, "transaction was not signed by the claimed wallet")
	}

	var (
		amount decimal.Decimal
		rate   decimal.Decimal
		err    error
	)
	switch req.Currency {
	case CurrencySOL:
		amount, err = v.nativeDebit(tx, payerIdx)
		rate = req.Rates.NativeUSD
	case CurrencyToken:
		amount, err = v.tokenDebit(tx, v.cfg.RewardMint, req.Payer)
		rate = req.Rates.RewardTokenUSD
	case CurrencyUSDC:
		amount, err = v.tokenDebit(tx, v.cfg.StableMint, req.Payer)
		rate = decimal.NewFromInt(1)
	default:
		return nil, errutil.Failf(errutil.KindUnsupportedCurrency, "currency %q is not supported", req.Currency)
	}
	if err != nil {
		return nil, err
	}

	actualUSD := amount.Mul(rate)
	lo, hi := v.Band(req.ExpectedUSD)
	if actualUSD.LessThan(lo) || actualUSD.GreaterThan(hi) {
		return nil, errutil.AmountMismatch(req.ExpectedUSD.StringFixed(2), actualUSD.String())
	}

	if v.cfg.TreasuryWallet != "" {
		credited, err := v.treasuryCredit(tx, req.Currency)
		if err != nil {
			return nil, err
		}
		if credited.Mul(rate).LessThan(lo) {
			return nil, errutil.Fail(errutil.KindNoTransferFound, "treasury wallet was not credited with the payment")
		}
	}

	return &Result{
		ActualUSD:    actualUSD,
		ActualAmount: amount,
		Currency:     req.Currency,
		Degraded:     req.Rates.Degraded,
	}, nil
}

// nativeDebit is the payer's lamport decrease in whole coins. The network fee
// is left out when the payer also paid it.
func (v *Verifier) nativeDebit(tx *chain.Transaction, payerIdx int) (decimal.Decimal, error) {
	delta, ok := tx.NativeDelta(payerIdx)
	if !ok {
		return decimal.Zero, errutil.Fail(errutil.KindNoTransferFound, "no balance snapshot for payer")
	}
	if payerIdx == 0 {
		delta = delta.Sub(decimal.NewFromInt(int64(tx.Fee)))
	}
	if !delta.IsPositive() {
		return decimal.Zero, errutil.Fail(errutil.KindNoTransferFound, "no native transfer from payer")
	}
	return delta.Shift(-NativeDecimals), nil
}

func (v *Verifier) tokenDebit(tx *chain.Transaction, mint, owner string) (decimal.Decimal, error) {
	if mint == "" {
		return decimal.Zero, errutil.Fail(errutil.KindUnsupportedCurrency, "token mint is not configured")
	}
	delta, decimals, found := tx.TokenDelta(mint, owner)
	if !found || !delta.IsPositive() {
		return decimal.Zero, errutil.Fail(errutil.KindNoTransferFound, "no token transfer from payer")
	}
	return delta.Shift(-decimals), nil
}

func (v *Verifier) treasuryCredit(tx *chain.Transaction, c Currency) (decimal.Decimal, error) {
	treasury := v.cfg.TreasuryWallet
	switch c {
	case CurrencySOL:
		idx := tx.AccountIndex(treasury)
		delta, ok := tx.NativeDelta(idx)
		if !ok {
			return decimal.Zero, errutil.Fail(errutil.KindNoTransferFound, "treasury wallet not part of transaction")
		}
		return delta.Neg().Shift(-NativeDecimals), nil
	case CurrencyToken, CurrencyUSDC:
		mint := v.cfg.RewardMint
		if c == CurrencyUSDC {
			mint = v.cfg.StableMint
		}
		delta, decimals, found := tx.TokenDelta(mint, treasury)
		if !found {
			return decimal.Zero, errutil.Fail(errutil.KindNoTransferFound, "treasury token account not part of transaction")
		}
		return delta.Neg().Shift(-decimals), nil
	default:
		return decimal.Zero, errutil.Failf(errutil.KindUnsupportedCurrency, "currency %q is not supported", c)
	}
}
