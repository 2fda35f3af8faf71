package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"rewards-engine/pkg/chain"
	"rewards-engine/pkg/errutil"
	"rewards-engine/pkg/pricing"
)

const (
	walletA    = "WalletA1111111111111111111111111111111111111"
	walletB    = "WalletB1111111111111111111111111111111111111"
	treasury   = "Treasury11111111111111111111111111111111111"
	rewardMint = "RewardMint111111111111111111111111111111111"
	stableMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var rates = pricing.Rates{
	NativeUSD:      decimal.NewFromInt(200),
	RewardTokenUSD: decimal.RequireFromString("0.002"),
}

func newVerifier(treasuryWallet string) *Verifier {
	return NewVerifier(Config{
		Tolerance:      decimal.RequireFromString("0.05"),
		TreasuryWallet: treasuryWallet,
		RewardMint:     rewardMint,
		StableMint:     stableMint,
	})
}

// nativeTx moves lamports from payer to treasury; the payer also pays the fee.
func nativeTx(payer string, lamports, fee uint64) *chain.Transaction {
	return &chain.Transaction{
		AccountKeys:           []string{payer, treasury, "11111111111111111111111111111111"},
		NumRequiredSignatures: 1,
		Fee:                   fee,
		PreBalances:           []uint64{1_000_000_000, 5_000_000_000, 1},
		PostBalances:          []uint64{1_000_000_000 - lamports - fee, 5_000_000_000 + lamports, 1},
	}
}

func tokenTx(payer, mint string, raw int64, decimals int32) *chain.Transaction {
	return &chain.Transaction{
		AccountKeys:           []string{payer, "payerAta", "treasuryAta", "TokenProgram"},
		NumRequiredSignatures: 1,
		Fee:                   5000,
		PreBalances:           []uint64{1_000_000_000, 2_039_280, 2_039_280, 1},
		PostBalances:          []uint64{999_995_000, 2_039_280, 2_039_280, 1},
		PreTokenBalances: []chain.TokenBalance{
			{AccountIndex: 1, Mint: mint, Owner: payer, Amount: decimal.NewFromInt(10_000_000_000), Decimals: decimals},
			{AccountIndex: 2, Mint: mint, Owner: treasury, Amount: decimal.Zero, Decimals: decimals},
		},
		PostTokenBalances: []chain.TokenBalance{
			{AccountIndex: 1, Mint: mint, Owner: payer, Amount: decimal.NewFromInt(10_000_000_000 - raw), Decimals: decimals},
			{AccountIndex: 2, Mint: mint, Owner: treasury, Amount: decimal.NewFromInt(raw), Decimals: decimals},
		},
	}
}

func requireKind(t *testing.T, err error, kind errutil.Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := errutil.KindOf(err)
	require.True(t, ok, "error %v carries no kind", err)
	require.Equal(t, kind, got)
}

func TestVerifyNativeExactPayment(t *testing.T) {
	res, err := newVerifier(treasury).Verify(Request{
		Tx:          nativeTx(walletA, 50_000_000, 5000),
		Payer:       walletA,
		ExpectedUSD: decimal.NewFromInt(10),
		Currency:    CurrencySOL,
		Rates:       rates,
	})
	require.NoError(t, err)
	require.True(t, res.ActualAmount.Equal(decimal.RequireFromString("0.05")))
	require.True(t, res.ActualUSD.Equal(decimal.NewFromInt(10)))
	require.Equal(t, CurrencySOL, res.Currency)
}

func TestVerifyToleranceBoundary(t *testing.T) {
	cases := []struct {
		name     string
		lamports uint64
		ok       bool
	}{
		{name: "lower edge 0.95", lamports: 47_500_000, ok: true},
		{name: "below lower edge 0.949", lamports: 47_450_000, ok: false},
		{name: "upper edge 1.05", lamports: 52_500_000, ok: true},
		{name: "above upper edge 1.051", lamports: 52_550_000, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newVerifier("").Verify(Request{
				Tx:          nativeTx(walletA, tc.lamports, 5000),
				Payer:       walletA,
				ExpectedUSD: decimal.NewFromInt(10),
				Currency:    CurrencySOL,
				Rates:       rates,
			})
			if tc.ok {
				require.NoError(t, err)
				return
			}
			requireKind(t, err, errutil.KindAmountMismatch)

			var e *errutil.Error
			require.ErrorAs(t, err, &e)
			expected, _ := e.DetailValue("expected_usd")
			require.Equal(t, "10.00", expected)
			_, ok := e.DetailValue("actual_usd")
			require.True(t, ok)
		})
	}
}

func TestVerifyExecutionFailed(t *testing.T) {
	tx := nativeTx(walletA, 50_000_000, 5000)
	tx.Failed = true
	tx.Err = "InstructionError"

	_, err := newVerifier("").Verify(Request{Tx: tx, Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencySOL, Rates: rates})
	requireKind(t, err, errutil.KindExecutionFailed)
}

func TestVerifyWrongPayer(t *testing.T) {
	_, err := newVerifier("").Verify(Request{
		Tx:          nativeTx(walletB, 50_000_000, 5000),
		Payer:       walletA,
		ExpectedUSD: decimal.NewFromInt(10),
		Currency:    CurrencySOL,
		Rates:       rates,
	})
	requireKind(t, err, errutil.KindWrongSigner)
}

func TestVerifyPayerPresentButNotSigner(t *testing.T) {
	// walletA only receives; walletB signs and pays.
	tx := nativeTx(walletB, 50_000_000, 5000)
	tx.AccountKeys[1] = walletA

	_, err := newVerifier("").Verify(Request{Tx: tx, Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencySOL, Rates: rates})
	requireKind(t, err, errutil.KindWrongSigner)
}

func TestVerifyPayerSeparateFromFeePayer(t *testing.T) {
	// walletB pays the fee at index 0; walletA co-signs and moves the lamports.
	tx := &chain.Transaction{
		AccountKeys:           []string{walletB, walletA, treasury, "11111111111111111111111111111111"},
		NumRequiredSignatures: 2,
		Fee:                   5000,
		PreBalances:           []uint64{1_000_000_000, 1_000_000_000, 5_000_000_000, 1},
		PostBalances:          []uint64{1_000_000_000 - 5000, 1_000_000_000 - 50_000_000, 5_000_000_000 + 50_000_000, 1},
	}

	res, err := newVerifier(treasury).Verify(Request{Tx: tx, Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencySOL, Rates: rates})
	require.NoError(t, err)
	require.True(t, res.ActualAmount.Equal(decimal.RequireFromString("0.05")), res.ActualAmount.String())
	require.True(t, res.ActualUSD.Equal(decimal.NewFromInt(10)))
}

func TestVerifyCurrencyIsolation(t *testing.T) {
	// 5000 reward tokens at $0.002 = $10, same USD as the native package.
	rewardTx := tokenTx(walletA, rewardMint, 5_000_000_000, 6)

	_, err := newVerifier("").Verify(Request{Tx: rewardTx, Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencySOL, Rates: rates})
	requireKind(t, err, errutil.KindNoTransferFound)

	res, err := newVerifier("").Verify(Request{Tx: rewardTx, Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencyToken, Rates: rates})
	require.NoError(t, err)
	require.True(t, res.ActualAmount.Equal(decimal.NewFromInt(5000)))

	_, err = newVerifier("").Verify(Request{Tx: nativeTx(walletA, 50_000_000, 5000), Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencyToken, Rates: rates})
	requireKind(t, err, errutil.KindNoTransferFound)
}

func TestVerifyStablecoinAtPar(t *testing.T) {
	res, err := newVerifier(treasury).Verify(Request{
		Tx:          tokenTx(walletA, stableMint, 25_000_000, 6),
		Payer:       walletA,
		ExpectedUSD: decimal.NewFromInt(25),
		Currency:    CurrencyUSDC,
		Rates:       rates,
	})
	require.NoError(t, err)
	require.True(t, res.ActualUSD.Equal(decimal.NewFromInt(25)))
}

func TestVerifyStablecoinWrongMint(t *testing.T) {
	_, err := newVerifier("").Verify(Request{
		Tx:          tokenTx(walletA, rewardMint, 25_000_000, 6),
		Payer:       walletA,
		ExpectedUSD: decimal.NewFromInt(25),
		Currency:    CurrencyUSDC,
		Rates:       rates,
	})
	requireKind(t, err, errutil.KindNoTransferFound)
}

func TestVerifyUnsupportedCurrency(t *testing.T) {
	_, err := newVerifier("").Verify(Request{
		Tx:          nativeTx(walletA, 50_000_000, 5000),
		Payer:       walletA,
		ExpectedUSD: decimal.NewFromInt(10),
		Currency:    Currency("BTC"),
		Rates:       rates,
	})
	requireKind(t, err, errutil.KindUnsupportedCurrency)
}

func TestVerifyTreasuryNotCredited(t *testing.T) {
	// payer sends to somebody else; the treasury balance is unchanged.
	tx := nativeTx(walletA, 50_000_000, 5000)
	tx.AccountKeys[1] = "SomeoneElse111111111111111111111111111111111"
	tx.AccountKeys = append(tx.AccountKeys, treasury)
	tx.PreBalances = append(tx.PreBalances, 7)
	tx.PostBalances = append(tx.PostBalances, 7)

	_, err := newVerifier(treasury).Verify(Request{Tx: tx, Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencySOL, Rates: rates})
	requireKind(t, err, errutil.KindNoTransferFound)
}

func TestVerifyDegradedRatesStillAccepted(t *testing.T) {
	degraded := rates
	degraded.Degraded = true

	res, err := newVerifier("").Verify(Request{Tx: nativeTx(walletA, 50_000_000, 5000), Payer: walletA, ExpectedUSD: decimal.NewFromInt(10), Currency: CurrencySOL, Rates: degraded})
	require.NoError(t, err)
	require.True(t, res.Degraded)
}

func TestParseCurrency(t *testing.T) {
	c, ok := ParseCurrency(" sol ", []string{"SOL", "USDC"})
	require.True(t, ok)
	require.Equal(t, CurrencySOL, c)

	_, ok = ParseCurrency("TOKEN", []string{"SOL", "USDC"})
	require.False(t, ok)

	_, ok = ParseCurrency("DOGE", nil)
	require.False(t, ok)
}
