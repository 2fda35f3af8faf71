package chain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance is one SPL token account snapshot taken before or after a
// transaction executed. Amount is in raw units.
type TokenBalance struct {
	AccountIndex uint16
	Mint         string
	Owner        string
	Amount       decimal.Decimal
	Decimals     int32
}

// Transaction is the subset of a confirmed transaction the payment verifier
// needs. AccountKeys already include addresses loaded from lookup tables.
type Transaction struct {
	Signature             string
	Slot                  uint64
	BlockTime             *time.Time
	AccountKeys           []string
	NumRequiredSignatures int
	Fee                   uint64
	PreBalances           []uint64
	PostBalances          []uint64
	PreTokenBalances      []TokenBalance
	PostTokenBalances     []TokenBalance
	Failed                bool
	Err                   string
}

// AccountIndex returns the position of wallet in the account list, or -1.
func (t *Transaction) AccountIndex(wallet string) int {
	for i, k := range t.AccountKeys {
		if k == wallet {
			return i
		}
	}
	return -1
}

func (t *Transaction) IsSigner(index int) bool {
	return index >= 0 && index < t.NumRequiredSignatures
}

// NativeDelta returns pre minus post lamports for the account at index.
// ok is false when the index has no balance snapshot.
func (t *Transaction) NativeDelta(index int) (delta decimal.Decimal, ok bool) {
	if index < 0 || index >= len(t.PreBalances) || index >= len(t.PostBalances) {
		return decimal.Zero, false
	}
	pre := lamports(t.PreBalances[index])
	post := lamports(t.PostBalances[index])
	return pre.Sub(post), true
}

// TokenDelta returns pre minus post raw amount of mint held by owner, summed
// across the owner's token accounts, together with the mint decimals. An
// account missing from one side counts as zero there.
func (t *Transaction) TokenDelta(mint, owner string) (delta decimal.Decimal, decimals int32, found bool) {
	delta = decimal.Zero
	for _, b := range t.PreTokenBalances {
		if b.Mint == mint && b.Owner == owner {
			delta = delta.Add(b.Amount)
			decimals = b.Decimals
			found = true
		}
	}
	for _, b := range t.PostTokenBalances {
		if b.Mint == mint && b.Owner == owner {
			delta = delta.Sub(b.Amount)
			decimals = b.Decimals
			found = true
		}
	}
	return delta, decimals, found
}

func lamports(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
