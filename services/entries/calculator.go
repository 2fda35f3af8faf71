package entries

import (
	"math"

	"github.com/shopspring/decimal"

	"rewards-engine/pkg/errutil"
)

// DefaultUSDPerEntry is the holdings value worth one base entry.
const DefaultUSDPerEntry = 10

// Input holds the additive components of a wallet's entries in one campaign.
type Input struct {
	HoldingsUSD     decimal.Decimal
	BaselineEntries int64
	PurchasedTotal  int64
	Multiplier      int64
}

var maxEntries = decimal.NewFromInt(math.MaxInt64)

// BaseEntries converts holdings to whole entry units, rounding down.
// Holdings beyond the int64 range saturate at math.MaxInt64.
func BaseEntries(holdingsUSD decimal.Decimal, usdPerEntry int64) int64 {
	n, _ := baseEntries(holdingsUSD, usdPerEntry)
	return n
}

func baseEntries(holdingsUSD decimal.Decimal, usdPerEntry int64) (int64, bool) {
	if usdPerEntry <= 0 {
		usdPerEntry = DefaultUSDPerEntry
	}
	if !holdingsUSD.IsPositive() {
		return 0, true
	}
	q := holdingsUSD.Div(decimal.NewFromInt(usdPerEntry)).Floor()
	if q.GreaterThan(maxEntries) {
		return math.MaxInt64, false
	}
	return q.IntPart(), true
}

// ComputeFinalEntries returns floor((base + baseline + purchased) * multiplier).
// Negative components count as zero and the multiplier is at least 1. The
// result saturates at math.MaxInt64 instead of wrapping.
func ComputeFinalEntries(in Input, usdPerEntry int64) int64 {
	n, _ := finalEntries(in, usdPerEntry)
	return n
}

// finalEntries reports false when the exact result does not fit in int64.
func finalEntries(in Input, usdPerEntry int64) (int64, bool) {
	total, ok := baseEntries(in.HoldingsUSD, usdPerEntry)
	if !ok {
		return math.MaxInt64, false
	}
	for _, c := range []int64{max(in.BaselineEntries, 0), max(in.PurchasedTotal, 0)} {
		if c > math.MaxInt64-total {
			return math.MaxInt64, false
		}
		total += c
	}

	mult := max(in.Multiplier, 1)
	if total > math.MaxInt64/mult {
		return math.MaxInt64, false
	}
	return total * mult, true
}

type Calculator struct {
	ceiling     int64
	usdPerEntry int64
}

func NewCalculator(ceiling, usdPerEntry int64) *Calculator {
	if usdPerEntry <= 0 {
		usdPerEntry = DefaultUSDPerEntry
	}
	return &Calculator{ceiling: ceiling, usdPerEntry: usdPerEntry}
}

func (c *Calculator) Ceiling() int64 { return c.ceiling }

func (c *Calculator) BaseEntries(holdingsUSD decimal.Decimal) int64 {
	return BaseEntries(holdingsUSD, c.usdPerEntry)
}

// Compute applies the ceiling on top of ComputeFinalEntries.
func (c *Calculator) Compute(in Input) (int64, error) {
	final, ok := finalEntries(in, c.usdPerEntry)
	if !ok {
		return 0, errutil.Fail(errutil.KindLimitExceeded, "entries exceed the representable range")
	}
	if c.ceiling > 0 && final > c.ceiling {
		return 0, errutil.Failf(errutil.KindLimitExceeded, "entries %d exceed the limit of %d", final, c.ceiling)
	}
	return final, nil
}
