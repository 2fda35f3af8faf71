package payment

import "strings"

type Currency string

const (
	CurrencySOL   Currency = "SOL"
	CurrencyToken Currency = "TOKEN"
	CurrencyUSDC  Currency = "USDC"
)

// NativeDecimals is the lamport precision of the native coin.
const NativeDecimals = 9

func (c Currency) IsNative() bool {
	return c == CurrencySOL
}

// ParseCurrency normalises s and checks it against the allowed set.
// An empty allowed set accepts every known currency.
func ParseCurrency(s string, allowed []string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CurrencySOL, CurrencyToken, CurrencyUSDC:
	default:
		return "", false
	}

	if len(allowed) == 0 {
		return c, true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, string(c)) {
			return c, true
		}
	}
	return "", false
}
