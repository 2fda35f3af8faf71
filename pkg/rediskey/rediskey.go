package rediskey

import "fmt"

// Key prefixes shared by every process of the service.
const (
	PricingPrefix    = "pricing"
	MembershipPrefix = "membership"
)

// PriceLastGood holds the most recent successful oracle rates.
var PriceLastGood = NamespaceKey(PricingPrefix, "rates:last_good")

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSweepLockKey returns "membership:sweep:{day}", used to enqueue the
// expiry sweep once per day across schedulers.
func BuildSweepLockKey(day string) string {
	return NamespaceKey(MembershipPrefix, "sweep:"+day)
}
