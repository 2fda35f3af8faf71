package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"rewards-engine/pkg/config"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewFromConfig),
)

type Config struct {
	PerSecond float64
	Burst     int
	MaxKeys   int
	IdleTTL   time.Duration
}

// Limiter hands out one token bucket per key. A bucket lives for IdleTTL
// after it is created and at most MaxKeys buckets are kept.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

func New(cfg Config) *Limiter {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		buckets: expirable.NewLRU[string, *rate.Limiter](cfg.MaxKeys, nil, cfg.IdleTTL),
	}
}

func NewFromConfig(cfg *config.Config) *Limiter {
	return New(Config{
		PerSecond: cfg.RateLimit.PerWalletRPS,
		Burst:     cfg.RateLimit.Burst,
		MaxKeys:   cfg.RateLimit.MaxWallets,
		IdleTTL:   cfg.RateLimit.IdleTTL,
	})
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Len reports how many keys currently hold a bucket.
func (l *Limiter) Len() int {
	return l.buckets.Len()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)
	l.buckets.Add(key, b)
	return b
}
