package pricing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"rewards-engine/pkg/logger"
)

// Rates are USD prices of the native coin and the reward token.
// Degraded rates came from a stale or fallback value; callers still use them.
type Rates struct {
	NativeUSD      decimal.Decimal `json:"native_usd"`
	RewardTokenUSD decimal.Decimal `json:"reward_token_usd"`
	AsOf           time.Time       `json:"as_of"`
	Source         string          `json:"source"`
	Degraded       bool            `json:"degraded"`
}

// Quote is what a single price source returns.
type Quote struct {
	NativeUSD      decimal.Decimal
	RewardTokenUSD decimal.Decimal
}

type Source interface {
	Name() string
	Fetch(ctx context.Context) (Quote, error)
}

// LastGoodStore persists the most recent successful rates outside the process.
type LastGoodStore interface {
	Save(ctx context.Context, r Rates) error
	Load(ctx context.Context) (*Rates, error)
}

type Options struct {
	TTL time.Duration
	// DegradedTTL bounds how long a degraded result is served before the
	// sources are asked again. It never exceeds TTL.
	DegradedTTL       time.Duration
	SourceTimeout     time.Duration
	FallbackNativeUSD decimal.Decimal
	FallbackRewardUSD decimal.Decimal
	Store             LastGoodStore
}

type cacheEntry struct {
	rates     Rates
	fetchedAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) fresh(now time.Time) bool {
	return e != nil && now.Sub(e.fetchedAt) < e.ttl
}

type Oracle struct {
	sources []Source
	opts    Options

	cache    atomic.Pointer[cacheEntry]
	lastGood atomic.Pointer[Rates]
	group    singleflight.Group
	now      func() time.Time
}

func NewOracle(opts Options, sources ...Source) *Oracle {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.DegradedTTL <= 0 {
		opts.DegradedTTL = 5 * time.Second
	}
	opts.DegradedTTL = min(opts.DegradedTTL, opts.TTL)
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 5 * time.Second
	}
	return &Oracle{sources: sources, opts: opts, now: time.Now}
}

// GetRates returns cached rates while fresh. On a miss the sources are asked in
// order and the first success wins. When all of them fail the last good rates
// are served, then the fallback constants, both flagged as degraded and cached
// only for DegradedTTL.
func (o *Oracle) GetRates(ctx context.Context) Rates {
	if e := o.cache.Load(); e.fresh(o.now()) {
		return e.rates
	}

	v, _, _ := o.group.Do("rates", func() (any, error) {
		if e := o.cache.Load(); e.fresh(o.now()) {
			return e.rates, nil
		}
		r := o.refresh(context.WithoutCancel(ctx))
		ttl := o.opts.TTL
		if r.Degraded {
			ttl = o.opts.DegradedTTL
		}
		o.cache.Store(&cacheEntry{rates: r, fetchedAt: o.now(), ttl: ttl})
		return r, nil
	})

	r := v.(Rates)
	if r.Degraded {
		logger.L(ctx).Warn("serving degraded price rates",
			zap.String("source", r.Source),
			zap.Time("as_of", r.AsOf),
		)
	}
	return r
}

func (o *Oracle) refresh(ctx context.Context) Rates {
	for _, src := range o.sources {
		sctx, cancel := context.WithTimeout(ctx, o.opts.SourceTimeout)
		q, err := src.Fetch(sctx)
		cancel()
		if err != nil {
			sourceFetches.WithLabelValues(src.Name(), "error").Inc()
			zap.L().Warn("price source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if !q.NativeUSD.IsPositive() || !q.RewardTokenUSD.IsPositive() {
			sourceFetches.WithLabelValues(src.Name(), "invalid").Inc()
			zap.L().Warn("price source returned non-positive price", zap.String("source", src.Name()))
			continue
		}

		sourceFetches.WithLabelValues(src.Name(), "ok").Inc()
		r := Rates{
			NativeUSD:      q.NativeUSD,
			RewardTokenUSD: q.RewardTokenUSD,
			AsOf:           o.now().UTC(),
			Source:         src.Name(),
		}
		o.lastGood.Store(&r)
		if o.opts.Store != nil {
			if err := o.opts.Store.Save(ctx, r); err != nil {
				zap.L().Warn("failed to persist last good rates", zap.Error(err))
			}
		}
		degradedGauge.Set(0)
		return r
	}

	degradedGauge.Set(1)

	if lg := o.loadLastGood(ctx); lg != nil {
		r := *lg
		r.Degraded = true
		return r
	}

	return Rates{
		NativeUSD:      o.opts.FallbackNativeUSD,
		RewardTokenUSD: o.opts.FallbackRewardUSD,
		AsOf:           o.now().UTC(),
		Source:         "fallback",
		Degraded:       true,
	}
}

func (o *Oracle) loadLastGood(ctx context.Context) *Rates {
	if lg := o.lastGood.Load(); lg != nil {
		return lg
	}
	if o.opts.Store == nil {
		return nil
	}
	lg, err := o.opts.Store.Load(ctx)
	if err != nil {
		zap.L().Warn("failed to load last good rates", zap.Error(err))
		return nil
	}
	if lg != nil {
		o.lastGood.Store(lg)
	}
	return lg
}
