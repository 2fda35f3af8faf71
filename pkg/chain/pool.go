package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"rewards-engine/pkg/logger"
)

var ErrNotFound = errors.New("chain: transaction not found")

// UnavailableError is returned once every endpoint has exhausted its budget.
type UnavailableError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain: unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("chain: unavailable (%s)", e.Reason)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Fetcher looks up one confirmed transaction on one RPC endpoint.
// A missing transaction is reported as ErrNotFound.
type Fetcher interface {
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

type Endpoint struct {
	Name    string
	Timeout time.Duration
	Retries int
	Fetcher Fetcher
}

type PoolConfig struct {
	IndexingDelay time.Duration
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	RetryAfter    time.Duration
}

// Pool walks its endpoints in priority order. Each endpoint gets its own
// retry budget with exponential backoff before the next one is tried.
type Pool struct {
	cfg       PoolConfig
	endpoints []Endpoint
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewPool(cfg PoolConfig, endpoints ...Endpoint) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("chain: at least one endpoint is required")
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	for i := range endpoints {
		if endpoints[i].Retries < 1 {
			endpoints[i].Retries = 1
		}
		if endpoints[i].Timeout <= 0 {
			endpoints[i].Timeout = 10 * time.Second
		}
		if endpoints[i].Name == "" {
			endpoints[i].Name = fmt.Sprintf("endpoint-%d", i)
		}
	}
	return &Pool{cfg: cfg, endpoints: endpoints, sleep: sleepCtx}, nil
}

// Budget is the longest FetchConfirmedTransaction can take: the indexing
// delay plus every endpoint's attempts and backoff waits.
func (p *Pool) Budget() time.Duration {
	total := p.cfg.IndexingDelay
	for _, ep := range p.endpoints {
		total += time.Duration(ep.Retries) * (ep.Timeout + p.cfg.MaxBackoff)
	}
	return total
}

// FetchConfirmedTransaction returns the transaction for signature.
// A transaction that failed on chain is returned with Failed set and is not
// retried. When every endpoint reported the signature missing the result is
// ErrNotFound; any other exhaustion yields *UnavailableError.
func (p *Pool) FetchConfirmedTransaction(ctx context.Context, signature string) (*Transaction, error) {
	log := logger.L(ctx).With(zap.String("signature", signature))

	if p.cfg.IndexingDelay > 0 {
		if err := p.sleep(ctx, p.cfg.IndexingDelay); err != nil {
			return nil, p.unavailable(err)
		}
	}

	notFound := 0
	var lastErr error
	for _, ep := range p.endpoints {
		tx, err := p.fetchFrom(ctx, ep, signature)
		if err == nil {
			if tx.Failed {
				log.Info("transaction failed on chain", zap.String("endpoint", ep.Name), zap.String("tx_err", tx.Err))
			}
			return tx, nil
		}

		lastErr = err
		if errors.Is(err, ErrNotFound) {
			notFound++
		}
		log.Warn("endpoint exhausted", zap.String("endpoint", ep.Name), zap.Int("retries", ep.Retries), zap.Error(err))

		if ctx.Err() != nil {
			return nil, p.unavailable(ctx.Err())
		}
	}

	if notFound == len(p.endpoints) {
		return nil, ErrNotFound
	}
	return nil, p.unavailable(lastErr)
}

func (p *Pool) fetchFrom(ctx context.Context, ep Endpoint, signature string) (*Transaction, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BaseBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(ep.Retries-1)), ctx)

	var tx *Transaction
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, ep.Timeout)
		defer cancel()

		res, err := ep.Fetcher.GetTransaction(actx, signature)
		switch {
		case err == nil:
			rpcAttempts.WithLabelValues(ep.Name, outcomeOf(res)).Inc()
			tx = res
			return nil
		case errors.Is(err, ErrNotFound):
			rpcAttempts.WithLabelValues(ep.Name, "not_found").Inc()
		default:
			rpcAttempts.WithLabelValues(ep.Name, "error").Inc()
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		zap.L().Debug("retrying transaction lookup",
			zap.String("endpoint", ep.Name),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return tx, nil
}

func (p *Pool) unavailable(err error) error {
	return &UnavailableError{
		Reason:     "indexing lag or RPC unavailable",
		RetryAfter: p.cfg.RetryAfter,
		Err:        err,
	}
}

func outcomeOf(tx *Transaction) string {
	if tx != nil && tx.Failed {
		return "failed_tx"
	}
	return "ok"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
