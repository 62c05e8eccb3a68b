package call

import (
	"context"
	"errors"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum/log"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/types"
)

// RetryConfig bounds an explicit retry wrapper.
type RetryConfig struct {
	// Attempts is the number of retries after the first attempt.
	Attempts uint
	// Wait is the delay between attempts.
	Wait time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil selects Transient.
	Retryable func(error) bool
	Logger    log.Logger
}

// Transient reports whether err may succeed on resubmission. Ledger
// rejections and context errors are final.
func Transient(err error) bool {
	if _, ok := evmloader.IsRejected(err); ok {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type retrying struct {
	inner evmloader.Caller
	cfg   RetryConfig
	log   log.Logger
}

// WithRetry wraps inner so that retryable failures are resubmitted.
// Resubmitting a call that timed out may execute it twice; only wrap
// calls whose effect is idempotent, like chunk writes.
func WithRetry(inner evmloader.Caller, cfg RetryConfig) evmloader.Caller {
	if cfg.Attempts == 0 {
		return inner
	}
	if cfg.Retryable == nil {
		cfg.Retryable = Transient
	}
	l := cfg.Logger
	if l == nil {
		l = log.Root()
	}
	return &retrying{inner: inner, cfg: cfg, log: l.New("module", "retry")}
}

func (r *retrying) Call(ctx context.Context, ixs ...types.Instruction) (*types.CallResult, error) {
	var (
		res   *types.CallResult
		final error
	)
	err := retry.Retry(func(attempt uint) error {
		var err error
		res, err = r.inner.Call(ctx, ixs...)
		if err == nil {
			return nil
		}
		if !r.cfg.Retryable(err) || ctx.Err() != nil {
			final = err
			return nil
		}
		r.log.Debug("Retrying call", "attempt", attempt, "err", err)
		return err
	}, strategy.Limit(r.cfg.Attempts), strategy.Wait(r.cfg.Wait))

	if final != nil {
		return nil, final
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
