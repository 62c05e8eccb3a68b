// Package call implements the synchronous call primitive: submit one
// ledger transaction, poll until it is confirmed or the confirmation
// timeout elapses, and hand back its logs and inner instructions.
package call

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/metrics"
	"github.com/blockberries/evmloader/types"
)

// Compile-time interface check.
var _ evmloader.Caller = (*Caller)(nil)

// Default confirmation timings of a ledger node.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultFirstPoll    = 7 * time.Second
	DefaultPollInterval = 3 * time.Second
)

// Config controls confirmation polling.
type Config struct {
	// Timeout bounds the wait for confirmation, measured from
	// submission.
	Timeout time.Duration
	// FirstPoll is the delay before the first status query.
	FirstPoll time.Duration
	// PollInterval is the delay between subsequent status queries.
	PollInterval time.Duration

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the ledger node's default timings.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		FirstPoll:    DefaultFirstPoll,
		PollInterval: DefaultPollInterval,
	}
}

// Caller submits transactions signed by a fixed set of keypairs. The
// first keypair pays fees. Caller never retries; wrap it with WithRetry
// for that.
type Caller struct {
	ledger  evmloader.Ledger
	signers []*ledger.Keypair
	cfg     Config
	log     log.Logger
	metrics *metrics.Metrics
}

// New returns a Caller submitting to l, paid for and signed by payer.
// extra signers are added to every transaction that requires them.
func New(l evmloader.Ledger, payer *ledger.Keypair, cfg Config, extra ...*ledger.Keypair) *Caller {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FirstPoll < 0 {
		cfg.FirstPoll = def.FirstPoll
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	lg := cfg.Logger
	if lg == nil {
		lg = log.Root()
	}
	return &Caller{
		ledger:  l,
		signers: append([]*ledger.Keypair{payer}, extra...),
		cfg:     cfg,
		log:     lg.New("module", "call"),
		metrics: cfg.Metrics,
	}
}

// Payer returns the fee payer's account.
func (c *Caller) Payer() types.Pubkey { return c.signers[0].Pubkey() }

// Call submits ixs as one transaction and waits for its confirmation.
//
// Errors:
//   - *evmloader.RejectedError if the ledger refuses the transaction or
//     reports an execution error for it
//   - the ledger's own error if the transaction could not be submitted
//   - *evmloader.ConfirmationTimeoutError if no confirmation is observed
//     within the timeout
//   - ctx.Err() if ctx ends first
func (c *Caller) Call(ctx context.Context, ixs ...types.Instruction) (*types.CallResult, error) {
	blockhash, err := c.ledger.LatestBlockhash(ctx)
	if err != nil {
		c.metrics.Call(metrics.OutcomeError, 0)
		return nil, err
	}
	tx, err := ledger.NewTransaction(blockhash, ixs, c.signers...)
	if err != nil {
		c.metrics.Call(metrics.OutcomeError, 0)
		return nil, err
	}

	start := time.Now()
	sig, err := c.ledger.SendTransaction(ctx, tx.Serialize())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, ok := evmloader.IsRejected(err); ok {
			c.metrics.Call(metrics.OutcomeRejected, 0)
			return nil, err
		}
		c.metrics.Call(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	c.log.Debug("Transaction submitted", "sig", sig, "instructions", len(ixs))

	status, err := c.confirm(ctx, sig, start)
	if err != nil {
		return nil, err
	}
	if !status.OK() {
		c.metrics.Call(metrics.OutcomeRejected, 0)
		c.log.Warn("Transaction failed", "sig", sig, "err", status.Err)
		return nil, &evmloader.RejectedError{Signature: sig, Reason: status.Err, Logs: status.LogMessages}
	}

	elapsed := time.Since(start)
	c.metrics.Call(metrics.OutcomeConfirmed, elapsed)
	c.log.Debug("Transaction confirmed", "sig", sig, "slot", status.Slot, "elapsed", elapsed)
	return &types.CallResult{
		Signature:         sig,
		Slot:              status.Slot,
		Logs:              status.LogMessages,
		InnerInstructions: status.InnerInstructions,
		AccountKeys:       status.AccountKeys,
	}, nil
}

// confirm polls the transaction status: once after FirstPoll, then
// every PollInterval until Timeout has elapsed since start.
func (c *Caller) confirm(ctx context.Context, sig types.Signature, start time.Time) (*types.TxStatus, error) {
	deadline := start.Add(c.cfg.Timeout)
	wait := c.cfg.FirstPoll

	for attempt := 1; ; attempt++ {
		if remaining := time.Until(deadline); wait > remaining {
			wait = max(remaining, 0)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, err := c.ledger.GetTransaction(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A failed status query is not a failed transaction; keep
			// polling until the deadline.
			c.log.Debug("Status query failed", "sig", sig, "attempt", attempt, "err", err)
		} else if status != nil {
			return status, nil
		}

		if !time.Now().Before(deadline) {
			c.metrics.Call(metrics.OutcomeTimeout, 0)
			c.log.Warn("Transaction not confirmed", "sig", sig, "timeout", c.cfg.Timeout, "polls", attempt)
			return nil, &evmloader.ConfirmationTimeoutError{Signature: sig, Timeout: c.cfg.Timeout}
		}
		wait = c.cfg.PollInterval
	}
}
