// Package driver steps a buffered execution to completion: one
// BeginPartial call, then Continue calls with the same step budget
// until the loader emits its Return record.
package driver

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/logs"
	"github.com/blockberries/evmloader/metrics"
	"github.com/blockberries/evmloader/types"
)

const (
	// DefaultStepBudget is the VM work one call performs.
	DefaultStepBudget = 50
	// DefaultMaxSteps bounds the Continue calls of one run.
	DefaultMaxSteps = 10000
)

// Config parameterizes one execution run.
type Config struct {
	// StepBudget is passed unchanged to every call of the run.
	StepBudget uint64
	// MaxSteps is the most Continue calls the run may issue. Values
	// <= 0 select DefaultMaxSteps; the bound cannot be disabled.
	MaxSteps int
	// MaxDuration bounds the wall-clock time since Begin. Zero means
	// no time bound.
	MaxDuration time.Duration

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Driver runs one execution. A Driver is not reusable: once Completed
// or Failed, start a new run with a new Driver and storage account.
type Driver struct {
	caller  evmloader.Caller
	program types.Pubkey
	run     instruction.RunAccounts
	cfg     Config
	log     log.Logger
	metrics *metrics.Metrics

	guard     runGuard
	collector logs.Collector
	steps     int
	started   time.Time
	err       error
}

// New returns a driver in NotStarted for the run described by run.
func New(caller evmloader.Caller, program types.Pubkey, run instruction.RunAccounts, cfg Config) *Driver {
	if cfg.StepBudget == 0 {
		cfg.StepBudget = DefaultStepBudget
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	l := cfg.Logger
	if l == nil {
		l = log.Root()
	}
	return &Driver{
		caller:  caller,
		program: program,
		run:     run,
		cfg:     cfg,
		log:     l.New("module", "driver", "storage", run.Storage),
		metrics: cfg.Metrics,
	}
}

// State returns the current state.
func (d *Driver) State() State { return d.guard.load() }

// Steps returns the number of Continue calls issued so far.
func (d *Driver) Steps() int {
	d.guard.seqMu.Lock()
	defer d.guard.seqMu.Unlock()
	return d.steps
}

// Err returns the error that moved the run to Failed.
func (d *Driver) Err() error {
	d.guard.seqMu.Lock()
	defer d.guard.seqMu.Unlock()
	return d.err
}

// Result returns the accumulated result and whether the run completed.
// Before completion it holds the events observed so far.
func (d *Driver) Result() (types.ExecutionResult, bool) {
	d.guard.seqMu.Lock()
	defer d.guard.seqMu.Unlock()
	return d.collector.Result(), d.collector.Completed()
}

// Begin issues the BeginPartial call. It reports whether the Return
// record was already observed, in which case no Continue follows.
func (d *Driver) Begin(ctx context.Context) (bool, error) {
	if err := d.guard.acquireBegin(); err != nil {
		return false, err
	}
	d.started = time.Now()
	d.metrics.Step("begin")
	d.log.Debug("Beginning execution", "holder", d.run.Holder, "budget", d.cfg.StepBudget)

	ix := instruction.BeginPartial(d.program, d.run, d.cfg.StepBudget)
	return d.issue(ctx, 0, ix)
}

// Step issues one Continue call. It reports whether the Return record
// was observed in this call. Step fails with evmloader.ErrCompleted
// after completion and with evmloader.ErrNotRunning before Begin or
// after a failure.
func (d *Driver) Step(ctx context.Context) (bool, error) {
	if err := d.guard.acquireStep(); err != nil {
		return false, err
	}
	elapsed := time.Since(d.started)
	if d.steps >= d.cfg.MaxSteps || (d.cfg.MaxDuration > 0 && elapsed >= d.cfg.MaxDuration) {
		err := &evmloader.StepLimitExceededError{Steps: d.steps, Limit: d.cfg.MaxSteps, Elapsed: elapsed}
		d.fail(err)
		return false, err
	}

	d.steps++
	d.metrics.Step("continue")
	ix := instruction.Continue(d.program, d.run, d.cfg.StepBudget)
	return d.issue(ctx, d.steps, ix)
}

// Run begins the execution if needed and steps it until the Return
// record is observed or the run fails.
func (d *Driver) Run(ctx context.Context) (types.ExecutionResult, error) {
	done := d.State() == StateCompleted
	if d.State() == StateNotStarted {
		var err error
		if done, err = d.Begin(ctx); err != nil {
			return types.ExecutionResult{}, err
		}
	}
	for !done {
		var err error
		if done, err = d.Step(ctx); err != nil {
			res, _ := d.Result()
			return res, err
		}
	}
	res, _ := d.Result()
	return res, nil
}

// issue performs one call with the guard held and settles the state.
func (d *Driver) issue(ctx context.Context, step int, ix types.Instruction) (bool, error) {
	res, err := d.caller.Call(ctx, ix)
	if err == nil {
		var records []types.LogRecord
		if records, err = d.records(res); err == nil {
			if d.collector.Add(records) {
				d.complete()
				return true, nil
			}
			d.log.Debug("Execution step", "step", step, "records", len(records), "sig", res.Signature)
			d.guard.release(StateRunning)
			return false, nil
		}
	}
	err = &evmloader.StepError{Step: step, Err: err}
	d.fail(err)
	return false, err
}

// records decodes the loader's log records from one call.
func (d *Driver) records(res *types.CallResult) ([]types.LogRecord, error) {
	raws, err := logs.RecordData(d.program, res.AccountKeys, res.InnerInstructions)
	if err != nil {
		return nil, err
	}
	return logs.Interpret(raws)
}

func (d *Driver) complete() {
	r := d.collector.Result()
	d.log.Info("Execution completed", "continues", d.steps, "events", len(r.Events),
		"return", len(r.Return), "elapsed", time.Since(d.started))
	d.metrics.Run("completed")
	d.guard.release(StateCompleted)
}

func (d *Driver) fail(err error) {
	d.err = err
	d.log.Warn("Execution failed", "continues", d.steps, "err", err)
	d.metrics.Run("failed")
	d.guard.release(StateFailed)
}
