// Package loader is the high-level client of the EVM loader program. It
// provisions the accounts an execution needs, uploads signed payloads,
// and runs them either iteratively or in one shot.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/address"
	"github.com/blockberries/evmloader/call"
	"github.com/blockberries/evmloader/driver"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/logs"
	"github.com/blockberries/evmloader/metrics"
	"github.com/blockberries/evmloader/transport"
	"github.com/blockberries/evmloader/types"
)

// Defaults for provisioned accounts.
const (
	DefaultAccountSpace    = 128 * 1024
	DefaultAccountLamports = 1_000_000_000
)

// Config parameterizes a Client. Zero values select defaults.
type Config struct {
	// Program is the loader program id.
	Program types.Pubkey

	StepBudget  uint64
	MaxSteps    int
	MaxDuration time.Duration
	MaxChunk    int

	// AccountSpace and AccountLamports size holder and storage
	// accounts.
	AccountSpace    uint64
	AccountLamports uint64

	// WriteRetry resubmits failed chunk writes. Only writes are
	// retried: they are idempotent, execution steps are not.
	WriteRetry call.RetryConfig

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Target names the ledger accounts of one contract invocation.
type Target struct {
	// Contract and Code are the ledger twins of the called contract.
	Contract types.Pubkey
	Code     types.Pubkey
	// Caller is the ledger twin of the ether sender.
	Caller types.Pubkey
}

// EtherAccount is the ledger twin of an ether address.
type EtherAccount struct {
	Ether   common.Address
	Account types.Pubkey
	Nonce   uint8
	// Code is the zero key for accounts without code.
	Code types.Pubkey
}

// Client drives the loader on behalf of one fee payer.
type Client struct {
	ledger    evmloader.Ledger
	caller    evmloader.Caller
	payer     types.Pubkey
	cfg       Config
	transport *transport.Transport
	log       log.Logger
}

// New returns a client reading from l and submitting through caller,
// whose fee payer must be payer.
func New(l evmloader.Ledger, caller evmloader.Caller, payer types.Pubkey, cfg Config) *Client {
	if cfg.AccountSpace == 0 {
		cfg.AccountSpace = DefaultAccountSpace
	}
	if cfg.AccountLamports == 0 {
		cfg.AccountLamports = DefaultAccountLamports
	}
	lg := cfg.Logger
	if lg == nil {
		lg = log.Root()
	}
	return &Client{
		ledger: l,
		caller: caller,
		payer:  payer,
		cfg:    cfg,
		transport: transport.New(call.WithRetry(caller, cfg.WriteRetry), transport.Config{
			Program:  cfg.Program,
			Signer:   payer,
			MaxChunk: cfg.MaxChunk,
			Logger:   lg,
			Metrics:  cfg.Metrics,
		}),
		log: lg.New("module", "loader"),
	}
}

// Program returns the loader program id.
func (c *Client) Program() types.Pubkey { return c.cfg.Program }

// Payer returns the fee payer.
func (c *Client) Payer() types.Pubkey { return c.payer }

// SeedAddress derives the payer's owner-seeded account for seed.
func (c *Client) SeedAddress(seed string) (types.Pubkey, error) {
	return address.Derive(c.payer, seed, c.cfg.Program)
}

// EnsureSeedAccount returns the payer's owner-seeded account for seed,
// creating it if its balance is zero.
func (c *Client) EnsureSeedAccount(ctx context.Context, seed string, lamports, space uint64) (types.Pubkey, error) {
	ix, pk, err := instruction.CreateAccountWithSeed(c.payer, c.payer, seed, lamports, space, c.cfg.Program)
	if err != nil {
		return types.Pubkey{}, err
	}
	balance, err := c.ledger.GetBalance(ctx, pk)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("balance of %s: %w", pk, err)
	}
	if balance != 0 {
		c.log.Debug("Reusing seeded account", "seed", seed, "account", pk)
		return pk, nil
	}
	if _, err := c.caller.Call(ctx, ix); err != nil {
		return types.Pubkey{}, fmt.Errorf("create account %q: %w", seed, err)
	}
	c.log.Info("Created seeded account", "seed", seed, "account", pk, "space", space)
	return pk, nil
}

// EnsureEtherAccount returns the ledger twin of ether, creating it if
// needed. withCode also provisions the account that will hold contract
// code.
func (c *Client) EnsureEtherAccount(ctx context.Context, ether common.Address, withCode bool) (EtherAccount, error) {
	pk, nonce, err := address.EtherAccount(ether, c.cfg.Program)
	if err != nil {
		return EtherAccount{}, err
	}
	acct := EtherAccount{Ether: ether, Account: pk, Nonce: nonce}
	if withCode {
		if acct.Code, err = c.EnsureSeedAccount(ctx, address.CodeSeed(ether), c.cfg.AccountLamports, c.cfg.AccountSpace); err != nil {
			return EtherAccount{}, err
		}
	}

	balance, err := c.ledger.GetBalance(ctx, pk)
	if err != nil {
		return EtherAccount{}, fmt.Errorf("balance of %s: %w", pk, err)
	}
	if balance != 0 {
		return acct, nil
	}
	ix := instruction.CreateAccount(c.cfg.Program, c.payer, pk, acct.Code,
		instruction.EtherCreateData(ether, nonce, c.cfg.AccountLamports, 0))
	if _, err := c.caller.Call(ctx, ix); err != nil {
		return EtherAccount{}, fmt.Errorf("create ether account %s: %w", ether, err)
	}
	c.log.Info("Created ether account", "ether", ether, "account", pk, "code", acct.Code)
	return acct, nil
}

// ResolveTarget provisions the ledger twins of the signer of payload
// and of the contract it addresses, and returns the target naming them.
// For a contract creation the contract twin is the deployment address.
func (c *Client) ResolveTarget(ctx context.Context, payload []byte) (Target, error) {
	sender, contract, creates, err := PayloadParties(payload)
	if err != nil {
		return Target{}, err
	}
	callerAcct, err := c.EnsureEtherAccount(ctx, sender, false)
	if err != nil {
		return Target{}, err
	}
	contractAcct, err := c.EnsureEtherAccount(ctx, contract, true)
	if err != nil {
		return Target{}, err
	}
	c.log.Debug("Resolved target", "sender", sender, "contract", contract, "creates", creates)
	return Target{Contract: contractAcct.Account, Code: contractAcct.Code, Caller: callerAcct.Account}, nil
}

// Upload provisions the holder account for holderSeed and writes
// payload into it.
func (c *Client) Upload(ctx context.Context, payload []byte, holderSeed string) (types.Pubkey, []types.Receipt, error) {
	if uint64(len(payload)) > c.cfg.AccountSpace {
		return types.Pubkey{}, nil, fmt.Errorf("payload of %d bytes exceeds holder space %d", len(payload), c.cfg.AccountSpace)
	}
	holder, err := c.EnsureSeedAccount(ctx, holderSeed, c.cfg.AccountLamports, c.cfg.AccountSpace)
	if err != nil {
		return types.Pubkey{}, nil, err
	}
	receipts, err := c.transport.Write(ctx, payload, holder)
	return holder, receipts, err
}

// NewRun prepares a driver for the payload in holder, provisioning a
// fresh storage account for storageSeed.
func (c *Client) NewRun(ctx context.Context, holder types.Pubkey, storageSeed string, target Target) (*driver.Driver, error) {
	storage, err := c.EnsureSeedAccount(ctx, storageSeed, c.cfg.AccountLamports, c.cfg.AccountSpace)
	if err != nil {
		return nil, err
	}
	run := instruction.RunAccounts{
		Holder:   holder,
		Storage:  storage,
		Contract: target.Contract,
		Code:     target.Code,
		Caller:   target.Caller,
	}
	return driver.New(c.caller, c.cfg.Program, run, driver.Config{
		StepBudget:  c.cfg.StepBudget,
		MaxSteps:    c.cfg.MaxSteps,
		MaxDuration: c.cfg.MaxDuration,
		Logger:      c.log,
		Metrics:     c.cfg.Metrics,
	}), nil
}

// ExecuteIterative uploads payload and steps its execution to
// completion.
func (c *Client) ExecuteIterative(ctx context.Context, payload []byte, holderSeed, storageSeed string, target Target) (types.ExecutionResult, error) {
	holder, _, err := c.Upload(ctx, payload, holderSeed)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	d, err := c.NewRun(ctx, holder, storageSeed, target)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	return d.Run(ctx)
}

// ExecuteFromHolder executes the payload already in holder with a
// single FinalizeFromBuffer call.
func (c *Client) ExecuteFromHolder(ctx context.Context, holder types.Pubkey, target Target) (types.ExecutionResult, error) {
	ix := instruction.FinalizeFromBuffer(c.cfg.Program, instruction.RunAccounts{
		Holder:   holder,
		Contract: target.Contract,
		Code:     target.Code,
		Caller:   target.Caller,
	})
	res, err := c.caller.Call(ctx, ix)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	raws, err := logs.RecordData(c.cfg.Program, res.AccountKeys, res.InnerInstructions)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	records, err := logs.Interpret(raws)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	var col logs.Collector
	if !col.Add(records) {
		return col.Result(), &evmloader.MalformedLogError{Reason: "one-shot execution emitted no return record"}
	}
	return col.Result(), nil
}

// Call invokes contract directly with calldata from caller and returns
// the value reported after the success sentinel. extra accounts are
// passed to the contract in order.
func (c *Client) Call(ctx context.Context, contract, caller types.Pubkey, calldata []byte, extra ...types.AccountMeta) ([]byte, *types.CallResult, error) {
	ix := instruction.Call(c.cfg.Program, contract, caller, c.payer, calldata, extra...)
	res, err := c.caller.Call(ctx, ix)
	if err != nil {
		return nil, nil, err
	}
	value, err := call.ReturnValue(res.Logs)
	if err != nil {
		return nil, res, err
	}
	return value, res, nil
}
