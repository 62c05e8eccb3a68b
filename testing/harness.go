package loadertest

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/address"
	"github.com/blockberries/evmloader/call"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/loader"
	"github.com/blockberries/evmloader/local"
	"github.com/blockberries/evmloader/types"
)

// Fixed identities so that runs are reproducible.
var (
	DefaultProgramID = types.MustPubkey("EvmLoader1111111111111111111111111111111111")
	DefaultChainID   = big.NewInt(111)

	payerSeed = bytes.Repeat([]byte{0x42}, 32)
	etherKey  = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
)

// LedgerFactory wraps the in-process ledger in the Ledger under test.
// Returning l unchanged tests the in-process ledger itself.
type LedgerFactory func(t *testing.T, l *local.Ledger) evmloader.Ledger

// Harness wires a scripted Program into an in-process ledger and gives
// tests a funded payer, an ether signing key and a loader client.
type Harness struct {
	t       *testing.T
	Local   *local.Ledger
	Ledger  evmloader.Ledger
	Program *Program
	Payer   *ledger.Keypair
	EthKey  *ecdsa.PrivateKey
	Caller  *call.Caller
	Client  *loader.Client
}

// NewHarness builds a harness running script. factory may be nil.
func NewHarness(t *testing.T, script Script, factory LedgerFactory) *Harness {
	t.Helper()
	return NewHarnessWithConfig(t, script, factory, loader.Config{})
}

// NewHarnessWithConfig is NewHarness with a custom loader
// configuration. cfg.Program is always DefaultProgramID.
func NewHarnessWithConfig(t *testing.T, script Script, factory LedgerFactory, cfg loader.Config) *Harness {
	t.Helper()

	payer, err := ledger.KeypairFromSeed(payerSeed)
	if err != nil {
		t.Fatalf("payer keypair: %v", err)
	}
	ethKey, err := crypto.HexToECDSA(etherKey)
	if err != nil {
		t.Fatalf("ether key: %v", err)
	}

	loc := local.NewLedger(local.Config{ConfirmationLag: 1})
	prog := NewProgram(DefaultProgramID, script)
	loc.Register(prog.ID, prog)
	loc.Fund(payer.Pubkey(), 1_000_000_000_000)

	var l evmloader.Ledger = loc
	if factory != nil {
		l = factory(t, loc)
	}
	t.Cleanup(func() { l.Close() })

	caller := call.New(l, payer, FastCallConfig())
	cfg.Program = prog.ID
	return &Harness{
		t:       t,
		Local:   loc,
		Ledger:  l,
		Program: prog,
		Payer:   payer,
		EthKey:  ethKey,
		Caller:  caller,
		Client:  loader.New(l, caller, payer.Pubkey(), cfg),
	}
}

// FastCallConfig polls for confirmation every millisecond.
func FastCallConfig() call.Config {
	return call.Config{Timeout: 5 * time.Second, FirstPoll: time.Millisecond, PollInterval: time.Millisecond}
}

// Ether returns the ether address of the harness signing key.
func (h *Harness) Ether() common.Address {
	return crypto.PubkeyToAddress(h.EthKey.PublicKey)
}

// Payload returns a signed payload calling to with data.
func (h *Harness) Payload(nonce uint64, to common.Address, data []byte) []byte {
	h.t.Helper()
	tx := &ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(1),
		Gas:      987654321,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	}
	p, err := loader.SignedPayload(tx, DefaultChainID, h.EthKey)
	if err != nil {
		h.t.Fatalf("SignedPayload: %v", err)
	}
	return p
}

// PayloadOfSize returns a signed payload of exactly n bytes, n >= 200.
func (h *Harness) PayloadOfSize(n int) []byte {
	h.t.Helper()
	to := address.ContractAddress(h.Ether(), 0)
	for pad := max(n-200, 0); pad <= n; pad++ {
		p := h.Payload(0, to, make([]byte, pad))
		if len(p) == n {
			return p
		}
	}
	h.t.Fatalf("cannot build a payload of %d bytes", n)
	return nil
}

// Setup creates the ether accounts of the harness caller and of a
// contract it deploys, and returns the target naming them.
func (h *Harness) Setup() loader.Target {
	h.t.Helper()
	ctx := context.Background()
	caller, err := h.Client.EnsureEtherAccount(ctx, h.Ether(), false)
	if err != nil {
		h.t.Fatalf("EnsureEtherAccount(caller): %v", err)
	}
	contract, err := h.Client.EnsureEtherAccount(ctx, address.ContractAddress(h.Ether(), 0), true)
	if err != nil {
		h.t.Fatalf("EnsureEtherAccount(contract): %v", err)
	}
	return loader.Target{Contract: contract.Account, Code: contract.Code, Caller: caller.Account}
}

// Execute uploads payload and runs it to completion.
func (h *Harness) Execute(payload []byte, holderSeed, storageSeed string, target loader.Target) types.ExecutionResult {
	h.t.Helper()
	res, err := h.Client.ExecuteIterative(context.Background(), payload, holderSeed, storageSeed, target)
	if err != nil {
		h.t.Fatalf("ExecuteIterative: %v", err)
	}
	return res
}

// AccountData returns the data of pk in the in-process ledger.
func (h *Harness) AccountData(pk types.Pubkey) []byte {
	h.t.Helper()
	acc, ok := h.Local.Account(pk)
	if !ok {
		h.t.Fatalf("account %s does not exist", pk)
	}
	return acc.Data
}

// Word returns a 32-byte big-endian word holding v.
func Word(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}
