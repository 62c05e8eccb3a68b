// Package loadertest provides test utilities for code built on the
// loader protocol: a scripted loader program with call counters, a
// harness wiring it to an in-process ledger, and a protocol compliance
// suite any evmloader.Ledger can be run against.
package loadertest

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/address"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/loader"
	"github.com/blockberries/evmloader/logs"
	"github.com/blockberries/evmloader/types"
)

// Compile-time interface check.
var _ evmloader.Program = (*Program)(nil)

// Storage account states.
const (
	storageIdle    byte = 0
	storageRunning byte = 1
	storageDone    byte = 2
	storageLen          = 1 + 8
)

// Script describes the execution of every payload the program runs.
type Script struct {
	// Instructions is the VM work the execution takes. Each call
	// performs up to its step budget of it.
	Instructions uint64
	// Events maps an instruction index to the events it emits.
	Events map[uint64][]types.Event
	// Return is the value reported when the execution finishes.
	Return []byte
}

// Program is a scripted stand-in for the loader program. It checks
// account roles and payload signatures like the real program, and
// replaces the VM with Script.
//
// Unconfigured hooks use defaults: CallFn echoes calldata and FailFn
// never fails.
type Program struct {
	mu     sync.Mutex
	ID     types.Pubkey
	Script Script

	// CallFn computes the result of a direct Call.
	CallFn func(ctx context.Context, inv evmloader.Invocation, calldata []byte) ([]byte, error)
	// FailFn injects a failure into the n-th (1-based) call of tag.
	FailFn func(tag instruction.Tag, n int64) error

	// Call counters (atomic for concurrent access).
	WriteCalls    atomic.Int64
	CreateCalls   atomic.Int64
	CallCalls     atomic.Int64
	FinalizeCalls atomic.Int64
	BeginCalls    atomic.Int64
	ContinueCalls atomic.Int64

	budgets []uint64
}

// NewProgram returns a program with id running script.
func NewProgram(id types.Pubkey, script Script) *Program {
	return &Program{ID: id, Script: script}
}

// StepBudgets returns the budgets of every begin and continue call, in
// order.
func (p *Program) StepBudgets() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.budgets...)
}

func (p *Program) Invoke(ctx context.Context, inv evmloader.Invocation) (evmloader.Outcome, error) {
	dec, err := instruction.Decode(inv.Data)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	n := p.count(dec.Tag())
	if p.FailFn != nil {
		if err := p.FailFn(dec.Tag(), n); err != nil {
			return evmloader.Outcome{}, err
		}
	}

	switch d := dec.(type) {
	case instruction.WriteData:
		return p.write(inv, d)
	case instruction.CreateAccountData:
		return p.createAccount(inv, d)
	case instruction.CallData:
		return p.call(ctx, inv, d)
	case instruction.FinalizeData:
		return p.finalize(inv)
	case instruction.StepsData:
		p.mu.Lock()
		p.budgets = append(p.budgets, d.Steps)
		p.mu.Unlock()
		if d.Kind == instruction.TagBeginPartial {
			return p.begin(inv, d.Steps)
		}
		return p.resume(inv, d.Steps)
	default:
		return evmloader.Outcome{}, fmt.Errorf("unsupported instruction %s", dec.Tag())
	}
}

func (p *Program) count(tag instruction.Tag) int64 {
	switch tag {
	case instruction.TagWrite:
		return p.WriteCalls.Add(1)
	case instruction.TagCreateAccount:
		return p.CreateCalls.Add(1)
	case instruction.TagCall:
		return p.CallCalls.Add(1)
	case instruction.TagFinalizeFromBuffer:
		return p.FinalizeCalls.Add(1)
	case instruction.TagBeginPartial:
		return p.BeginCalls.Add(1)
	case instruction.TagContinue:
		return p.ContinueCalls.Add(1)
	}
	return 0
}

// accounts checks the instruction references at least n accounts.
func accounts(inv evmloader.Invocation, n int) ([]types.AccountMeta, error) {
	if len(inv.Accounts) < n {
		return nil, fmt.Errorf("expected %d accounts, got %d", n, len(inv.Accounts))
	}
	return inv.Accounts, nil
}

func (p *Program) owned(inv evmloader.Invocation, pk types.Pubkey) error {
	if !inv.State.Exists(pk) {
		return fmt.Errorf("account %s does not exist", pk)
	}
	if owner := inv.State.Owner(pk); owner != p.ID {
		return fmt.Errorf("account %s is owned by %s", pk, owner)
	}
	return nil
}

func (p *Program) write(inv evmloader.Invocation, d instruction.WriteData) (evmloader.Outcome, error) {
	accs, err := accounts(inv, 2)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	holder, signer := accs[0].Pubkey, accs[1]
	if !signer.IsSigner {
		return evmloader.Outcome{}, errors.New("write: signer missing")
	}
	if err := p.owned(inv, holder); err != nil {
		return evmloader.Outcome{}, err
	}
	data := inv.State.Data(holder)
	end := int(d.Offset) + len(d.Bytes)
	if end > len(data) {
		data = append(data, make([]byte, end-len(data))...)
	}
	copy(data[d.Offset:], d.Bytes)
	return evmloader.Outcome{}, inv.State.SetData(holder, data)
}

func (p *Program) createAccount(inv evmloader.Invocation, d instruction.CreateAccountData) (evmloader.Outcome, error) {
	accs, err := accounts(inv, 3)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if !accs[0].IsSigner {
		return evmloader.Outcome{}, errors.New("create account: funder did not sign")
	}
	want, err := address.CreateProgramAddress([][]byte{d.Ether.Bytes(), {d.Nonce}}, p.ID)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if accs[1].Pubkey != want {
		return evmloader.Outcome{}, fmt.Errorf("create account: %s is not the account of %s", accs[1].Pubkey, d.Ether)
	}
	if len(accs) > 3 {
		if err := p.owned(inv, accs[2].Pubkey); err != nil {
			return evmloader.Outcome{}, fmt.Errorf("create account: code: %w", err)
		}
	}
	return evmloader.Outcome{}, inv.State.Create(want, p.ID, d.Lamports, d.Space)
}

func (p *Program) call(ctx context.Context, inv evmloader.Invocation, d instruction.CallData) (evmloader.Outcome, error) {
	accs, err := accounts(inv, 4)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if err := p.owned(inv, accs[0].Pubkey); err != nil {
		return evmloader.Outcome{}, fmt.Errorf("call: contract: %w", err)
	}
	if !accs[len(accs)-2].IsSigner {
		return evmloader.Outcome{}, errors.New("call: signer missing")
	}
	result := d.Calldata
	if p.CallFn != nil {
		if result, err = p.CallFn(ctx, inv, d.Calldata); err != nil {
			return evmloader.Outcome{}, err
		}
	}
	return evmloader.Outcome{Logs: []string{"succeed", hex.EncodeToString(result)}}, nil
}

// payload checks the signed payload in holder was signed by the ether
// twin of caller.
func (p *Program) payload(inv evmloader.Invocation, holder, caller types.Pubkey) error {
	if err := p.owned(inv, holder); err != nil {
		return err
	}
	data := inv.State.Data(holder)
	if len(data) < loader.SignatureLength+8 {
		return errors.New("holder does not contain a payload")
	}
	n := binary.LittleEndian.Uint64(data[loader.SignatureLength:])
	end := uint64(loader.SignatureLength + 8)
	if n > uint64(len(data))-end {
		return fmt.Errorf("holder payload truncated: message of %d bytes", n)
	}
	sender, _, err := loader.PayloadSender(data[:end+n])
	if err != nil {
		return err
	}
	want, _, err := address.EtherAccount(sender, p.ID)
	if err != nil {
		return err
	}
	if want != caller {
		return fmt.Errorf("caller %s is not the account of signer %s", caller, sender)
	}
	return nil
}

// begin accounts: holder, storage, contract, code, caller, program, clock.
func (p *Program) begin(inv evmloader.Invocation, budget uint64) (evmloader.Outcome, error) {
	accs, err := accounts(inv, 7)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if err := p.payload(inv, accs[0].Pubkey, accs[4].Pubkey); err != nil {
		return evmloader.Outcome{}, err
	}
	storage := accs[1].Pubkey
	if err := p.owned(inv, storage); err != nil {
		return evmloader.Outcome{}, err
	}
	if state, _ := decodeStorage(inv.State.Data(storage)); state == storageRunning {
		return evmloader.Outcome{}, fmt.Errorf("storage %s holds a running execution", storage)
	}
	return p.advance(inv, storage, 0, budget)
}

// resume accounts: storage, contract, code, caller, program, clock.
func (p *Program) resume(inv evmloader.Invocation, budget uint64) (evmloader.Outcome, error) {
	accs, err := accounts(inv, 6)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	storage := accs[0].Pubkey
	if err := p.owned(inv, storage); err != nil {
		return evmloader.Outcome{}, err
	}
	state, progress := decodeStorage(inv.State.Data(storage))
	if state != storageRunning {
		return evmloader.Outcome{}, fmt.Errorf("storage %s holds no running execution", storage)
	}
	return p.advance(inv, storage, progress, budget)
}

// finalize accounts: holder, contract, code, caller, program, clock.
func (p *Program) finalize(inv evmloader.Invocation) (evmloader.Outcome, error) {
	accs, err := accounts(inv, 6)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if err := p.payload(inv, accs[0].Pubkey, accs[3].Pubkey); err != nil {
		return evmloader.Outcome{}, err
	}
	records, _ := p.run(0, p.Script.Instructions)
	return evmloader.Outcome{Records: records}, nil
}

// advance performs up to budget instructions from progress and persists
// the new progress in storage.
func (p *Program) advance(inv evmloader.Invocation, storage types.Pubkey, progress, budget uint64) (evmloader.Outcome, error) {
	if budget == 0 {
		return evmloader.Outcome{}, errors.New("zero step budget")
	}
	records, next := p.run(progress, budget)
	state := storageRunning
	if next >= p.Script.Instructions {
		state = storageDone
	}
	if err := inv.State.SetData(storage, encodeStorage(state, next)); err != nil {
		return evmloader.Outcome{}, err
	}
	return evmloader.Outcome{Records: records}, nil
}

// run executes instructions [from, from+budget) of the script and
// returns the records emitted and the new progress.
func (p *Program) run(from, budget uint64) ([][]byte, uint64) {
	to := min(from+budget, p.Script.Instructions)
	var records [][]byte
	for i := from; i < to; i++ {
		for _, ev := range p.Script.Events[i] {
			records = append(records, logs.EncodeEvent(ev))
		}
	}
	if to >= p.Script.Instructions {
		records = append(records, logs.EncodeReturn(p.Script.Return))
	}
	return records, to
}

func encodeStorage(state byte, progress uint64) []byte {
	b := make([]byte, storageLen)
	b[0] = state
	binary.LittleEndian.PutUint64(b[1:], progress)
	return b
}

func decodeStorage(b []byte) (byte, uint64) {
	if len(b) < storageLen {
		return storageIdle, 0
	}
	return b[0], binary.LittleEndian.Uint64(b[1:])
}
