package local_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/call"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/local"
	loadertest "github.com/blockberries/evmloader/testing"
	"github.com/blockberries/evmloader/types"
)

func TestLocalLedger_Compliance(t *testing.T) {
	loadertest.RunComplianceSuite(t, nil)
}

// recorder stores its instruction data in the first account and emits
// it back as one record. Data starting with 0xFF fails after writing.
type recorder struct{ id types.Pubkey }

func (r recorder) Invoke(_ context.Context, inv evmloader.Invocation) (evmloader.Outcome, error) {
	if err := inv.State.SetData(inv.Accounts[0].Pubkey, inv.Data); err != nil {
		return evmloader.Outcome{}, err
	}
	if len(inv.Data) > 0 && inv.Data[0] == 0xFF {
		return evmloader.Outcome{Logs: []string{"about to fail"}}, errors.New("boom")
	}
	return evmloader.Outcome{Logs: []string{"stored"}, Records: [][]byte{inv.Data}}, nil
}

type fixture struct {
	l      *local.Ledger
	payer  *ledger.Keypair
	caller *call.Caller
	prog   types.Pubkey
	acct   types.Pubkey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	payer, err := ledger.KeypairFromSeed(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatal(err)
	}
	l := local.NewLedger(local.Config{})
	prog := types.Pubkey{0xAB}
	l.Register(prog, recorder{id: prog})
	l.Fund(payer.Pubkey(), 10_000_000)

	f := &fixture{l: l, payer: payer, caller: call.New(l, payer, loadertest.FastCallConfig()), prog: prog}
	ix, acct, err := instruction.CreateAccountWithSeed(payer.Pubkey(), payer.Pubkey(), "acct", 1000, 64, prog)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.caller.Call(context.Background(), ix); err != nil {
		t.Fatalf("create account: %v", err)
	}
	f.acct = acct
	return f
}

func (f *fixture) store(data []byte) types.Instruction {
	return types.Instruction{ProgramID: f.prog, Accounts: []types.AccountMeta{types.Writable(f.acct)}, Data: data}
}

func TestLocalLedger_SystemCreateAccountWithSeed(t *testing.T) {
	f := newFixture(t)
	acc, ok := f.l.Account(f.acct)
	if !ok {
		t.Fatal("account not created")
	}
	if acc.Owner != f.prog || acc.Space != 64 || acc.Lamports != 1000 {
		t.Fatalf("unexpected account: %+v", acc)
	}
	bal, _ := f.l.GetBalance(context.Background(), f.payer.Pubkey())
	if bal != 10_000_000-1000 {
		t.Fatalf("payer balance %d", bal)
	}

	// Creating it again fails: the account is in use.
	ix, _, _ := instruction.CreateAccountWithSeed(f.payer.Pubkey(), f.payer.Pubkey(), "acct", 1000, 64, f.prog)
	if _, err := f.caller.Call(context.Background(), ix); err == nil {
		t.Fatal("expected re-creation to fail")
	}
}

func TestLocalLedger_RecordsAndLogs(t *testing.T) {
	f := newFixture(t)
	res, err := f.caller.Call(context.Background(), f.store([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res.InnerInstructions) != 1 || len(res.InnerInstructions[0].Instructions) != 1 {
		t.Fatalf("expected one record, got %+v", res.InnerInstructions)
	}
	ci := res.InnerInstructions[0].Instructions[0]
	if res.AccountKeys[ci.ProgramIDIndex] != f.prog {
		t.Fatalf("record attributed to %s", res.AccountKeys[ci.ProgramIDIndex])
	}
	found := false
	for _, line := range res.Logs {
		if line == "Program log: stored" {
			found = true
		}
	}
	if !found {
		t.Fatalf("program log missing: %q", res.Logs)
	}
	acc, _ := f.l.Account(f.acct)
	if !bytes.Equal(acc.Data, []byte{1, 2, 3}) {
		t.Fatalf("data not stored: %x", acc.Data)
	}
}

func TestLocalLedger_FailedTransactionRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.caller.Call(ctx, f.store([]byte{7})); err != nil {
		t.Fatalf("Call: %v", err)
	}

	// The first instruction succeeds, the second fails: neither sticks.
	_, err := f.caller.Call(ctx, f.store([]byte{8}), f.store([]byte{0xFF}))
	r, ok := evmloader.IsRejected(err)
	if !ok {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if len(r.Logs) == 0 {
		t.Fatal("rejection should carry logs")
	}
	acc, _ := f.l.Account(f.acct)
	if !bytes.Equal(acc.Data, []byte{7}) {
		t.Fatalf("failed transaction leaked changes: %x", acc.Data)
	}
}

func TestLocalLedger_AccessChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	readonly := types.Instruction{ProgramID: f.prog, Accounts: []types.AccountMeta{types.Readonly(f.acct)}, Data: []byte{1}}
	if _, err := f.caller.Call(ctx, readonly); err == nil {
		t.Fatal("expected write to read-only account to fail")
	}
	if _, err := f.caller.Call(ctx, f.store(make([]byte, 65))); err == nil {
		t.Fatal("expected write beyond account space to fail")
	}
	unknown := types.Instruction{ProgramID: types.Pubkey{0x77}, Data: []byte{1}}
	if _, err := f.caller.Call(ctx, unknown); err == nil {
		t.Fatal("expected unknown program to fail")
	}
}

func TestLocalLedger_RefusesBadTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, _ := f.l.LatestBlockhash(ctx)
	tx, err := ledger.NewTransaction(hash, []types.Instruction{f.store([]byte{1})}, f.payer)
	if err != nil {
		t.Fatal(err)
	}
	raw := tx.Serialize()
	if _, err := f.l.SendTransaction(ctx, raw); err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if _, err := f.l.SendTransaction(ctx, raw); !isRefusal(err) {
		t.Fatalf("expected duplicate to be refused, got %v", err)
	}

	stale, _ := ledger.NewTransaction(types.Hash{0x01}, []types.Instruction{f.store([]byte{2})}, f.payer)
	if _, err := f.l.SendTransaction(ctx, stale.Serialize()); !isRefusal(err) {
		t.Fatalf("expected unknown blockhash to be refused, got %v", err)
	}

	forged := tx.Serialize()
	forged[1] ^= 0xFF
	_, err = f.l.SendTransaction(ctx, forged)
	if !isRefusal(err) || !errors.Is(err, ledger.ErrBadSignature) {
		t.Fatalf("expected refusal wrapping ErrBadSignature, got %v", err)
	}

	if _, err := f.l.SendTransaction(ctx, []byte{1, 2}); !isRefusal(err) {
		t.Fatalf("expected undecodable transaction to be refused, got %v", err)
	}
}

// isRefusal reports whether err is a refusal at submission.
func isRefusal(err error) bool {
	r, ok := evmloader.IsRejected(err)
	return ok && r.Signature == (types.Signature{}) && r.Err != nil
}

func TestLocalLedger_ConfirmationLag(t *testing.T) {
	payer, _ := ledger.KeypairFromSeed(bytes.Repeat([]byte{3}, 32))
	l := local.NewLedger(local.Config{ConfirmationLag: 2})
	l.Fund(payer.Pubkey(), 1_000_000)
	ctx := context.Background()

	ix, _, _ := instruction.CreateAccountWithSeed(payer.Pubkey(), payer.Pubkey(), "s", 10, 0, types.Pubkey{1})
	hash, _ := l.LatestBlockhash(ctx)
	tx, _ := ledger.NewTransaction(hash, []types.Instruction{ix}, payer)
	sig, err := l.SendTransaction(ctx, tx.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if st, _ := l.GetTransaction(ctx, sig); st != nil {
			t.Fatalf("poll %d: confirmed too early", i)
		}
	}
	st, err := l.GetTransaction(ctx, sig)
	if err != nil || st == nil || !st.OK() {
		t.Fatalf("expected confirmed status, got %+v err=%v", st, err)
	}
}

func TestLocalLedger_Closed(t *testing.T) {
	l := local.NewLedger(local.Config{})
	l.Close()
	if _, err := l.LatestBlockhash(context.Background()); !errors.Is(err, local.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
