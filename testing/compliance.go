package loadertest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/loader"
	"github.com/blockberries/evmloader/types"
)

// ThreeStepScript takes 150 instructions: three calls at budget 50. It
// emits one event in each call and returns Word(3).
func ThreeStepScript() Script {
	topic := common.HexToHash("0xa9e6f12b3f2b8a0c4c3f0e2d6e0b0b3b7e0ab7a0f7f3d1d1c7b8d3c6f2b1a0e9")
	emitter := common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	ev := func(v uint64) []types.Event {
		return []types.Event{{Address: emitter, Topics: []common.Hash{topic}, Data: Word(v)}}
	}
	return Script{
		Instructions: 150,
		Events:       map[uint64][]types.Event{10: ev(1), 60: ev(2), 120: ev(3)},
		Return:       Word(3),
	}
}

// RunComplianceSuite runs the loader protocol against the Ledger built
// by factory: chunked upload, begin/continue stepping, log decoding,
// one-shot execution, direct calls and failure propagation.
func RunComplianceSuite(t *testing.T, factory LedgerFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("upload_partitions_payload", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		payload := h.PayloadOfSize(2500)

		holder, receipts, err := h.Client.Upload(ctx, payload, "holder")
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if got := h.Program.WriteCalls.Load(); got != 3 {
			t.Fatalf("expected 3 writes, got %d", got)
		}
		wantOffsets := []uint32{0, 1000, 2000}
		wantLens := []uint64{1000, 1000, 500}
		for i, r := range receipts {
			if r.Offset != wantOffsets[i] || r.Length != wantLens[i] {
				t.Errorf("receipt %d: offset=%d len=%d", i, r.Offset, r.Length)
			}
		}
		if !bytes.Equal(h.AccountData(holder), payload) {
			t.Fatal("holder does not contain the payload")
		}
	})

	t.Run("rewrite_is_idempotent", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		payload := h.PayloadOfSize(1500)

		first, _, err := h.Client.Upload(ctx, payload, "holder")
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		second, _, err := h.Client.Upload(ctx, payload, "holder")
		if err != nil {
			t.Fatalf("second Upload: %v", err)
		}
		if first != second {
			t.Fatalf("holder not reused: %s != %s", first, second)
		}
		if !bytes.Equal(h.AccountData(second), payload) {
			t.Fatal("holder changed by identical rewrite")
		}
	})

	t.Run("begin_then_two_continues", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		target := h.Setup()

		res := h.Execute(h.PayloadOfSize(2500), "holder", "storage", target)

		if b, c := h.Program.BeginCalls.Load(), h.Program.ContinueCalls.Load(); b != 1 || c != 2 {
			t.Fatalf("expected 1 begin and 2 continues, got %d and %d", b, c)
		}
		for i, budget := range h.Program.StepBudgets() {
			if budget != 50 {
				t.Errorf("call %d: step budget %d, want 50", i, budget)
			}
		}
		if !res.Completed || res.Calls != 3 {
			t.Fatalf("unexpected result: %+v", res)
		}
		if len(res.Events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(res.Events))
		}
		for i, ev := range res.Events {
			if !bytes.Equal(ev.Data, Word(uint64(i+1))) {
				t.Errorf("event %d out of order: %x", i, ev.Data)
			}
		}
		if !bytes.Equal(res.Return, Word(3)) {
			t.Fatalf("unexpected return: %x", res.Return)
		}
	})

	t.Run("return_only", func(t *testing.T) {
		h := NewHarness(t, Script{Instructions: 10, Return: []byte{0x01}}, factory)
		target := h.Setup()

		res := h.Execute(h.PayloadOfSize(300), "holder", "storage", target)
		if len(res.Events) != 0 || !bytes.Equal(res.Return, []byte{0x01}) {
			t.Fatalf("unexpected result: %+v", res)
		}
		if c := h.Program.ContinueCalls.Load(); c != 0 {
			t.Fatalf("no continue expected after a returning begin, got %d", c)
		}
	})

	t.Run("one_shot_finalize", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		target := h.Setup()

		holder, _, err := h.Client.Upload(ctx, h.PayloadOfSize(1200), "holder")
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		res, err := h.Client.ExecuteFromHolder(ctx, holder, target)
		if err != nil {
			t.Fatalf("ExecuteFromHolder: %v", err)
		}
		if len(res.Events) != 3 || !bytes.Equal(res.Return, Word(3)) {
			t.Fatalf("unexpected result: %+v", res)
		}
		if h.Program.FinalizeCalls.Load() != 1 || h.Program.BeginCalls.Load() != 0 {
			t.Fatal("expected a single finalize call")
		}
	})

	t.Run("wrong_caller_rejected", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		target := h.Setup()
		target.Caller = target.Contract

		_, err := h.Client.ExecuteIterative(ctx, h.PayloadOfSize(300), "holder", "storage", target)
		if _, ok := evmloader.IsRejected(err); !ok {
			t.Fatalf("expected RejectedError, got %v", err)
		}
		if se, ok := evmloader.IsStep(err); !ok || se.Step != 0 {
			t.Fatalf("expected failure at begin, got %v", err)
		}
	})

	t.Run("failed_continue_is_terminal", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		h.Program.FailFn = func(tag instruction.Tag, n int64) error {
			if tag == instruction.TagContinue && n == 1 {
				return errors.New("storage account locked")
			}
			return nil
		}
		target := h.Setup()

		_, err := h.Client.ExecuteIterative(ctx, h.PayloadOfSize(300), "holder", "storage", target)
		se, ok := evmloader.IsStep(err)
		if !ok || se.Step != 1 {
			t.Fatalf("expected StepError at continue 1, got %v", err)
		}
		r, ok := evmloader.IsRejected(err)
		if !ok || len(r.Logs) == 0 {
			t.Fatalf("expected RejectedError with logs, got %v", err)
		}
		if c := h.Program.ContinueCalls.Load(); c != 1 {
			t.Fatalf("expected no continue after the failure, got %d", c)
		}
	})

	t.Run("step_limit", func(t *testing.T) {
		h := NewHarnessWithConfig(t, Script{Instructions: 1 << 20}, factory, loader.Config{MaxSteps: 3})
		target := h.Setup()

		_, err := h.Client.ExecuteIterative(ctx, h.PayloadOfSize(300), "holder", "storage", target)
		sl, ok := evmloader.IsStepLimitExceeded(err)
		if !ok {
			t.Fatalf("expected StepLimitExceededError, got %v", err)
		}
		if sl.Limit != 3 {
			t.Errorf("unexpected limit: %+v", sl)
		}
		if c := h.Program.ContinueCalls.Load(); c != 3 {
			t.Fatalf("expected 3 continues before giving up, got %d", c)
		}
	})

	t.Run("direct_call_sentinel", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		h.Program.CallFn = func(_ context.Context, _ evmloader.Invocation, calldata []byte) ([]byte, error) {
			return append([]byte{0xCA, 0xFE}, calldata...), nil
		}
		target := h.Setup()

		value, res, err := h.Client.Call(ctx, target.Contract, target.Caller, []byte{0x01, 0x02})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if !bytes.Equal(value, []byte{0xCA, 0xFE, 0x01, 0x02}) {
			t.Fatalf("unexpected value: %x", value)
		}
		if res.Signature == (types.Signature{}) {
			t.Fatal("missing signature")
		}
	})

	t.Run("seeded_account_reused", func(t *testing.T) {
		h := NewHarness(t, ThreeStepScript(), factory)
		a, err := h.Client.EnsureSeedAccount(ctx, "storage", 1000, 64)
		if err != nil {
			t.Fatalf("EnsureSeedAccount: %v", err)
		}
		slot := h.Local.Slot()
		b, err := h.Client.EnsureSeedAccount(ctx, "storage", 1000, 64)
		if err != nil {
			t.Fatalf("second EnsureSeedAccount: %v", err)
		}
		if a != b {
			t.Fatalf("address changed: %s != %s", a, b)
		}
		if h.Local.Slot() != slot {
			t.Fatal("existing account must not be re-created")
		}
		want, _ := h.Client.SeedAddress("storage")
		if a != want {
			t.Fatalf("account %s is not the derived address %s", a, want)
		}
	})
}
