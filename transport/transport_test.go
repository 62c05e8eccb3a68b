package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/types"
)

var (
	program = types.Pubkey{0xE0}
	signer  = types.Pubkey{0x01}
	holder  = types.Pubkey{0x10}
)

// recordingCaller captures every instruction and fails the call whose
// zero-based index equals failAt.
type recordingCaller struct {
	ixs    []types.Instruction
	failAt int
}

func (r *recordingCaller) Call(_ context.Context, ixs ...types.Instruction) (*types.CallResult, error) {
	n := len(r.ixs)
	r.ixs = append(r.ixs, ixs...)
	if n == r.failAt {
		return nil, errors.New("ledger said no")
	}
	return &types.CallResult{Signature: types.Signature{byte(n + 1)}}, nil
}

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func TestSplit_Partition(t *testing.T) {
	for _, size := range []int{0, 1, 999, 1000, 1001, 2500, 4000, 12345} {
		for _, max := range []int{1, 7, 1000} {
			p := payload(size)
			chunks := Split(p, max)

			var rebuilt []byte
			for i, c := range chunks {
				if int(c.Offset) != len(rebuilt) {
					t.Fatalf("size=%d max=%d chunk %d: offset %d, want %d", size, max, i, c.Offset, len(rebuilt))
				}
				if len(c.Bytes) == 0 || len(c.Bytes) > max {
					t.Fatalf("size=%d max=%d chunk %d: bad length %d", size, max, i, len(c.Bytes))
				}
				rebuilt = append(rebuilt, c.Bytes...)
			}
			if !bytes.Equal(rebuilt, p) {
				t.Fatalf("size=%d max=%d: concatenation does not reconstruct payload", size, max)
			}
			if size > 0 && int(chunks[len(chunks)-1].End()) != size {
				t.Fatalf("size=%d max=%d: last chunk ends at %d", size, max, chunks[len(chunks)-1].End())
			}
		}
	}
}

func TestSplit_DefaultMax(t *testing.T) {
	chunks := Split(payload(2001), 0)
	if len(chunks) != 3 || len(chunks[0].Bytes) != DefaultMaxChunk {
		t.Fatalf("expected default chunking, got %d chunks", len(chunks))
	}
}

func TestWrite_2500Bytes(t *testing.T) {
	rc := &recordingCaller{failAt: -1}
	tr := New(rc, Config{Program: program, Signer: signer, MaxChunk: 1000})

	p := payload(2500)
	receipts, err := tr.Write(context.Background(), p, holder)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	wantOffsets := []uint32{0, 1000, 2000}
	wantLens := []uint64{1000, 1000, 500}
	if len(rc.ixs) != 3 || len(receipts) != 3 {
		t.Fatalf("expected 3 write calls, got %d (receipts %d)", len(rc.ixs), len(receipts))
	}

	for i, ix := range rc.ixs {
		if ix.ProgramID != program {
			t.Errorf("call %d: program %s", i, ix.ProgramID)
		}
		if ix.Accounts[0] != types.Writable(holder) || ix.Accounts[1] != types.Signer(signer) {
			t.Errorf("call %d: unexpected accounts %+v", i, ix.Accounts)
		}
		dec, err := instruction.Decode(ix.Data)
		if err != nil {
			t.Fatalf("call %d: decode: %v", i, err)
		}
		w, ok := dec.(instruction.WriteData)
		if !ok {
			t.Fatalf("call %d: expected WriteData, got %T", i, dec)
		}
		if w.Offset != wantOffsets[i] || uint64(len(w.Bytes)) != wantLens[i] {
			t.Errorf("call %d: offset=%d len=%d", i, w.Offset, len(w.Bytes))
		}
		if !bytes.Equal(w.Bytes, p[w.Offset:int(w.Offset)+len(w.Bytes)]) {
			t.Errorf("call %d: chunk bytes differ from payload", i)
		}

		r := receipts[i]
		if r.Offset != wantOffsets[i] || r.Length != wantLens[i] || r.Signature != (types.Signature{byte(i + 1)}) {
			t.Errorf("receipt %d: %+v", i, r)
		}
	}
}

func TestWrite_FailureStopsTransfer(t *testing.T) {
	rc := &recordingCaller{failAt: 1}
	tr := New(rc, Config{Program: program, Signer: signer})

	receipts, err := tr.Write(context.Background(), payload(3500), holder)
	te, ok := evmloader.IsTransport(err)
	if !ok {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Offset != 1000 || te.Length != 1000 {
		t.Errorf("unexpected failing chunk: %+v", te)
	}
	if len(rc.ixs) != 2 {
		t.Errorf("expected no write after the failed one, got %d calls", len(rc.ixs))
	}
	if len(receipts) != 1 {
		t.Errorf("expected the confirmed chunk to be reported, got %d receipts", len(receipts))
	}
}

func TestWrite_EmptyPayload(t *testing.T) {
	rc := &recordingCaller{failAt: -1}
	receipts, err := New(rc, Config{Program: program, Signer: signer}).Write(context.Background(), nil, holder)
	if err != nil || len(receipts) != 0 || len(rc.ixs) != 0 {
		t.Fatalf("expected no calls for empty payload: receipts=%d calls=%d err=%v", len(receipts), len(rc.ixs), err)
	}
}
