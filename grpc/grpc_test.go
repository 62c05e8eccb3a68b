package loadergrpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/blockberries/evmloader"
	loadergrpc "github.com/blockberries/evmloader/grpc"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/local"
	loadertest "github.com/blockberries/evmloader/testing"
	"github.com/blockberries/evmloader/types"
)

// startServer starts a gRPC server on a random port and returns
// the listener address. The server stops when the test ends.
func startServer(t *testing.T, l evmloader.Ledger) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := grpc.NewServer()
	loadergrpc.NewLedgerServer(l).Register(s)

	go func() {
		if err := s.Serve(lis); err != nil {
			// Ignore errors from graceful stop.
		}
	}()
	t.Cleanup(s.GracefulStop)

	return lis.Addr().String()
}

func dial(t *testing.T, addr string) *loadergrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := loadergrpc.Dial(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return client
}

func relay(t *testing.T, l *local.Ledger) evmloader.Ledger {
	return dial(t, startServer(t, l))
}

func TestGRPC_Compliance(t *testing.T) {
	loadertest.RunComplianceSuite(t, relay)
}

func TestGRPC_LedgerQueries(t *testing.T) {
	loc := local.NewLedger(local.Config{})
	defer loc.Close()
	client := dial(t, startServer(t, loc))
	defer client.Close()
	ctx := context.Background()

	acct := types.Pubkey{7}
	loc.Fund(acct, 12345)
	bal, err := client.GetBalance(ctx, acct)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal != 12345 {
		t.Fatalf("balance = %d, want 12345", bal)
	}
	if bal, _ := client.GetBalance(ctx, types.Pubkey{8}); bal != 0 {
		t.Fatalf("missing account balance = %d, want 0", bal)
	}

	want, err := loc.LatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("LatestBlockhash: %v", err)
	}
	got, err := client.LatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("LatestBlockhash: %v", err)
	}
	if got != want {
		t.Fatalf("blockhash = %s, want %s", got, want)
	}

	st, err := client.GetTransaction(ctx, types.Signature{1})
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil status for unknown signature, got %+v", st)
	}
}

func TestGRPC_RefusedTransaction(t *testing.T) {
	loc := local.NewLedger(local.Config{})
	defer loc.Close()
	client := dial(t, startServer(t, loc))
	defer client.Close()

	payer, err := ledger.KeypairFromSeed(make([]byte, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	ix := types.Instruction{ProgramID: types.SystemProgramID, Data: []byte{1}}
	// Not a recent blockhash.
	tx, err := ledger.NewTransaction(types.Hash{9}, []types.Instruction{ix}, payer)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	_, err = client.SendTransaction(context.Background(), tx.Serialize())
	rej, ok := evmloader.IsRejected(err)
	if !ok {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Reason == "" {
		t.Fatal("expected a reason")
	}
}

func TestGRPC_UnavailableIsNotRefusal(t *testing.T) {
	loc := local.NewLedger(local.Config{})
	client := dial(t, startServer(t, loc))
	defer client.Close()
	ctx := context.Background()

	payer, err := ledger.KeypairFromSeed(make([]byte, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	hash, err := loc.LatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("LatestBlockhash: %v", err)
	}
	ix := types.Instruction{ProgramID: types.SystemProgramID, Data: []byte{1}}
	tx, err := ledger.NewTransaction(hash, []types.Instruction{ix}, payer)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	loc.Close()

	_, err = client.SendTransaction(ctx, tx.Serialize())
	if err == nil {
		t.Fatal("expected an error from a closed ledger")
	}
	if _, ok := evmloader.IsRejected(err); ok {
		t.Fatalf("closed ledger reported as a refusal: %v", err)
	}
	if code := status.Code(err); code != codes.Unavailable {
		t.Fatalf("code = %s, want Unavailable", code)
	}
}
