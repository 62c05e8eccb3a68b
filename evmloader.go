// Package evmloader defines the client-side protocol for driving an
// EVM-hosting ledger program: chunked upload of an oversized signed
// transaction into a holder account, followed by a step-limited,
// resumable execution whose result is decoded from the program's log
// records.
//
// The [Ledger] interface is the only network boundary. Everything else
// (chunk transport, execution driver, log interpreter) is built on
// [Caller], the synchronous call primitive implemented by package call.
//
// The protocol guarantees the following call order for one run:
//  1. Every chunk write of the payload is confirmed, in ascending offset
//     order, before execution starts.
//  2. BeginPartial is issued exactly once.
//  3. Continue is issued until a Return record is observed, and never
//     after.
package evmloader

import (
	"context"

	"github.com/blockberries/evmloader/types"
)

// Ledger is a transport-agnostic connection to a ledger node. The JSON-RPC
// client, the in-process ledger and the gRPC relay all implement it.
type Ledger interface {
	// LatestBlockhash returns a recent blockhash to bind new
	// transactions to.
	LatestBlockhash(ctx context.Context) (types.Hash, error)

	// SendTransaction submits a signed, serialized transaction and
	// returns its signature. Returning nil error does not mean the
	// transaction executed; poll GetTransaction for that.
	SendTransaction(ctx context.Context, tx []byte) (types.Signature, error)

	// GetTransaction returns the confirmed status of a transaction,
	// or (nil, nil) if it is not confirmed yet.
	GetTransaction(ctx context.Context, sig types.Signature) (*types.TxStatus, error)

	// GetBalance returns the balance of an account. A missing account
	// has balance zero.
	GetBalance(ctx context.Context, account types.Pubkey) (uint64, error)

	// Close terminates the connection.
	Close() error
}

// Caller is the synchronous call primitive: submit one ledger
// transaction, wait for its confirmation and hand back its logs.
//
// Implementations MUST NOT retry on their own; retry is an explicit
// wrapper (see call.WithRetry).
type Caller interface {
	Call(ctx context.Context, ixs ...types.Instruction) (*types.CallResult, error)
}

// Program is an executable hosted by an in-process ledger. It plays the
// role of the black-box ledger program in tests and local development.
type Program interface {
	// Invoke executes one instruction addressed to the program.
	// Returning an error aborts the whole transaction and rolls back
	// every account change it made.
	Invoke(ctx context.Context, inv Invocation) (Outcome, error)
}

// Invocation is the input of one Program.Invoke call.
type Invocation struct {
	ProgramID types.Pubkey
	Accounts  []types.AccountMeta
	Data      []byte
	State     AccountState
}

// Outcome is what a program emits while executing one instruction.
type Outcome struct {
	// Logs are appended to the transaction's log messages as
	// "Program log: <line>".
	Logs []string
	// Records are self-invocations carrying log records, reported as
	// the transaction's inner instructions in order.
	Records [][]byte
}

// AccountState is the account view a Program sees during execution.
type AccountState interface {
	// Exists reports whether the account has been created.
	Exists(pk types.Pubkey) bool
	// Owner returns the owning program of an existing account.
	Owner(pk types.Pubkey) types.Pubkey
	// Data returns a copy of the account data.
	Data(pk types.Pubkey) []byte
	// SetData replaces the account data. The account must exist.
	SetData(pk types.Pubkey, data []byte) error
	// Create allocates a new account owned by owner.
	Create(pk types.Pubkey, owner types.Pubkey, lamports uint64, space uint64) error
}
