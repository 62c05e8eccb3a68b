// Package local provides an in-process ledger.
//
// The ledger decodes and verifies submitted transactions, executes
// their instructions against registered programs and the built-in
// system program, and records the outcome for GetTransaction. Each
// transaction is atomic: if any instruction fails, every account change
// it made is discarded and the failure is recorded in its status.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/types"
)

// Compile-time interface check.
var _ evmloader.Ledger = (*Ledger)(nil)

// recentBlockhashes is how many blockhashes stay valid for new
// transactions.
const recentBlockhashes = 150

var ErrClosed = errors.New("local: ledger closed")

// Account is the stored state of one ledger account.
type Account struct {
	Lamports uint64
	Owner    types.Pubkey
	Space    uint64
	Data     []byte
}

func (a *Account) clone() *Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// Config parameterizes a Ledger.
type Config struct {
	// ConfirmationLag is the number of GetTransaction queries that
	// report a transaction as unconfirmed before its status appears.
	ConfirmationLag int
	Logger          log.Logger
}

type txRecord struct {
	status  types.TxStatus
	pending int
}

// Ledger is an in-process evmloader.Ledger.
type Ledger struct {
	mu       sync.Mutex
	accounts map[types.Pubkey]*Account
	programs map[types.Pubkey]evmloader.Program
	txs      map[types.Signature]*txRecord
	hashes   []types.Hash
	slot     uint64
	closed   bool
	cfg      Config
	log      log.Logger
}

// NewLedger returns an empty ledger with the system program installed.
func NewLedger(cfg Config) *Ledger {
	lg := cfg.Logger
	if lg == nil {
		lg = log.Root()
	}
	l := &Ledger{
		accounts: make(map[types.Pubkey]*Account),
		programs: make(map[types.Pubkey]evmloader.Program),
		txs:      make(map[types.Signature]*txRecord),
		cfg:      cfg,
		log:      lg.New("module", "local"),
	}
	l.programs[types.SystemProgramID] = systemProgram{}
	l.advance()
	return l
}

// Register installs p as the program with id.
func (l *Ledger) Register(id types.Pubkey, p evmloader.Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[id] = p
}

// Fund credits lamports to pk, creating a system-owned account if
// needed.
func (l *Ledger) Fund(pk types.Pubkey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[pk]
	if !ok {
		acc = &Account{Owner: types.SystemProgramID}
		l.accounts[pk] = acc
	}
	acc.Lamports += lamports
}

// Account returns a copy of the account at pk.
func (l *Ledger) Account(pk types.Pubkey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[pk]
	if !ok {
		return Account{}, false
	}
	return *acc.clone(), true
}

// Slot returns the number of processed transactions.
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

func (l *Ledger) LatestBlockhash(context.Context) (types.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.Hash{}, ErrClosed
	}
	return l.hashes[len(l.hashes)-1], nil
}

func (l *Ledger) GetBalance(_ context.Context, pk types.Pubkey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	if acc, ok := l.accounts[pk]; ok {
		return acc.Lamports, nil
	}
	return 0, nil
}

func (l *Ledger) GetTransaction(_ context.Context, sig types.Signature) (*types.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	rec, ok := l.txs[sig]
	if !ok {
		return nil, nil
	}
	if rec.pending > 0 {
		rec.pending--
		return nil, nil
	}
	st := rec.status
	return &st, nil
}

// SendTransaction verifies and executes tx synchronously. Malformed,
// unsigned, stale or duplicate transactions are refused with an error;
// execution failures are recorded in the transaction status.
func (l *Ledger) SendTransaction(ctx context.Context, raw []byte) (types.Signature, error) {
	if len(raw) > ledger.MaxTransactionSize {
		return types.Signature{}, refuse(fmt.Errorf("transaction too large: %d > %d", len(raw), ledger.MaxTransactionSize))
	}
	tx, err := ledger.Decode(raw)
	if err != nil {
		return types.Signature{}, refuse(fmt.Errorf("decode transaction: %w", err))
	}
	if err := tx.Verify(); err != nil {
		return types.Signature{}, refuse(err)
	}
	sig := tx.Signature()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.Signature{}, ErrClosed
	}
	if _, dup := l.txs[sig]; dup {
		return types.Signature{}, refuse(fmt.Errorf("transaction %s already processed", sig))
	}
	if !l.recent(tx.Message.RecentBlockhash) {
		return types.Signature{}, refuse(fmt.Errorf("blockhash %s not found", tx.Message.RecentBlockhash))
	}

	status := l.execute(ctx, tx)
	status.Signature = sig
	status.Slot = l.slot
	status.AccountKeys = append([]types.Pubkey(nil), tx.Message.AccountKeys...)
	l.txs[sig] = &txRecord{status: status, pending: l.cfg.ConfirmationLag}
	l.advance()

	if status.Err != "" {
		l.log.Debug("Transaction failed", "sig", sig, "slot", status.Slot, "err", status.Err)
	} else {
		l.log.Debug("Transaction processed", "sig", sig, "slot", status.Slot)
	}
	return sig, nil
}

// refuse marks err as the ledger turning a transaction away.
func refuse(err error) error {
	return &evmloader.RejectedError{Reason: err.Error(), Err: err}
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Ledger) recent(h types.Hash) bool {
	for _, r := range l.hashes {
		if r == h {
			return true
		}
	}
	return false
}

// advance moves to the next slot and blockhash.
func (l *Ledger) advance() {
	l.slot++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], l.slot)
	l.hashes = append(l.hashes, sha256.Sum256(buf[:]))
	if len(l.hashes) > recentBlockhashes {
		l.hashes = l.hashes[1:]
	}
}
