package local

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/types"
)

// execute runs every instruction of tx against a staged view of the
// accounts and commits the view only if all of them succeed. Called
// with l.mu held.
func (l *Ledger) execute(ctx context.Context, tx *ledger.Transaction) types.TxStatus {
	msg := tx.Message
	st := &txState{l: l, overlay: make(map[types.Pubkey]*Account), payer: msg.AccountKeys[0]}
	var status types.TxStatus

	for i := range msg.Instructions {
		ix, err := msg.Instruction(i)
		if err != nil {
			status.Err = err.Error()
			return status
		}
		status.LogMessages = append(status.LogMessages, fmt.Sprintf("Program %s invoke [1]", ix.ProgramID))

		prog, ok := l.programs[ix.ProgramID]
		if !ok {
			status.LogMessages = append(status.LogMessages, fmt.Sprintf("Program %s failed: program not found", ix.ProgramID))
			status.Err = fmt.Sprintf("instruction %d: program %s not found", i, ix.ProgramID)
			return status
		}

		view := &ixState{txState: st, program: ix.ProgramID, accounts: ix.Accounts}
		out, err := prog.Invoke(ctx, evmloader.Invocation{
			ProgramID: ix.ProgramID,
			Accounts:  ix.Accounts,
			Data:      ix.Data,
			State:     view,
		})
		for _, line := range out.Logs {
			status.LogMessages = append(status.LogMessages, "Program log: "+line)
		}
		if err != nil {
			status.LogMessages = append(status.LogMessages, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
			status.Err = fmt.Sprintf("instruction %d: %v", i, err)
			status.InnerInstructions = nil
			return status
		}
		if len(out.Records) > 0 {
			group := types.InnerInstructions{Index: uint8(i)}
			for _, rec := range out.Records {
				group.Instructions = append(group.Instructions, types.CompiledInstruction{
					ProgramIDIndex: msg.Instructions[i].ProgramIDIndex,
					Data:           base58.Encode(rec),
				})
			}
			status.InnerInstructions = append(status.InnerInstructions, group)
		}
		status.LogMessages = append(status.LogMessages, fmt.Sprintf("Program %s success", ix.ProgramID))
	}

	for pk, acc := range st.overlay {
		l.accounts[pk] = acc
	}
	return status
}

// txState stages account changes of one transaction.
type txState struct {
	l       *Ledger
	overlay map[types.Pubkey]*Account
	payer   types.Pubkey
}

func (s *txState) get(pk types.Pubkey) (*Account, bool) {
	if acc, ok := s.overlay[pk]; ok {
		return acc, true
	}
	acc, ok := s.l.accounts[pk]
	return acc, ok
}

// stage returns a mutable copy of an existing account.
func (s *txState) stage(pk types.Pubkey) (*Account, bool) {
	if acc, ok := s.overlay[pk]; ok {
		return acc, true
	}
	acc, ok := s.l.accounts[pk]
	if !ok {
		return nil, false
	}
	c := acc.clone()
	s.overlay[pk] = c
	return c, true
}

// ixState is the evmloader.AccountState one instruction sees. Only
// accounts the instruction marks writable may change, and only the
// owning program may change an account's data.
type ixState struct {
	*txState
	program  types.Pubkey
	accounts []types.AccountMeta
}

func (v *ixState) meta(pk types.Pubkey) (types.AccountMeta, bool) {
	for _, m := range v.accounts {
		if m.Pubkey == pk {
			return m, true
		}
	}
	return types.AccountMeta{}, false
}

func (v *ixState) writable(pk types.Pubkey) error {
	m, ok := v.meta(pk)
	if !ok {
		return fmt.Errorf("account %s is not referenced by the instruction", pk)
	}
	if !m.IsWritable {
		return fmt.Errorf("account %s is read-only", pk)
	}
	return nil
}

func (v *ixState) Exists(pk types.Pubkey) bool {
	_, ok := v.get(pk)
	return ok
}

func (v *ixState) Owner(pk types.Pubkey) types.Pubkey {
	if acc, ok := v.get(pk); ok {
		return acc.Owner
	}
	return types.Pubkey{}
}

func (v *ixState) Data(pk types.Pubkey) []byte {
	if acc, ok := v.get(pk); ok {
		return append([]byte(nil), acc.Data...)
	}
	return nil
}

func (v *ixState) SetData(pk types.Pubkey, data []byte) error {
	if err := v.writable(pk); err != nil {
		return err
	}
	acc, ok := v.stage(pk)
	if !ok {
		return fmt.Errorf("account %s does not exist", pk)
	}
	if acc.Owner != v.program {
		return fmt.Errorf("account %s is owned by %s", pk, acc.Owner)
	}
	if uint64(len(data)) > acc.Space {
		return fmt.Errorf("account %s: %d bytes exceed space %d", pk, len(data), acc.Space)
	}
	acc.Data = append([]byte(nil), data...)
	return nil
}

// Create allocates pk owned by owner, paid for by the transaction's fee
// payer.
func (v *ixState) Create(pk types.Pubkey, owner types.Pubkey, lamports, space uint64) error {
	return v.transferCreate(v.payer, pk, owner, lamports, space)
}

func (v *ixState) transferCreate(funder, pk, owner types.Pubkey, lamports, space uint64) error {
	if err := v.writable(pk); err != nil {
		return err
	}
	if existing, ok := v.get(pk); ok && (existing.Lamports > 0 || existing.Space > 0) {
		return fmt.Errorf("account %s already in use", pk)
	}
	src, ok := v.stage(funder)
	if !ok || src.Lamports < lamports {
		return fmt.Errorf("funder %s has insufficient lamports for %d", funder, lamports)
	}
	src.Lamports -= lamports
	v.overlay[pk] = &Account{Lamports: lamports, Owner: owner, Space: space}
	return nil
}
