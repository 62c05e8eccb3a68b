package instruction

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/blockberries/evmloader/address"
	"github.com/blockberries/evmloader/types"
)

// RunAccounts names the accounts taking part in one buffered execution.
type RunAccounts struct {
	// Holder is the scratch buffer holding the signed payload.
	Holder types.Pubkey
	// Storage persists VM progress between Continue calls.
	Storage types.Pubkey
	// Contract and Code are the ledger accounts of the called contract.
	Contract types.Pubkey
	Code     types.Pubkey
	// Caller is the ledger account of the transaction sender.
	Caller types.Pubkey
}

// Write appends b at offset in holder.
//
// Accounts: holder[w], signer[s].
func Write(program, holder, signer types.Pubkey, offset uint32, b []byte) types.Instruction {
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			types.Writable(holder),
			types.Signer(signer),
		},
		Data: EncodeWrite(offset, b),
	}
}

// BeginPartial starts a step-limited execution of the payload in the
// holder, persisting progress to the storage account.
//
// Accounts: holder[w], storage[w], contract[w], code[w], caller[w],
// program, clock.
func BeginPartial(program types.Pubkey, run RunAccounts, steps uint64) types.Instruction {
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			types.Writable(run.Holder),
			types.Writable(run.Storage),
			types.Writable(run.Contract),
			types.Writable(run.Code),
			types.Writable(run.Caller),
			types.Readonly(program),
			types.Readonly(types.ClockSysvarID),
		},
		Data: EncodeSteps(TagBeginPartial, steps),
	}
}

// Continue resumes the execution persisted in the storage account.
//
// Accounts: storage[w], contract[w], code[w], caller[w], program, clock.
func Continue(program types.Pubkey, run RunAccounts, steps uint64) types.Instruction {
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			types.Writable(run.Storage),
			types.Writable(run.Contract),
			types.Writable(run.Code),
			types.Writable(run.Caller),
			types.Readonly(program),
			types.Readonly(types.ClockSysvarID),
		},
		Data: EncodeSteps(TagContinue, steps),
	}
}

// FinalizeFromBuffer executes the payload in the holder in one call.
//
// Accounts: holder[w], contract[w], code[w], caller[w], program, clock.
func FinalizeFromBuffer(program types.Pubkey, run RunAccounts) types.Instruction {
	return types.Instruction{
		ProgramID: program,
		Accounts: []types.AccountMeta{
			types.Writable(run.Holder),
			types.Writable(run.Contract),
			types.Writable(run.Code),
			types.Writable(run.Caller),
			types.Readonly(program),
			types.Readonly(types.ClockSysvarID),
		},
		Data: EncodeFinalize(),
	}
}

// CreateAccount creates the ledger twin of ether. code is the account
// that will hold contract code, or the zero key for a plain account.
//
// Accounts: funder[s], ether-account[w], code[w] (if set), system program.
func CreateAccount(program, funder, etherAccount, code types.Pubkey, d CreateAccountData) types.Instruction {
	accounts := []types.AccountMeta{
		types.Signer(funder),
		types.Writable(etherAccount),
	}
	if !code.IsZero() {
		accounts = append(accounts, types.Writable(code))
	}
	accounts = append(accounts, types.Readonly(types.SystemProgramID))
	return types.Instruction{
		ProgramID: program,
		Accounts:  accounts,
		Data:      EncodeCreateAccount(d),
	}
}

// Call invokes contract directly with calldata. extra accounts are
// placed between the caller and the signer, in the order given.
//
// Accounts: contract[w], caller[w], extra..., signer[s], clock.
func Call(program, contract, caller, signer types.Pubkey, calldata []byte, extra ...types.AccountMeta) types.Instruction {
	accounts := make([]types.AccountMeta, 0, 4+len(extra))
	accounts = append(accounts, types.Writable(contract), types.Writable(caller))
	accounts = append(accounts, extra...)
	accounts = append(accounts, types.Signer(signer), types.Readonly(types.ClockSysvarID))
	return types.Instruction{
		ProgramID: program,
		Accounts:  accounts,
		Data:      EncodeCall(calldata),
	}
}

// CreateAccountWithSeed provisions the owner-seeded account
// address.Derive(base, seed, owner) through the system program, and
// returns the instruction with the derived address.
//
// Accounts: funder[s,w], new[w], base[s].
func CreateAccountWithSeed(funder, base types.Pubkey, seed string, lamports, space uint64, owner types.Pubkey) (types.Instruction, types.Pubkey, error) {
	created, err := address.Derive(base, seed, owner)
	if err != nil {
		return types.Instruction{}, types.Pubkey{}, err
	}
	ix := types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.WritableSigner(funder),
			types.Writable(created),
			types.Signer(base),
		},
		Data: EncodeCreateAccountWithSeed(SeedAccountData{
			Base:     base,
			Seed:     seed,
			Lamports: lamports,
			Space:    space,
			Owner:    owner,
		}),
	}
	return ix, created, nil
}

// EtherCreateData fills CreateAccountData for ether with its bump.
func EtherCreateData(ether common.Address, nonce uint8, lamports, space uint64) CreateAccountData {
	return CreateAccountData{Lamports: lamports, Space: space, Ether: ether, Nonce: nonce}
}
