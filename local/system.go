package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/address"
	"github.com/blockberries/evmloader/instruction"
)

// systemProgram implements the system instructions the loader protocol
// needs: CreateAccountWithSeed.
type systemProgram struct{}

func (systemProgram) Invoke(_ context.Context, inv evmloader.Invocation) (evmloader.Outcome, error) {
	d, err := instruction.DecodeCreateAccountWithSeed(inv.Data)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if len(inv.Accounts) < 3 {
		return evmloader.Outcome{}, errors.New("create account with seed: expected funder, new and base accounts")
	}
	funder, created, base := inv.Accounts[0], inv.Accounts[1], inv.Accounts[2]
	if !funder.IsSigner {
		return evmloader.Outcome{}, fmt.Errorf("funder %s did not sign", funder.Pubkey)
	}
	if !base.IsSigner || base.Pubkey != d.Base {
		return evmloader.Outcome{}, fmt.Errorf("base %s did not sign", d.Base)
	}
	want, err := address.Derive(d.Base, d.Seed, d.Owner)
	if err != nil {
		return evmloader.Outcome{}, err
	}
	if want != created.Pubkey {
		return evmloader.Outcome{}, fmt.Errorf("derived address %s does not match %s", want, created.Pubkey)
	}

	v, ok := inv.State.(*ixState)
	if !ok {
		return evmloader.Outcome{}, errors.New("system program requires the ledger's account state")
	}
	if err := v.transferCreate(funder.Pubkey, created.Pubkey, d.Owner, d.Lamports, d.Space); err != nil {
		return evmloader.Outcome{}, err
	}
	return evmloader.Outcome{}, nil
}
