// Package erc20 bridges ERC-20 tokens hosted by the loader program with
// native ledger token accounts, using direct calls.
package erc20

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/blockberries/evmloader/types"
)

// Function selectors understood by the bridged token contract.
var (
	SelectorDeposit  = [4]byte{0x6f, 0x03, 0x72, 0xaf}
	SelectorWithdraw = [4]byte{0x44, 0x1a, 0x3e, 0x70}
	SelectorBalance  = [4]byte{0x70, 0xa0, 0x82, 0x31}
)

// TokenProgramID is the native token program.
var TokenProgramID = types.MustPubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

const wordSize = 32

// Caller issues a direct contract call and returns the reported value.
// *loader.Client implements it.
type Caller interface {
	Call(ctx context.Context, contract, caller types.Pubkey, calldata []byte, extra ...types.AccountMeta) ([]byte, *types.CallResult, error)
	Payer() types.Pubkey
}

// Token is one bridged ERC-20 contract.
type Token struct {
	c        Caller
	contract types.Pubkey
	// Vault is the native token account holding deposited funds.
	vault types.Pubkey
	mint  types.Pubkey
	log   log.Logger
}

// New returns a Token for contract whose deposits are held in vault.
// A nil logger selects the root logger.
func New(c Caller, contract, vault, mint types.Pubkey, l log.Logger) *Token {
	if l == nil {
		l = log.Root()
	}
	return &Token{
		c:        c,
		contract: contract,
		vault:    vault,
		mint:     mint,
		log:      l.New("module", "erc20", "contract", contract),
	}
}

// Deposit moves amount native tokens from source into the vault and
// credits them to the ether address of caller.
func (t *Token) Deposit(ctx context.Context, caller types.Pubkey, ether common.Address, source types.Pubkey, amount *uint256.Int) error {
	data := DepositData(source, ether, t.c.Payer(), amount)
	extra := []types.AccountMeta{
		types.Writable(source),
		types.Writable(t.vault),
		types.Readonly(t.mint),
		types.Readonly(TokenProgramID),
	}
	if err := t.transfer(ctx, "deposit", caller, data, extra); err != nil {
		return err
	}
	t.log.Info("Deposited", "from", source, "to", ether, "amount", amount)
	return nil
}

// Withdraw moves amount tokens of caller out of the vault into the
// native token account receiver.
func (t *Token) Withdraw(ctx context.Context, caller, receiver types.Pubkey, amount *uint256.Int) error {
	data := WithdrawData(receiver, amount)
	extra := []types.AccountMeta{
		types.Writable(t.vault),
		types.Writable(receiver),
		types.Readonly(t.mint),
		types.Readonly(TokenProgramID),
	}
	if err := t.transfer(ctx, "withdraw", caller, data, extra); err != nil {
		return err
	}
	t.log.Info("Withdrew", "to", receiver, "amount", amount)
	return nil
}

// Balance returns the token balance of ether, read through caller.
func (t *Token) Balance(ctx context.Context, caller types.Pubkey, ether common.Address) (*uint256.Int, error) {
	v, _, err := t.c.Call(ctx, t.contract, caller, BalanceData(ether))
	if err != nil {
		return nil, fmt.Errorf("erc20 balance: %w", err)
	}
	return word(v)
}

func (t *Token) transfer(ctx context.Context, op string, caller types.Pubkey, data []byte, extra []types.AccountMeta) error {
	v, res, err := t.c.Call(ctx, t.contract, caller, data, extra...)
	if err != nil {
		return fmt.Errorf("erc20 %s: %w", op, err)
	}
	ok, err := word(v)
	if err != nil {
		return fmt.Errorf("erc20 %s: %w", op, err)
	}
	if ok.IsZero() {
		return fmt.Errorf("erc20 %s: contract returned false (tx %s)", op, res.Signature)
	}
	return nil
}

// DepositData encodes deposit(source, ether, signer, amount).
func DepositData(source types.Pubkey, ether common.Address, signer types.Pubkey, amount *uint256.Int) []byte {
	b := append([]byte(nil), SelectorDeposit[:]...)
	b = append(b, source[:]...)
	b = append(b, common.LeftPadBytes(ether[:], wordSize)...)
	b = append(b, signer[:]...)
	return appendWord(b, amount)
}

// WithdrawData encodes withdraw(receiver, amount).
func WithdrawData(receiver types.Pubkey, amount *uint256.Int) []byte {
	b := append([]byte(nil), SelectorWithdraw[:]...)
	b = append(b, receiver[:]...)
	return appendWord(b, amount)
}

// BalanceData encodes balanceOf(ether).
func BalanceData(ether common.Address) []byte {
	b := append([]byte(nil), SelectorBalance[:]...)
	return append(b, common.LeftPadBytes(ether[:], wordSize)...)
}

func appendWord(b []byte, v *uint256.Int) []byte {
	w := v.Bytes32()
	return append(b, w[:]...)
}

func word(v []byte) (*uint256.Int, error) {
	if len(v) != wordSize {
		return nil, fmt.Errorf("result is %d bytes, want %d", len(v), wordSize)
	}
	return new(uint256.Int).SetBytes32(v), nil
}
