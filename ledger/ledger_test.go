package ledger

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/types"
)

func keypair(t *testing.T, b byte) *Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return kp
}

func TestShortVec(t *testing.T) {
	cases := []struct {
		n   int
		hex string
	}{
		{0, "00"},
		{5, "05"},
		{0x7f, "7f"},
		{0x80, "8001"},
		{0xff, "ff01"},
		{0x100, "8002"},
		{0x3fff, "ff7f"},
		{0x4000, "808001"},
		{0xffff, "ffff03"},
	}
	for _, tc := range cases {
		enc := appendShortVec(nil, tc.n)
		require.Equal(t, tc.hex, hex.EncodeToString(enc), "encode %d", tc.n)

		n, used, err := readShortVec(append(enc, 0xAA))
		require.NoError(t, err)
		require.Equal(t, tc.n, n)
		require.Equal(t, len(enc), used)
	}

	_, _, err := readShortVec([]byte{0x80})
	require.ErrorIs(t, err, ErrShortVec)
	_, _, err = readShortVec([]byte{0xff, 0xff, 0x04})
	require.ErrorIs(t, err, ErrShortVec)
}

func TestCompile_AccountOrdering(t *testing.T) {
	payer := types.Pubkey{0x01}
	program := types.Pubkey{0xE0}
	run := instruction.RunAccounts{
		Holder:   types.Pubkey{0x10},
		Storage:  types.Pubkey{0x11},
		Contract: types.Pubkey{0x12},
		Code:     types.Pubkey{0x13},
		Caller:   types.Pubkey{0x14},
	}
	ix := instruction.BeginPartial(program, run, 50)

	msg, err := Compile(payer, types.Hash{0xBB}, ix)
	require.NoError(t, err)

	require.Equal(t, []types.Pubkey{
		payer,
		run.Holder, run.Storage, run.Contract, run.Code, run.Caller,
		program, types.ClockSysvarID,
	}, msg.AccountKeys)
	require.Equal(t, Header{1, 0, 2}, msg.Header)

	require.Len(t, msg.Instructions, 1)
	c := msg.Instructions[0]
	require.Equal(t, uint8(6), c.ProgramIDIndex)
	require.Equal(t, []uint8{1, 2, 3, 4, 5, 6, 7}, c.Accounts)

	require.True(t, msg.IsWritable(0))
	require.True(t, msg.IsWritable(5))
	require.False(t, msg.IsWritable(6))
	require.True(t, msg.IsSigner(0))
	require.False(t, msg.IsSigner(1))
}

func TestCompile_MergesFlags(t *testing.T) {
	payer := types.Pubkey{0x01}
	other := types.Pubkey{0x02}
	acct := types.Pubkey{0x03}
	program := types.Pubkey{0x04}

	ixs := []types.Instruction{
		{ProgramID: program, Accounts: []types.AccountMeta{types.Readonly(acct), types.Signer(other)}},
		{ProgramID: program, Accounts: []types.AccountMeta{types.Writable(acct), types.Readonly(payer)}},
	}
	msg, err := Compile(payer, types.Hash{}, ixs...)
	require.NoError(t, err)

	require.Equal(t, []types.Pubkey{payer, other, acct, program}, msg.AccountKeys)
	require.Equal(t, Header{2, 1, 1}, msg.Header)
	require.Equal(t, []types.Pubkey{payer, other}, msg.Signers())

	expanded, err := msg.Instruction(1)
	require.NoError(t, err)
	require.Equal(t, types.Writable(acct), expanded.Accounts[0])
	require.Equal(t, types.WritableSigner(payer), expanded.Accounts[1])
}

func TestCompile_Empty(t *testing.T) {
	_, err := Compile(types.Pubkey{1}, types.Hash{})
	require.ErrorIs(t, err, ErrNoInstructions)
}

func TestTransaction_SignSerializeDecode(t *testing.T) {
	payer := keypair(t, 7)
	program := types.Pubkey{0xE0}
	holder := types.Pubkey{0x10}

	ix := instruction.Write(program, holder, payer.Pubkey(), 0, bytes.Repeat([]byte{0x5A}, 1000))
	tx, err := NewTransaction(types.Hash{0xBB}, []types.Instruction{ix}, payer)
	require.NoError(t, err)
	require.NoError(t, tx.Verify())

	wire := tx.Serialize()
	require.LessOrEqual(t, len(wire), MaxTransactionSize, "a full write chunk must fit one transaction")

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())
	require.Equal(t, tx.Signature(), decoded.Signature())
	require.Equal(t, tx.Message, decoded.Message)

	got, err := decoded.Message.Instruction(0)
	require.NoError(t, err)
	require.Equal(t, ix.ProgramID, got.ProgramID)
	require.Equal(t, ix.Data, got.Data)
	require.Equal(t, types.Writable(holder), got.Accounts[0])
	// The signer is also the fee payer, so it is writable on the wire.
	require.Equal(t, types.WritableSigner(payer.Pubkey()), got.Accounts[1])
}

func TestTransaction_TamperedFailsVerify(t *testing.T) {
	payer := keypair(t, 1)
	ix := types.Instruction{ProgramID: types.Pubkey{9}, Data: []byte{1, 2, 3}}
	tx, err := NewTransaction(types.Hash{}, []types.Instruction{ix}, payer)
	require.NoError(t, err)

	wire := tx.Serialize()
	wire[len(wire)-1] ^= 0xff
	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.ErrorIs(t, decoded.Verify(), ErrBadSignature)
}

func TestTransaction_MissingSigner(t *testing.T) {
	payer := keypair(t, 1)
	other := keypair(t, 2)
	ix := types.Instruction{
		ProgramID: types.Pubkey{9},
		Accounts:  []types.AccountMeta{types.Signer(other.Pubkey())},
	}
	_, err := NewTransaction(types.Hash{}, []types.Instruction{ix}, payer)
	require.Error(t, err)

	tx, err := NewTransaction(types.Hash{}, []types.Instruction{ix}, payer, other)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 2)
	require.NoError(t, tx.Verify())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)

	payer := keypair(t, 3)
	tx, err := NewTransaction(types.Hash{}, []types.Instruction{{ProgramID: types.Pubkey{9}}}, payer)
	require.NoError(t, err)
	wire := tx.Serialize()

	_, err = Decode(wire[:len(wire)-5])
	require.Error(t, err)
	_, err = Decode(append(wire, 0))
	require.Error(t, err)
}

func TestKeypair_Files(t *testing.T) {
	kp, err := NewKeypair(rand.Reader)
	require.NoError(t, err)

	pub := kp.Pubkey()
	raw := append(append([]byte(nil), kp.priv.Seed()...), pub[:]...)
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = strconv.Itoa(int(b))
	}
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, []byte("["+strings.Join(parts, ",")+"]"), 0o600))

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	require.Equal(t, kp.Pubkey(), loaded.Pubkey())

	raw[40] ^= 1
	_, err = KeypairFromBytes(raw)
	require.Error(t, err)
}
