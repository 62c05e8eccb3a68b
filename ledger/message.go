// Package ledger compiles, signs and decodes ledger transactions in the
// legacy wire format: a list of signatures followed by a message holding
// a three-byte header, the account table, the recent blockhash and the
// compiled instructions.
package ledger

import (
	"errors"
	"fmt"

	"github.com/blockberries/evmloader/types"
)

// MaxAccounts bounds the account table; indexes are single bytes.
const MaxAccounts = 256

// ErrNoInstructions is returned when compiling an empty transaction.
var ErrNoInstructions = errors.New("ledger: transaction has no instructions")

// Header counts the signer and read-only partitions of the account table.
type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction whose program and accounts are
// indexes into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is the signed portion of a transaction.
type Message struct {
	Header          Header
	AccountKeys     []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []CompiledInstruction
}

type keyFlags struct {
	signer   bool
	writable bool
}

// Compile lays out ixs into a message paid for by payer.
//
// The account table is ordered payer first, then writable signers,
// read-only signers, writable non-signers and read-only non-signers,
// each group in first-reference order. A key referenced several times
// carries the union of its flags. Program ids are read-only
// non-signers unless referenced otherwise.
func Compile(payer types.Pubkey, blockhash types.Hash, ixs ...types.Instruction) (*Message, error) {
	if len(ixs) == 0 {
		return nil, ErrNoInstructions
	}

	order := []types.Pubkey{payer}
	flags := map[types.Pubkey]*keyFlags{payer: {signer: true, writable: true}}
	note := func(pk types.Pubkey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range ixs {
		for _, acc := range ix.Accounts {
			note(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
		note(ix.ProgramID, false, false)
	}

	var groups [4][]types.Pubkey
	for _, pk := range order[1:] {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			groups[0] = append(groups[0], pk)
		case f.signer:
			groups[1] = append(groups[1], pk)
		case f.writable:
			groups[2] = append(groups[2], pk)
		default:
			groups[3] = append(groups[3], pk)
		}
	}

	keys := []types.Pubkey{payer}
	for _, g := range groups {
		keys = append(keys, g...)
	}
	if len(keys) > MaxAccounts {
		return nil, fmt.Errorf("ledger: %d accounts exceed the limit of %d", len(keys), MaxAccounts)
	}

	msg := &Message{
		Header: Header{
			NumRequiredSignatures:       uint8(1 + len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
	}

	index := make(map[types.Pubkey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}
	for _, ix := range ixs {
		c := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for i, acc := range ix.Accounts {
			c.Accounts[i] = index[acc.Pubkey]
		}
		msg.Instructions = append(msg.Instructions, c)
	}
	return msg, nil
}

// Signers returns the keys that must sign the message, in order.
func (m *Message) Signers() []types.Pubkey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// IsSigner reports whether account i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether account i may be modified.
func (m *Message) IsWritable(i int) bool {
	n := len(m.AccountKeys)
	signers := int(m.Header.NumRequiredSignatures)
	if i < signers {
		return i < signers-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < n-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Instruction expands compiled instruction i back into a
// types.Instruction with full account metadata.
func (m *Message) Instruction(i int) (types.Instruction, error) {
	if i < 0 || i >= len(m.Instructions) {
		return types.Instruction{}, fmt.Errorf("ledger: instruction %d out of range", i)
	}
	c := m.Instructions[i]
	if int(c.ProgramIDIndex) >= len(m.AccountKeys) {
		return types.Instruction{}, fmt.Errorf("ledger: program index %d out of range", c.ProgramIDIndex)
	}
	ix := types.Instruction{
		ProgramID: m.AccountKeys[c.ProgramIDIndex],
		Accounts:  make([]types.AccountMeta, len(c.Accounts)),
		Data:      c.Data,
	}
	for j, a := range c.Accounts {
		if int(a) >= len(m.AccountKeys) {
			return types.Instruction{}, fmt.Errorf("ledger: account index %d out of range", a)
		}
		ix.Accounts[j] = types.AccountMeta{
			Pubkey:     m.AccountKeys[a],
			IsSigner:   m.IsSigner(int(a)),
			IsWritable: m.IsWritable(int(a)),
		}
	}
	return ix, nil
}

// Serialize encodes the message in wire form. These are the bytes that
// get signed.
func (m *Message) Serialize() []byte {
	buf := []byte{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	}
	buf = appendShortVec(buf, len(m.AccountKeys))
	for _, pk := range m.AccountKeys {
		buf = append(buf, pk[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendShortVec(buf, len(m.Instructions))
	for _, c := range m.Instructions {
		buf = append(buf, c.ProgramIDIndex)
		buf = appendShortVec(buf, len(c.Accounts))
		buf = append(buf, c.Accounts...)
		buf = appendShortVec(buf, len(c.Data))
		buf = append(buf, c.Data...)
	}
	return buf
}

// decoder walks a wire buffer.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > len(d.b) {
		d.err = fmt.Errorf("ledger: need %d bytes, have %d", n, len(d.b))
		return nil
	}
	out := d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *decoder) length() int {
	if d.err != nil {
		return 0
	}
	n, used, err := readShortVec(d.b)
	if err != nil {
		d.err = err
		return 0
	}
	d.b = d.b[used:]
	return n
}

func (d *decoder) message() *Message {
	hdr := d.take(3)
	if d.err != nil {
		return nil
	}
	m := &Message{Header: Header{hdr[0], hdr[1], hdr[2]}}

	n := d.length()
	for i := 0; i < n && d.err == nil; i++ {
		var pk types.Pubkey
		copy(pk[:], d.take(types.PubkeyLength))
		m.AccountKeys = append(m.AccountKeys, pk)
	}
	copy(m.RecentBlockhash[:], d.take(len(m.RecentBlockhash)))

	n = d.length()
	for i := 0; i < n && d.err == nil; i++ {
		var c CompiledInstruction
		if p := d.take(1); p != nil {
			c.ProgramIDIndex = p[0]
		}
		c.Accounts = append([]uint8(nil), d.take(d.length())...)
		c.Data = append([]byte(nil), d.take(d.length())...)
		m.Instructions = append(m.Instructions, c)
	}
	if d.err != nil {
		return nil
	}
	if int(m.Header.NumRequiredSignatures) > len(m.AccountKeys) ||
		int(m.Header.NumReadonlySignedAccounts) > int(m.Header.NumRequiredSignatures) ||
		int(m.Header.NumReadonlyUnsignedAccounts) > len(m.AccountKeys)-int(m.Header.NumRequiredSignatures) {
		d.err = errors.New("ledger: message header inconsistent with account table")
		return nil
	}
	return m
}

// DecodeMessage parses a serialized message. Trailing bytes are an error.
func DecodeMessage(b []byte) (*Message, error) {
	d := &decoder{b: b}
	m := d.message()
	if d.err != nil {
		return nil, d.err
	}
	if len(d.b) != 0 {
		return nil, fmt.Errorf("ledger: %d trailing bytes after message", len(d.b))
	}
	return m, nil
}
