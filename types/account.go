package types

// AccountMeta describes one account reference of an instruction.
type AccountMeta struct {
	Pubkey     Pubkey `cramberry:"1"`
	IsSigner   bool   `cramberry:"2"`
	IsWritable bool   `cramberry:"3"`
}

// Writable returns a writable, non-signer account reference.
func Writable(pk Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsWritable: true}
}

// Readonly returns a read-only, non-signer account reference.
func Readonly(pk Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk}
}

// Signer returns a read-only signer account reference.
func Signer(pk Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: true}
}

// WritableSigner returns a writable signer account reference.
func WritableSigner(pk Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: true, IsWritable: true}
}

// Instruction is one program invocation inside a ledger transaction.
// The order of Accounts is part of the program's contract.
type Instruction struct {
	ProgramID Pubkey        `cramberry:"1"`
	Accounts  []AccountMeta `cramberry:"2"`
	Data      []byte        `cramberry:"3"`
}
