package types

// CompiledInstruction is an instruction whose program and accounts are
// expressed as indexes into the owning message's account list.
type CompiledInstruction struct {
	ProgramIDIndex uint8   `cramberry:"1"`
	Accounts       []uint8 `cramberry:"2"`
	// Data is the base58 text form, as reported by the ledger node.
	Data string `cramberry:"3"`
}

// InnerInstructions groups the instructions a top-level instruction
// invoked while executing.
type InnerInstructions struct {
	// Position of the invoking instruction in the transaction.
	Index        uint8                 `cramberry:"1"`
	Instructions []CompiledInstruction `cramberry:"2"`
}

// TxStatus is the confirmed outcome of one ledger transaction.
type TxStatus struct {
	Signature Signature `cramberry:"1"`
	Slot      uint64    `cramberry:"2"`
	// Err is the ledger-reported execution error. Empty on success.
	Err               string              `cramberry:"3"`
	LogMessages       []string            `cramberry:"4"`
	InnerInstructions []InnerInstructions `cramberry:"5"`
	// AccountKeys of the transaction message, indexed by
	// CompiledInstruction.ProgramIDIndex.
	AccountKeys []Pubkey `cramberry:"6"`
}

// OK returns true if the transaction executed without error.
func (s TxStatus) OK() bool { return s.Err == "" }

// CallResult is what the call primitive hands back for one confirmed
// ledger transaction.
type CallResult struct {
	Signature         Signature           `cramberry:"1"`
	Slot              uint64              `cramberry:"2"`
	Logs              []string            `cramberry:"3"`
	InnerInstructions []InnerInstructions `cramberry:"4"`
	AccountKeys       []Pubkey            `cramberry:"5"`
}
