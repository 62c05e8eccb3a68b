package ledger

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/blockberries/evmloader/types"
)

// MaxTransactionSize is the largest serialized transaction a ledger node
// accepts.
const MaxTransactionSize = 1232

// ErrBadSignature is returned by Verify when a signature does not match.
var ErrBadSignature = errors.New("ledger: signature verification failed")

// Transaction is a signed message.
type Transaction struct {
	Signatures []types.Signature
	Message    *Message
}

// NewTransaction compiles ixs with the first signer as fee payer and
// signs the message with every signer. Each key the message requires to
// sign must be among signers.
func NewTransaction(blockhash types.Hash, ixs []types.Instruction, signers ...*Keypair) (*Transaction, error) {
	if len(signers) == 0 {
		return nil, errors.New("ledger: transaction needs a fee payer")
	}
	msg, err := Compile(signers[0].Pubkey(), blockhash, ixs...)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Message: msg}
	if err := tx.Sign(signers...); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sign fills the signature slots of the message's required signers.
func (tx *Transaction) Sign(signers ...*Keypair) error {
	byKey := make(map[types.Pubkey]*Keypair, len(signers))
	for _, kp := range signers {
		byKey[kp.Pubkey()] = kp
	}
	data := tx.Message.Serialize()
	required := tx.Message.Signers()
	tx.Signatures = make([]types.Signature, len(required))
	for i, pk := range required {
		kp, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("ledger: missing signer %s", pk)
		}
		tx.Signatures[i] = kp.Sign(data)
	}
	return nil
}

// Signature is the transaction's identifier: the fee payer's signature.
func (tx *Transaction) Signature() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// Verify checks every required signature against the message.
func (tx *Transaction) Verify() error {
	required := tx.Message.Signers()
	if len(tx.Signatures) != len(required) {
		return fmt.Errorf("ledger: %d signatures for %d required signers", len(tx.Signatures), len(required))
	}
	data := tx.Message.Serialize()
	for i, pk := range required {
		if !Verify(pk, data, tx.Signatures[i]) {
			return fmt.Errorf("%w: signer %s", ErrBadSignature, pk)
		}
	}
	return nil
}

// Serialize encodes the transaction in wire form.
func (tx *Transaction) Serialize() []byte {
	buf := appendShortVec(nil, len(tx.Signatures))
	for _, s := range tx.Signatures {
		buf = append(buf, s[:]...)
	}
	return append(buf, tx.Message.Serialize()...)
}

// Base64 is the encoding sendTransaction expects.
func (tx *Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(tx.Serialize())
}

// Decode parses a serialized transaction. Signatures are not verified.
func Decode(b []byte) (*Transaction, error) {
	d := &decoder{b: b}
	n := d.length()
	tx := &Transaction{}
	for i := 0; i < n && d.err == nil; i++ {
		var s types.Signature
		copy(s[:], d.take(types.SignatureLength))
		tx.Signatures = append(tx.Signatures, s)
	}
	tx.Message = d.message()
	if d.err != nil {
		return nil, d.err
	}
	if len(d.b) != 0 {
		return nil, fmt.Errorf("ledger: %d trailing bytes after transaction", len(d.b))
	}
	return tx, nil
}
