// Package types defines the data types shared by every layer of the
// EVM loader driver: ledger identifiers, instructions, transaction
// status, chunk receipts and decoded log records.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns
// (gRPC codec registration) are handled in the transport packages.
package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// PubkeyLength is the size of a ledger account identifier.
	PubkeyLength = 32
	// SignatureLength is the size of an ed25519 transaction signature.
	SignatureLength = 64
)

// Pubkey identifies a ledger account or program.
type Pubkey [PubkeyLength]byte

// Signature identifies a submitted ledger transaction.
type Signature [SignatureLength]byte

// Hash is a 32-byte ledger hash (recent blockhash).
type Hash [32]byte

// Well-known ledger accounts referenced by the loader instruction set.
var (
	SystemProgramID = MustPubkey("11111111111111111111111111111111")
	ClockSysvarID   = MustPubkey("SysvarC1ock11111111111111111111111111111111")
)

// PubkeyFromBase58 parses the textual form of a Pubkey.
func PubkeyFromBase58(s string) (Pubkey, error) {
	var pk Pubkey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("pubkey %q: %w", s, err)
	}
	if len(b) != PubkeyLength {
		return pk, fmt.Errorf("pubkey %q: decoded length %d, want %d", s, len(b), PubkeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPubkey is PubkeyFromBase58 that panics on malformed input.
// Intended for package-level constants.
func MustPubkey(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies b into a Pubkey. b must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLength {
		return pk, fmt.Errorf("pubkey: length %d, want %d", len(b), PubkeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

func (pk Pubkey) String() string { return base58.Encode(pk[:]) }

// IsZero reports whether pk is the all-zero key.
func (pk Pubkey) IsZero() bool { return pk == Pubkey{} }

func (pk Pubkey) MarshalText() ([]byte, error) { return []byte(pk.String()), nil }

func (pk *Pubkey) UnmarshalText(text []byte) error {
	v, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = v
	return nil
}

// SignatureFromBase58 parses the textual form of a Signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("signature %q: %w", s, err)
	}
	if len(b) != SignatureLength {
		return sig, fmt.Errorf("signature %q: decoded length %d, want %d", s, len(b), SignatureLength)
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string { return base58.Encode(s[:]) }

// HashFromBase58 parses the textual form of a Hash.
func HashFromBase58(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash %q: decoded length %d, want %d", s, len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string { return base58.Encode(h[:]) }
