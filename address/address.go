// Package address derives deterministic ledger account addresses.
//
// Two schemes are exposed. Owner-seeded addresses (Derive) identify the
// holder and storage accounts a client provisions for itself; they are
// reproducible from (owner, seed, program) without any registry.
// Program-derived addresses (FindProgramAddress) identify accounts that
// only the program can sign for, such as the ledger-side twin of an
// ether account.
package address

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/types"
)

const (
	// MaxSeedLength bounds every seed accepted by the ledger.
	MaxSeedLength = 32
	// MaxSeeds bounds the number of seeds of a program-derived address.
	MaxSeeds = 16
)

var pdaMarker = []byte("ProgramDerivedAddress")

// Derive returns the owner-seeded address sha256(owner || seed || program).
func Derive(owner types.Pubkey, seed string, program types.Pubkey) (types.Pubkey, error) {
	if len(seed) > MaxSeedLength {
		return types.Pubkey{}, &evmloader.AddressDerivationError{
			Seed:   seed,
			Reason: fmt.Sprintf("seed is %d bytes, max %d", len(seed), MaxSeedLength),
		}
	}
	if bytes.HasSuffix(program[:], pdaMarker) {
		return types.Pubkey{}, &evmloader.AddressDerivationError{
			Seed:   seed,
			Reason: "owner program id carries the program-derived marker",
		}
	}

	h := sha256.New()
	h.Write(owner[:])
	h.Write([]byte(seed))
	h.Write(program[:])

	var pk types.Pubkey
	copy(pk[:], h.Sum(nil))
	return pk, nil
}

// CreateProgramAddress hashes seeds with program into an address that
// must lie off the ed25519 curve. Most callers want FindProgramAddress.
func CreateProgramAddress(seeds [][]byte, program types.Pubkey) (types.Pubkey, error) {
	if err := checkSeeds(seeds, MaxSeeds); err != nil {
		return types.Pubkey{}, err
	}
	pk := hashProgramAddress(seeds, program)
	if IsOnCurve(pk) {
		return types.Pubkey{}, &evmloader.AddressDerivationError{Reason: "address lies on the ed25519 curve"}
	}
	return pk, nil
}

// FindProgramAddress searches bump values from 255 down and returns the
// first off-curve address for seeds || [bump], together with the bump.
func FindProgramAddress(seeds [][]byte, program types.Pubkey) (types.Pubkey, uint8, error) {
	if err := checkSeeds(seeds, MaxSeeds-1); err != nil {
		return types.Pubkey{}, 0, err
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		if pk := hashProgramAddress(withBump, program); !IsOnCurve(pk) {
			return pk, uint8(bump), nil
		}
	}
	return types.Pubkey{}, 0, &evmloader.AddressDerivationError{Reason: "no viable bump seed"}
}

// FromProgram is FindProgramAddress for a single seed.
func FromProgram(seed []byte, program types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{seed}, program)
}

// IsOnCurve reports whether pk decodes to a point on the ed25519 curve.
func IsOnCurve(pk types.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

func checkSeeds(seeds [][]byte, max int) error {
	if len(seeds) > max {
		return &evmloader.AddressDerivationError{
			Reason: fmt.Sprintf("%d seeds, max %d", len(seeds), max),
		}
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return &evmloader.AddressDerivationError{
				Seed:   fmt.Sprintf("%x", s),
				Reason: fmt.Sprintf("seed is %d bytes, max %d", len(s), MaxSeedLength),
			}
		}
	}
	return nil
}

func hashProgramAddress(seeds [][]byte, program types.Pubkey) types.Pubkey {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program[:])
	h.Write(pdaMarker)

	var pk types.Pubkey
	copy(pk[:], h.Sum(nil))
	return pk
}

// EtherAccount returns the program-derived ledger account holding the
// state of an ether address, and its bump.
func EtherAccount(ether common.Address, program types.Pubkey) (types.Pubkey, uint8, error) {
	return FromProgram(ether.Bytes(), program)
}

// CodeSeed is the seed of the account holding a contract's code: the
// base58 text of its ether address.
func CodeSeed(ether common.Address) string {
	return base58.Encode(ether.Bytes())
}

// CodeAccount returns the owner-seeded account holding the code of the
// contract at ether.
func CodeAccount(owner types.Pubkey, ether common.Address, program types.Pubkey) (types.Pubkey, error) {
	return Derive(owner, CodeSeed(ether), program)
}

// EtherOf maps a ledger key to its ether address: the low 20 bytes of
// keccak256(pubkey).
func EtherOf(pk types.Pubkey) common.Address {
	return common.BytesToAddress(crypto.Keccak256(pk[:])[12:])
}

// ContractAddress returns the ether address of a contract created by
// caller at nonce.
func ContractAddress(caller common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(caller, nonce)
}
