package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/ed25519"

	"github.com/blockberries/evmloader/types"
)

// Keypair is an ed25519 signing identity on the ledger.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a keypair from rand.
func NewKeypair(rand io.Reader) (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair seed: length %d, want %d", len(seed), ed25519.SeedSize)
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes accepts the 64-byte secret||public form used by
// ledger keypair files.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair: length %d, want %d", len(b), ed25519.PrivateKeySize)
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if string(kp.priv[ed25519.SeedSize:]) != string(b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair: public half does not match secret")
	}
	return kp, nil
}

// LoadKeypair reads a keypair file holding a JSON array of 64 bytes.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var b []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair %s: byte value %d out of range", path, v)
		}
		b = append(b, byte(v))
	}
	return KeypairFromBytes(b)
}

// Pubkey returns the account identifier of the keypair.
func (k *Keypair) Pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs msg.
func (k *Keypair) Sign(msg []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(k.priv, msg))
	return sig
}

// Verify checks sig over msg against pk.
func Verify(pk types.Pubkey, msg []byte, sig types.Signature) bool {
	return ed25519.Verify(pk[:], msg, sig[:])
}
