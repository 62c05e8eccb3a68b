package loader

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/blockberries/evmloader/address"
)

// SignatureLength is r || s || recovery id.
const SignatureLength = crypto.SignatureLength

// UnsignedMessage returns the EIP-155 signing preimage of tx:
// rlp([nonce, gasPrice, gas, to, value, data, chainID, 0, 0]).
func UnsignedMessage(tx *ethtypes.LegacyTx, chainID *big.Int) ([]byte, error) {
	return rlp.EncodeToBytes([]interface{}{
		tx.Nonce,
		tx.GasPrice,
		tx.Gas,
		tx.To,
		tx.Value,
		tx.Data,
		chainID,
		uint(0), uint(0),
	})
}

// SignedPayload builds the payload the loader executes from a holder
// account: signature[65] || len(msg) as u64le || msg, where msg is the
// unsigned EIP-155 message and the signature covers keccak256(msg).
func SignedPayload(tx *ethtypes.LegacyTx, chainID *big.Int, key *ecdsa.PrivateKey) ([]byte, error) {
	msg, err := UnsignedMessage(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	sig, err := crypto.Sign(crypto.Keccak256(msg), key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	payload := make([]byte, 0, SignatureLength+8+len(msg))
	payload = append(payload, sig...)
	payload = binary.LittleEndian.AppendUint64(payload, uint64(len(msg)))
	return append(payload, msg...), nil
}

// PayloadSender recovers the ether address that signed payload and
// returns the embedded message.
func PayloadSender(payload []byte) (common.Address, []byte, error) {
	if len(payload) < SignatureLength+8 {
		return common.Address{}, nil, fmt.Errorf("payload: %d bytes is shorter than its header", len(payload))
	}
	n := binary.LittleEndian.Uint64(payload[SignatureLength:])
	msg := payload[SignatureLength+8:]
	if uint64(len(msg)) != n {
		return common.Address{}, nil, fmt.Errorf("payload: message length %d, header says %d", len(msg), n)
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(msg), payload[:SignatureLength])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("payload: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), msg, nil
}

// PayloadParties recovers the signer of payload and the contract it
// addresses. A payload without a recipient creates a contract, so its
// contract is the one the signer deploys at the message nonce.
func PayloadParties(payload []byte) (sender, contract common.Address, creates bool, err error) {
	sender, msg, err := PayloadSender(payload)
	if err != nil {
		return common.Address{}, common.Address{}, false, err
	}
	var fields struct {
		Nonce    uint64
		GasPrice *big.Int
		Gas      uint64
		To       *common.Address `rlp:"nil"`
		Rest     []rlp.RawValue  `rlp:"tail"`
	}
	if err := rlp.DecodeBytes(msg, &fields); err != nil {
		return common.Address{}, common.Address{}, false, fmt.Errorf("payload message: %w", err)
	}
	if fields.To == nil {
		return sender, address.ContractAddress(sender, fields.Nonce), true, nil
	}
	return sender, *fields.To, false, nil
}
