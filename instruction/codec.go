package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockberries/evmloader/types"
)

var (
	ErrEmpty     = errors.New("instruction: empty data")
	ErrShortData = errors.New("instruction: data too short")
)

// Decoded is the parsed form of a loader instruction.
type Decoded interface {
	Tag() Tag
}

// WriteData appends Bytes to the holder buffer at Offset.
type WriteData struct {
	Offset uint32
	Bytes  []byte
}

// StepsData carries the step budget of BeginPartial and Continue.
type StepsData struct {
	Kind  Tag
	Steps uint64
}

// CreateAccountData creates the ledger twin of an ether account.
type CreateAccountData struct {
	Lamports uint64
	Space    uint64
	Ether    common.Address
	Nonce    uint8
}

// CallData invokes a contract directly with calldata.
type CallData struct {
	Calldata []byte
}

// FinalizeData executes the payload held in a holder account.
type FinalizeData struct{}

func (WriteData) Tag() Tag         { return TagWrite }
func (d StepsData) Tag() Tag       { return d.Kind }
func (CreateAccountData) Tag() Tag { return TagCreateAccount }
func (CallData) Tag() Tag          { return TagCall }
func (FinalizeData) Tag() Tag      { return TagFinalizeFromBuffer }

// EncodeWrite returns tag(u32) | offset(u32) | length(u64) | bytes.
func EncodeWrite(offset uint32, b []byte) []byte {
	data := make([]byte, 0, 16+len(b))
	data = binary.LittleEndian.AppendUint32(data, uint32(TagWrite))
	data = binary.LittleEndian.AppendUint32(data, offset)
	data = binary.LittleEndian.AppendUint64(data, uint64(len(b)))
	return append(data, b...)
}

// EncodeSteps returns tag(u8) | steps(u64) for BeginPartial or Continue.
func EncodeSteps(kind Tag, steps uint64) []byte {
	data := make([]byte, 0, 9)
	data = append(data, byte(kind))
	return binary.LittleEndian.AppendUint64(data, steps)
}

// EncodeCreateAccount returns tag(u32) | lamports | space | ether[20] | nonce.
func EncodeCreateAccount(d CreateAccountData) []byte {
	data := make([]byte, 0, 4+8+8+common.AddressLength+1)
	data = binary.LittleEndian.AppendUint32(data, uint32(TagCreateAccount))
	data = binary.LittleEndian.AppendUint64(data, d.Lamports)
	data = binary.LittleEndian.AppendUint64(data, d.Space)
	data = append(data, d.Ether.Bytes()...)
	return append(data, d.Nonce)
}

// EncodeCall returns tag(u8) | calldata.
func EncodeCall(calldata []byte) []byte {
	return append([]byte{byte(TagCall)}, calldata...)
}

// EncodeFinalize returns the single tag byte.
func EncodeFinalize() []byte {
	return []byte{byte(TagFinalizeFromBuffer)}
}

// Decode parses loader instruction data.
func Decode(data []byte) (Decoded, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	tag := Tag(data[0])
	rest := data[1:]
	if tag.wideTag() {
		if len(data) < 4 {
			return nil, fmt.Errorf("%s tag: %w", tag, ErrShortData)
		}
		if binary.LittleEndian.Uint32(data) != uint32(tag) {
			return nil, fmt.Errorf("instruction: unknown tag word 0x%08x", binary.LittleEndian.Uint32(data))
		}
		rest = data[4:]
	}

	switch tag {
	case TagWrite:
		if len(rest) < 12 {
			return nil, fmt.Errorf("%s header: %w", tag, ErrShortData)
		}
		offset := binary.LittleEndian.Uint32(rest)
		length := binary.LittleEndian.Uint64(rest[4:])
		body := rest[12:]
		if uint64(len(body)) < length {
			return nil, fmt.Errorf("%s body: want %d bytes, have %d: %w", tag, length, len(body), ErrShortData)
		}
		return WriteData{Offset: offset, Bytes: body[:length]}, nil

	case TagBeginPartial, TagContinue:
		if len(rest) < 8 {
			return nil, fmt.Errorf("%s steps: %w", tag, ErrShortData)
		}
		return StepsData{Kind: tag, Steps: binary.LittleEndian.Uint64(rest)}, nil

	case TagCreateAccount:
		if len(rest) < 8+8+common.AddressLength+1 {
			return nil, fmt.Errorf("%s: %w", tag, ErrShortData)
		}
		return CreateAccountData{
			Lamports: binary.LittleEndian.Uint64(rest),
			Space:    binary.LittleEndian.Uint64(rest[8:]),
			Ether:    common.BytesToAddress(rest[16 : 16+common.AddressLength]),
			Nonce:    rest[16+common.AddressLength],
		}, nil

	case TagCall:
		return CallData{Calldata: rest}, nil

	case TagFinalizeFromBuffer:
		return FinalizeData{}, nil

	default:
		return nil, fmt.Errorf("instruction: unknown tag %s", tag)
	}
}

// SeedAccountData is the system program's CreateAccountWithSeed payload.
type SeedAccountData struct {
	Base     types.Pubkey
	Seed     string
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

// EncodeCreateAccountWithSeed returns
// index(u32) | base[32] | seed_len(u64) | seed | lamports | space | owner[32].
func EncodeCreateAccountWithSeed(d SeedAccountData) []byte {
	data := make([]byte, 0, 4+32+8+len(d.Seed)+8+8+32)
	data = binary.LittleEndian.AppendUint32(data, systemCreateAccountWithSeed)
	data = append(data, d.Base[:]...)
	data = binary.LittleEndian.AppendUint64(data, uint64(len(d.Seed)))
	data = append(data, d.Seed...)
	data = binary.LittleEndian.AppendUint64(data, d.Lamports)
	data = binary.LittleEndian.AppendUint64(data, d.Space)
	return append(data, d.Owner[:]...)
}

// DecodeCreateAccountWithSeed parses a system CreateAccountWithSeed payload.
func DecodeCreateAccountWithSeed(data []byte) (SeedAccountData, error) {
	var d SeedAccountData
	if len(data) < 4+32+8 {
		return d, fmt.Errorf("create account with seed header: %w", ErrShortData)
	}
	if idx := binary.LittleEndian.Uint32(data); idx != systemCreateAccountWithSeed {
		return d, fmt.Errorf("instruction: system instruction %d is not CreateAccountWithSeed", idx)
	}
	copy(d.Base[:], data[4:36])
	seedLen := binary.LittleEndian.Uint64(data[36:])
	rest := data[44:]
	if seedLen > uint64(len(rest)) || uint64(len(rest))-seedLen < 8+8+32 {
		return d, fmt.Errorf("create account with seed body: %w", ErrShortData)
	}
	d.Seed = string(rest[:seedLen])
	rest = rest[seedLen:]
	d.Lamports = binary.LittleEndian.Uint64(rest)
	d.Space = binary.LittleEndian.Uint64(rest[8:])
	copy(d.Owner[:], rest[16:48])
	return d, nil
}
