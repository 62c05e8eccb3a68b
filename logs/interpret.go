// Package logs decodes the log records the loader emits as inner
// instructions, and reassembles them into an execution result.
package logs

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/types"
)

const (
	wordSize       = 32
	eventHeaderLen = common.AddressLength + 8
)

// Decode parses one raw record. index is the record's position in its
// transaction and is only used in errors.
func Decode(index int, raw []byte) (types.LogRecord, error) {
	if len(raw) == 0 {
		return types.LogRecord{}, &evmloader.MalformedLogError{
			Reason: fmt.Sprintf("log record %d is empty", index),
		}
	}

	switch marker := types.Marker(raw[0]); marker {
	case types.MarkerReturn:
		ret := make([]byte, len(raw)-1)
		copy(ret, raw[1:])
		return types.LogRecord{Marker: marker, Return: ret}, nil

	case types.MarkerEvent:
		ev, err := decodeEvent(index, raw[1:])
		if err != nil {
			return types.LogRecord{}, err
		}
		return types.LogRecord{Marker: marker, Event: ev}, nil

	default:
		return types.LogRecord{}, &evmloader.UnknownMarkerError{Index: index, Marker: raw[0]}
	}
}

// decodeEvent parses address[20] | topics(u64le) | topic[32]* | word[32]*.
func decodeEvent(index int, payload []byte) (*types.Event, error) {
	if len(payload) < eventHeaderLen {
		return nil, &evmloader.TruncatedEventError{Index: index, Need: eventHeaderLen, Have: len(payload)}
	}

	ev := &types.Event{Address: common.BytesToAddress(payload[:common.AddressLength])}
	count := binary.LittleEndian.Uint64(payload[common.AddressLength:eventHeaderLen])
	rest := payload[eventHeaderLen:]

	if count > uint64(len(rest)/wordSize) {
		need := eventHeaderLen
		if count <= uint64(^uint32(0)) {
			need += int(count) * wordSize
		}
		return nil, &evmloader.TruncatedEventError{Index: index, Need: need, Have: len(payload)}
	}

	ev.Topics = make([]common.Hash, count)
	for i := range ev.Topics {
		ev.Topics[i] = common.BytesToHash(rest[:wordSize])
		rest = rest[wordSize:]
	}

	if len(rest)%wordSize != 0 {
		return nil, &evmloader.TruncatedEventError{
			Index: index,
			Need:  len(payload) + wordSize - len(rest)%wordSize,
			Have:  len(payload),
		}
	}
	ev.Data = make([]byte, len(rest))
	copy(ev.Data, rest)
	return ev, nil
}

// Interpret decodes the records of one transaction in order. At most one
// Return record may appear, and only as the last record.
func Interpret(raws [][]byte) ([]types.LogRecord, error) {
	records := make([]types.LogRecord, 0, len(raws))
	for i, raw := range raws {
		rec, err := Decode(i, raw)
		if err != nil {
			return nil, err
		}
		if rec.IsReturn() && i != len(raws)-1 {
			return nil, &evmloader.MalformedLogError{
				Reason: fmt.Sprintf("return record %d is followed by %d more records", i, len(raws)-1-i),
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// RecordData extracts the raw record bytes from a transaction's inner
// instructions: every inner instruction invoking program, in order.
func RecordData(program types.Pubkey, accountKeys []types.Pubkey, inner []types.InnerInstructions) ([][]byte, error) {
	var out [][]byte
	for _, group := range inner {
		for _, ix := range group.Instructions {
			if accountKeys != nil {
				if int(ix.ProgramIDIndex) >= len(accountKeys) {
					return nil, &evmloader.MalformedLogError{
						Reason: fmt.Sprintf("inner instruction program index %d out of range", ix.ProgramIDIndex),
					}
				}
				if accountKeys[ix.ProgramIDIndex] != program {
					continue
				}
			}
			raw, err := base58.Decode(ix.Data)
			if err != nil {
				return nil, &evmloader.MalformedLogError{
					Reason: fmt.Sprintf("inner instruction data is not base58: %v", err),
				}
			}
			out = append(out, raw)
		}
	}
	return out, nil
}

// FromInner is RecordData followed by Interpret, without filtering by
// program.
func FromInner(inner []types.InnerInstructions) ([]types.LogRecord, error) {
	raws, err := RecordData(types.Pubkey{}, nil, inner)
	if err != nil {
		return nil, err
	}
	return Interpret(raws)
}
