package logs

import (
	"encoding/binary"

	"github.com/blockberries/evmloader/types"
)

// EncodeEvent returns the raw Event record for ev, the inverse of
// Decode. Programs hosted by an in-process ledger emit records with it.
func EncodeEvent(ev types.Event) []byte {
	rec := make([]byte, 0, 1+eventHeaderLen+len(ev.Topics)*wordSize+len(ev.Data))
	rec = append(rec, byte(types.MarkerEvent))
	rec = append(rec, ev.Address.Bytes()...)
	rec = binary.LittleEndian.AppendUint64(rec, uint64(len(ev.Topics)))
	for _, t := range ev.Topics {
		rec = append(rec, t.Bytes()...)
	}
	return append(rec, ev.Data...)
}

// EncodeReturn returns the raw Return record carrying value.
func EncodeReturn(value []byte) []byte {
	return append([]byte{byte(types.MarkerReturn)}, value...)
}
