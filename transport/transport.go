// Package transport persists an oversized payload into a holder
// account as a sequence of confirmed Write calls.
package transport

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/instruction"
	"github.com/blockberries/evmloader/metrics"
	"github.com/blockberries/evmloader/types"
)

// DefaultMaxChunk keeps a Write transaction under the ledger's
// per-transaction size ceiling.
const DefaultMaxChunk = 1000

// Split partitions payload into chunks of at most maxChunk bytes at
// contiguous ascending offsets. The chunks alias payload. An empty
// payload yields no chunks. maxChunk <= 0 selects DefaultMaxChunk.
func Split(payload []byte, maxChunk int) []types.Chunk {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	chunks := make([]types.Chunk, 0, (len(payload)+maxChunk-1)/maxChunk)
	for off := 0; off < len(payload); off += maxChunk {
		end := min(off+maxChunk, len(payload))
		chunks = append(chunks, types.Chunk{Offset: uint32(off), Bytes: payload[off:end]})
	}
	return chunks
}

// Config parameterizes a Transport.
type Config struct {
	// Program is the loader program owning the holder account.
	Program types.Pubkey
	// Signer authorizes the writes.
	Signer types.Pubkey
	// MaxChunk bounds the bytes of one Write. Zero selects
	// DefaultMaxChunk.
	MaxChunk int
	Logger   log.Logger
	Metrics  *metrics.Metrics
}

// Transport writes payloads chunk by chunk. Writes are strictly
// sequential: each chunk is confirmed before the next is submitted.
type Transport struct {
	caller  evmloader.Caller
	cfg     Config
	log     log.Logger
	metrics *metrics.Metrics
}

// New returns a Transport issuing its writes through caller.
func New(caller evmloader.Caller, cfg Config) *Transport {
	if cfg.MaxChunk <= 0 {
		cfg.MaxChunk = DefaultMaxChunk
	}
	l := cfg.Logger
	if l == nil {
		l = log.Root()
	}
	return &Transport{
		caller:  caller,
		cfg:     cfg,
		log:     l.New("module", "transport"),
		metrics: cfg.Metrics,
	}
}

// Write stores payload in holder starting at offset 0 and returns one
// receipt per confirmed chunk. The first failing chunk aborts the
// transfer with a *evmloader.TransportError; earlier chunks stay
// written.
func (t *Transport) Write(ctx context.Context, payload []byte, holder types.Pubkey) ([]types.Receipt, error) {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("transport: payload of %d bytes exceeds the 32-bit offset range", len(payload))
	}
	chunks := Split(payload, t.cfg.MaxChunk)
	receipts := make([]types.Receipt, 0, len(chunks))

	for i, c := range chunks {
		ix := instruction.Write(t.cfg.Program, holder, t.cfg.Signer, c.Offset, c.Bytes)
		res, err := t.caller.Call(ctx, ix)
		if err != nil {
			t.log.Warn("Chunk write failed", "holder", holder, "offset", c.Offset, "len", len(c.Bytes), "err", err)
			return receipts, &evmloader.TransportError{Offset: c.Offset, Length: len(c.Bytes), Err: err}
		}
		receipts = append(receipts, types.Receipt{
			Offset:    c.Offset,
			Length:    uint64(len(c.Bytes)),
			Signature: res.Signature,
		})
		t.metrics.Chunk(len(c.Bytes))
		t.log.Debug("Chunk written", "holder", holder, "chunk", i+1, "of", len(chunks), "offset", c.Offset, "len", len(c.Bytes), "sig", res.Signature)
	}

	t.log.Info("Payload written", "holder", holder, "bytes", len(payload), "chunks", len(chunks))
	return receipts, nil
}
