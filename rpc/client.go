// Package rpc implements evmloader.Ledger against a ledger node's
// JSON-RPC endpoint.
package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	ethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/types"
)

// Compile-time interface check.
var _ evmloader.Ledger = (*Client)(nil)

// DefaultCommitment is the commitment level queries are made at.
const DefaultCommitment = "confirmed"

// Client is a JSON-RPC connection to a ledger node.
type Client struct {
	c          *ethrpc.Client
	commitment string
	limiter    *rate.Limiter
	log        log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCommitment overrides DefaultCommitment.
func WithCommitment(level string) Option {
	return func(c *Client) { c.commitment = level }
}

// WithRateLimit caps requests to the node at r per second with the
// given burst. Public nodes throttle clients that poll aggressively.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithLogger sets the logger. The default is log.Root().
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Dial connects to the node at endpoint (http, https, ws or wss).
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	c, err := ethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", endpoint, err)
	}
	return NewClient(c, opts...), nil
}

// NewClient wraps an existing JSON-RPC connection.
func NewClient(c *ethrpc.Client, opts ...Option) *Client {
	cl := &Client{c: c, commitment: DefaultCommitment, log: log.Root()}
	for _, o := range opts {
		o(cl)
	}
	cl.log = cl.log.New("module", "rpc")
	return cl
}

// call waits for the rate limiter, if any, and issues one request.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.c.CallContext(ctx, result, method, args...)
}

func (c *Client) config() map[string]any {
	return map[string]any{"commitment": c.commitment}
}

func (c *Client) LatestBlockhash(ctx context.Context) (types.Hash, error) {
	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, &res, "getLatestBlockhash", c.config()); err != nil {
		return types.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	h, err := types.HashFromBase58(res.Value.Blockhash)
	if err != nil {
		return types.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	return h, nil
}

// SendTransaction submits tx base64-encoded. A JSON-RPC error object
// from the node is returned as a *evmloader.RejectedError.
func (c *Client) SendTransaction(ctx context.Context, tx []byte) (types.Signature, error) {
	var res string
	cfg := map[string]any{"encoding": "base64", "preflightCommitment": c.commitment}
	err := c.call(ctx, &res, "sendTransaction", base64.StdEncoding.EncodeToString(tx), cfg)
	if err != nil {
		var rerr ethrpc.Error
		if errors.As(err, &rerr) {
			return types.Signature{}, &evmloader.RejectedError{
				Reason: fmt.Sprintf("%s (code %d)", rerr.Error(), rerr.ErrorCode()),
				Err:    err,
			}
		}
		return types.Signature{}, fmt.Errorf("sendTransaction: %w", err)
	}
	sig, err := types.SignatureFromBase58(res)
	if err != nil {
		return types.Signature{}, fmt.Errorf("sendTransaction: %w", err)
	}
	c.log.Debug("Transaction sent", "sig", sig, "size", len(tx))
	return sig, nil
}

type rpcInstruction struct {
	ProgramIDIndex uint8  `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

type rpcTransaction struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err               json.RawMessage `json:"err"`
		LogMessages       []string        `json:"logMessages"`
		InnerInstructions []struct {
			Index        uint8            `json:"index"`
			Instructions []rpcInstruction `json:"instructions"`
		} `json:"innerInstructions"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// GetTransaction fetches the transaction in json encoding. A null
// result means the transaction is not confirmed yet.
func (c *Client) GetTransaction(ctx context.Context, sig types.Signature) (*types.TxStatus, error) {
	var res *rpcTransaction
	cfg := c.config()
	cfg["encoding"] = "json"
	if err := c.call(ctx, &res, "getTransaction", sig.String(), cfg); err != nil {
		return nil, fmt.Errorf("getTransaction %s: %w", sig, err)
	}
	if res == nil {
		return nil, nil
	}
	return res.status(sig)
}

func (r *rpcTransaction) status(sig types.Signature) (*types.TxStatus, error) {
	st := &types.TxStatus{Signature: sig, Slot: r.Slot}
	for _, k := range r.Transaction.Message.AccountKeys {
		pk, err := types.PubkeyFromBase58(k)
		if err != nil {
			return nil, fmt.Errorf("getTransaction %s: account key: %w", sig, err)
		}
		st.AccountKeys = append(st.AccountKeys, pk)
	}
	if r.Meta == nil {
		return st, nil
	}
	if len(r.Meta.Err) > 0 && string(r.Meta.Err) != "null" {
		st.Err = string(r.Meta.Err)
	}
	st.LogMessages = r.Meta.LogMessages
	for _, inner := range r.Meta.InnerInstructions {
		group := types.InnerInstructions{Index: inner.Index}
		for _, ix := range inner.Instructions {
			ci := types.CompiledInstruction{ProgramIDIndex: ix.ProgramIDIndex, Data: ix.Data}
			for _, a := range ix.Accounts {
				ci.Accounts = append(ci.Accounts, uint8(a))
			}
			group.Instructions = append(group.Instructions, ci)
		}
		st.InnerInstructions = append(st.InnerInstructions, group)
	}
	return st, nil
}

func (c *Client) GetBalance(ctx context.Context, account types.Pubkey) (uint64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, &res, "getBalance", account.String(), c.config()); err != nil {
		return 0, fmt.Errorf("getBalance %s: %w", account, err)
	}
	return res.Value, nil
}

func (c *Client) Close() error {
	c.c.Close()
	return nil
}
