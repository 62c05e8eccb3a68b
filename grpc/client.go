package loadergrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/types"
)

// Compile-time interface check.
var _ evmloader.Ledger = (*Client)(nil)

// Client implements evmloader.Ledger against a remote LedgerServer
// using cramberry serialization.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote ledger relay.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) LatestBlockhash(ctx context.Context) (types.Hash, error) {
	resp := new(BlockhashResponse)
	if err := c.cc.Invoke(ctx, fullMethod("LatestBlockhash"), &BlockhashRequest{}, resp); err != nil {
		return types.Hash{}, err
	}
	return resp.Hash, nil
}

// SendTransaction returns a *evmloader.RejectedError when the remote
// ledger refuses the transaction.
func (c *Client) SendTransaction(ctx context.Context, tx []byte) (types.Signature, error) {
	resp := new(SendTransactionResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SendTransaction"), &SendTransactionRequest{Tx: tx}, resp); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.FailedPrecondition {
			return types.Signature{}, &evmloader.RejectedError{Reason: st.Message()}
		}
		return types.Signature{}, err
	}
	return resp.Signature, nil
}

func (c *Client) GetTransaction(ctx context.Context, sig types.Signature) (*types.TxStatus, error) {
	resp := new(GetTransactionResponse)
	if err := c.cc.Invoke(ctx, fullMethod("GetTransaction"), &GetTransactionRequest{Signature: sig}, resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return &resp.Status, nil
}

func (c *Client) GetBalance(ctx context.Context, account types.Pubkey) (uint64, error) {
	resp := new(GetBalanceResponse)
	if err := c.cc.Invoke(ctx, fullMethod("GetBalance"), &GetBalanceRequest{Account: account}, resp); err != nil {
		return 0, err
	}
	return resp.Lamports, nil
}
