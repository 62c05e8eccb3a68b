package loadergrpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/evmloader"
)

// Compile-time interface check.
var _ LedgerServiceServer = (*LedgerServer)(nil)

// LedgerServer exposes an evmloader.Ledger as a gRPC service.
type LedgerServer struct {
	ledger evmloader.Ledger
}

// NewLedgerServer creates a gRPC server relaying to l.
func NewLedgerServer(l evmloader.Ledger) *LedgerServer {
	return &LedgerServer{ledger: l}
}

// Register adds the ledger service to a gRPC server.
func (s *LedgerServer) Register(gs *grpc.Server) {
	RegisterLedgerServiceServer(gs, s)
}

// Serve starts a gRPC server on the given listener.
func (s *LedgerServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

func (s *LedgerServer) LatestBlockhash(ctx context.Context, _ *BlockhashRequest) (*BlockhashResponse, error) {
	h, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &BlockhashResponse{Hash: h}, nil
}

// SendTransaction reports refused transactions as FailedPrecondition and
// any other failure as Unavailable.
func (s *LedgerServer) SendTransaction(ctx context.Context, req *SendTransactionRequest) (*SendTransactionResponse, error) {
	sig, err := s.ledger.SendTransaction(ctx, req.Tx)
	if err != nil {
		if r, ok := evmloader.IsRejected(err); ok {
			return nil, status.Error(codes.FailedPrecondition, r.Reason)
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &SendTransactionResponse{Signature: sig}, nil
}

func (s *LedgerServer) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*GetTransactionResponse, error) {
	st, err := s.ledger.GetTransaction(ctx, req.Signature)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	if st == nil {
		return &GetTransactionResponse{}, nil
	}
	return &GetTransactionResponse{Found: true, Status: *st}, nil
}

func (s *LedgerServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	bal, err := s.ledger.GetBalance(ctx, req.Account)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &GetBalanceResponse{Lamports: bal}, nil
}
