package loadergrpc

import "github.com/blockberries/evmloader/types"

// Request and response envelopes of the ledger service. Ledger methods
// take and return bare values, so every RPC gets a struct here.

// BlockhashRequest is the (empty) request for LatestBlockhash.
type BlockhashRequest struct{}

// BlockhashResponse wraps the return value of LatestBlockhash.
type BlockhashResponse struct {
	Hash types.Hash `cramberry:"1"`
}

// SendTransactionRequest carries a serialized, signed transaction.
type SendTransactionRequest struct {
	Tx []byte `cramberry:"1"`
}

// SendTransactionResponse wraps the signature of a submitted
// transaction.
type SendTransactionResponse struct {
	Signature types.Signature `cramberry:"1"`
}

// GetTransactionRequest asks for the status of a transaction.
type GetTransactionRequest struct {
	Signature types.Signature `cramberry:"1"`
}

// GetTransactionResponse carries the status, or Found=false while the
// transaction is unconfirmed.
type GetTransactionResponse struct {
	Found  bool           `cramberry:"1"`
	Status types.TxStatus `cramberry:"2"`
}

// GetBalanceRequest asks for the balance of an account.
type GetBalanceRequest struct {
	Account types.Pubkey `cramberry:"1"`
}

// GetBalanceResponse wraps the balance in lamports.
type GetBalanceResponse struct {
	Lamports uint64 `cramberry:"1"`
}
