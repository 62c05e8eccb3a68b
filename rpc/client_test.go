package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/types"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// fakeNode answers JSON-RPC requests from a table of canned results
// keyed by method. An entry of type *rpcError is sent as an error object.
type fakeNode struct {
	results map[string]any
	calls   []rpcRequest
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.calls = append(n.calls, req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch res := n.results[req.Method].(type) {
	case *rpcError:
		resp["error"] = res
	default:
		resp["result"] = res
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, results map[string]any, opts ...Option) (*Client, *fakeNode) {
	t.Helper()
	node := &fakeNode{results: results}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	c, err := Dial(context.Background(), srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, node
}

func TestLatestBlockhash(t *testing.T) {
	want := types.Hash{1, 2, 3}
	c, node := newTestClient(t, map[string]any{
		"getLatestBlockhash": map[string]any{
			"context": map[string]any{"slot": 10},
			"value":   map[string]any{"blockhash": want.String(), "lastValidBlockHeight": 160},
		},
	})
	got, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Len(t, node.calls, 1)
	require.Equal(t, map[string]any{"commitment": "confirmed"}, node.calls[0].Params[0])
}

func TestSendTransaction(t *testing.T) {
	sig := types.Signature{9, 9}
	c, node := newTestClient(t, map[string]any{"sendTransaction": sig.String()})
	tx := []byte{1, 2, 3, 4}

	got, err := c.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, sig, got)
	require.Equal(t, base64.StdEncoding.EncodeToString(tx), node.calls[0].Params[0])
	cfg := node.calls[0].Params[1].(map[string]any)
	require.Equal(t, "base64", cfg["encoding"])
}

func TestSendTransactionRefused(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{
		"sendTransaction": &rpcError{Code: -32002, Message: "Blockhash not found"},
	})
	_, err := c.SendTransaction(context.Background(), []byte{1})
	rej, ok := evmloader.IsRejected(err)
	require.True(t, ok, "expected RejectedError, got %v", err)
	require.Contains(t, rej.Reason, "Blockhash not found")
	require.Contains(t, rej.Reason, "-32002")
}

func TestSendTransactionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node is behind", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.SendTransaction(context.Background(), []byte{1})
	require.Error(t, err)
	_, ok := evmloader.IsRejected(err)
	require.False(t, ok, "an unreachable node is not a refusal: %v", err)
	require.Contains(t, err.Error(), "503")
}

func TestGetTransactionPending(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{"getTransaction": nil})
	st, err := c.GetTransaction(context.Background(), types.Signature{1})
	require.NoError(t, err)
	require.Nil(t, st)
}

func TestGetTransaction(t *testing.T) {
	sig := types.Signature{5}
	payer, program := types.Pubkey{1}, types.Pubkey{2}
	c, node := newTestClient(t, map[string]any{
		"getTransaction": map[string]any{
			"slot": 42,
			"meta": map[string]any{
				"err":         nil,
				"logMessages": []string{"Program log: succeed", "Program log: 01"},
				"innerInstructions": []any{
					map[string]any{
						"index": 0,
						"instructions": []any{
							map[string]any{"programIdIndex": 1, "accounts": []int{0, 1}, "data": "2q"},
						},
					},
				},
			},
			"transaction": map[string]any{
				"signatures": []string{sig.String()},
				"message":    map[string]any{"accountKeys": []string{payer.String(), program.String()}},
			},
		},
	})

	st, err := c.GetTransaction(context.Background(), sig)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.True(t, st.OK())
	require.Equal(t, sig, st.Signature)
	require.Equal(t, uint64(42), st.Slot)
	require.Equal(t, []types.Pubkey{payer, program}, st.AccountKeys)
	require.Equal(t, []string{"Program log: succeed", "Program log: 01"}, st.LogMessages)
	require.Len(t, st.InnerInstructions, 1)
	require.Equal(t, types.CompiledInstruction{ProgramIDIndex: 1, Accounts: []uint8{0, 1}, Data: "2q"},
		st.InnerInstructions[0].Instructions[0])

	require.Equal(t, sig.String(), node.calls[0].Params[0])
	cfg := node.calls[0].Params[1].(map[string]any)
	require.Equal(t, "json", cfg["encoding"])
}

func TestGetTransactionExecutionError(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{
		"getTransaction": map[string]any{
			"slot": 7,
			"meta": map[string]any{
				"err":         map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 1}}},
				"logMessages": []string{"Program failed"},
			},
			"transaction": map[string]any{"message": map[string]any{"accountKeys": []string{}}},
		},
	})
	st, err := c.GetTransaction(context.Background(), types.Signature{1})
	require.NoError(t, err)
	require.False(t, st.OK())
	require.Contains(t, st.Err, "InstructionError")
}

func TestGetBalance(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{
		"getBalance": map[string]any{"context": map[string]any{"slot": 1}, "value": 5000},
	})
	bal, err := c.GetBalance(context.Background(), types.Pubkey{3})
	require.NoError(t, err)
	require.Equal(t, uint64(5000), bal)
}

func TestRateLimit(t *testing.T) {
	c, node := newTestClient(t, map[string]any{
		"getBalance": map[string]any{"value": 1},
	}, WithRateLimit(0.001, 1))

	_, err := c.GetBalance(context.Background(), types.Pubkey{1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.GetBalance(ctx, types.Pubkey{1})
	require.Error(t, err)
	require.Len(t, node.calls, 1, "throttled request must not reach the node")
}
