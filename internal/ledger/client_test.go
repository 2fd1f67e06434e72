package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(method string, params []json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)

		resp := map[string]any{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = map[string]any{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestTransaction_ParsesNativeAndTokenBalances(t *testing.T) {
	srv := rpcServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		assert.Equal(t, "getTransaction", method)

		var sig string
		require.NoError(t, json.Unmarshal(params[0], &sig))
		assert.Equal(t, "sig123", sig)

		return map[string]any{
			"transaction": map[string]any{
				"message": map[string]any{
					"accountKeys": []string{"payer", "merchant", "tokenAcc"},
				},
			},
			"meta": map[string]any{
				"err":          nil,
				"preBalances":  []int64{9_000_000_000, 1_000_000_000, 2_039_280},
				"postBalances": []int64{8_000_000_000, 2_000_000_000, 2_039_280},
				"postTokenBalances": []map[string]any{
					{
						"accountIndex":  2,
						"mint":          "usdcMint",
						"owner":         "merchant",
						"uiTokenAmount": map[string]any{"amount": "1500000"},
					},
				},
			},
		}, nil
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	tx, err := c.Transaction(context.Background(), "sig123")
	require.NoError(t, err)

	assert.Equal(t, "sig123", tx.Signature)
	assert.True(t, tx.Succeeded)
	assert.Equal(t, []string{"payer", "merchant", "tokenAcc"}, tx.AccountKeys)
	assert.Equal(t, []int64{9_000_000_000, 1_000_000_000, 2_039_280}, tx.PreBalances)
	assert.Equal(t, []int64{8_000_000_000, 2_000_000_000, 2_039_280}, tx.PostBalances)

	require.Len(t, tx.PostTokenBalances, 1)
	assert.Equal(t, TokenBalance{
		AccountIndex: 2,
		Mint:         "usdcMint",
		Owner:        "merchant",
		Amount:       1_500_000,
	}, tx.PostTokenBalances[0])
}

func TestTransaction_FailedOnChain(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return map[string]any{
			"transaction": map[string]any{
				"message": map[string]any{"accountKeys": []string{"payer"}},
			},
			"meta": map[string]any{
				"err": map[string]any{"InstructionError": []any{0, "Custom"}},
			},
		}, nil
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	tx, err := c.Transaction(context.Background(), "sig123")
	require.NoError(t, err)
	assert.False(t, tx.Succeeded)
}

func TestTransaction_NullResultIsNotFound(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return nil, nil
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	_, err := c.Transaction(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_MissingMetaIsNotFound(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return map[string]any{
			"transaction": map[string]any{
				"message": map[string]any{"accountKeys": []string{"payer"}},
			},
		}, nil
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	_, err := c.Transaction(context.Background(), "sig123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_UnsupportedVersionIsNotFound(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: rpcCodeUnsupportedVersion, Message: "Transaction version (1) is not supported"}
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	_, err := c.Transaction(context.Background(), "sig123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_OtherRPCErrorIsTransient(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32005, Message: "node is behind"}
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	_, err := c.Transaction(context.Background(), "sig123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSignaturesForAddress(t *testing.T) {
	srv := rpcServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		assert.Equal(t, "getSignaturesForAddress", method)

		var pubkey string
		require.NoError(t, json.Unmarshal(params[0], &pubkey))
		assert.Equal(t, "refKey123", pubkey)

		return []map[string]any{
			{"signature": "newest", "slot": 1002, "err": nil},
			{"signature": "failed", "slot": 1001, "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
			{"signature": "oldest", "slot": 1000, "err": nil},
		}, nil
	})
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	infos, err := c.SignaturesForAddress(context.Background(), "refKey123", 3)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "newest", infos[0].Signature)
	assert.False(t, infos[0].Failed)
	assert.True(t, infos[1].Failed)
	assert.Equal(t, uint64(1000), infos[2].Slot)
}

func TestClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})

	_, err := c.Transaction(context.Background(), "sig123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
