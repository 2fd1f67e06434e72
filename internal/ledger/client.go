package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mintgate/mintgate/internal/monitoring"
)

// rpcCodeUnsupportedVersion is returned by nodes that cannot decode the
// requested transaction version. Verification treats such transactions the
// same as unconfirmed ones.
const rpcCodeUnsupportedVersion = -32015

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client is a query-only JSON-RPC client for the ledger. It never retries:
// retry policy belongs to the trigger paths that call verification.
type Client struct {
	endpoint string
	hc       *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		endpoint: cfg.Endpoint,
		hc:       &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("ledger: rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	const op = "ledger.Client.call"

	start := time.Now()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	monitoring.ObserveLedgerRPC(method, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if rr.Error != nil {
		if rr.Error.Code == rpcCodeUnsupportedVersion {
			return ErrNotFound
		}
		return fmt.Errorf("%s:%w", op, rr.Error)
	}

	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	return nil
}

type txResult struct {
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *struct {
		Err               any              `json:"err"`
		PreBalances       []int64          `json:"preBalances"`
		PostBalances      []int64          `json:"postBalances"`
		PreTokenBalances  []rpcTokenStatus `json:"preTokenBalances"`
		PostTokenBalances []rpcTokenStatus `json:"postTokenBalances"`
	} `json:"meta"`
}

type rpcTokenStatus struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

// Transaction fetches a confirmed transaction by signature. Unconfirmed
// transactions and transactions without metadata return ErrNotFound.
func (c *Client) Transaction(ctx context.Context, signature string) (*Transaction, error) {
	const op = "ledger.Client.Transaction"

	params := []any{
		signature,
		map[string]any{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotFound
	}

	var res txResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if res.Meta == nil {
		return nil, ErrNotFound
	}

	tx := &Transaction{
		Signature:    signature,
		Succeeded:    res.Meta.Err == nil,
		AccountKeys:  res.Transaction.Message.AccountKeys,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
	}

	tx.PreTokenBalances = convertTokenBalances(res.Meta.PreTokenBalances)
	tx.PostTokenBalances = convertTokenBalances(res.Meta.PostTokenBalances)

	return tx, nil
}

// SignaturesForAddress lists signatures that reference the given public key,
// newest first.
func (c *Client) SignaturesForAddress(ctx context.Context, pubkey string, limit int) ([]SignatureInfo, error) {
	const op = "ledger.Client.SignaturesForAddress"

	if limit <= 0 {
		limit = 10
	}

	params := []any{
		pubkey,
		map[string]any{"limit": limit},
	}

	var raw []struct {
		Signature string `json:"signature"`
		Slot      uint64 `json:"slot"`
		Err       any    `json:"err"`
		BlockTime *int64 `json:"blockTime"`
	}

	if err := c.call(ctx, "getSignaturesForAddress", params, &raw); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	infos := make([]SignatureInfo, 0, len(raw))
	for _, r := range raw {
		infos = append(infos, SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Failed:    r.Err != nil,
		})
	}

	return infos, nil
}

// LatestBlockhash returns the node's most recent blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	const op = "ledger.Client.LatestBlockhash"

	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}

	if err := c.call(ctx, "getLatestBlockhash", []any{}, &res); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return res.Value.Blockhash, nil
}

func convertTokenBalances(in []rpcTokenStatus) []TokenBalance {
	if len(in) == 0 {
		return nil
	}

	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		amount, err := strconv.ParseInt(b.UITokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       amount,
		})
	}

	return out
}
