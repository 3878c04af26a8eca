package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// Receipt is the decoded result of an eth_getTransactionReceipt call plus the
// confirmation depth relative to the current chain tip.
type Receipt struct {
	TxHash            string
	BlockNumber       uint64
	GasUsed           *big.Int
	EffectiveGasPrice *big.Int
	Status            uint64
	Confirmations     uint64
}

// Fee is gas price times gas used, in the chain's native base unit.
func (r *Receipt) Fee() *big.Int {
	if r.GasUsed == nil || r.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(r.GasUsed, r.EffectiveGasPrice)
}

// Client makes JSON-RPC calls against a single provider endpoint.
type Client struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a JSON-RPC client for an endpoint.
func NewClient(name, endpoint string, timeout time.Duration) *Client {
	return &Client{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// TransactionReceipt fetches the receipt for a hash and computes its
// confirmation depth. Returns (nil, nil) when the transaction is not yet
// mined: that is a pending outcome, not an error.
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var raw json.RawMessage
	if err := c.callWithRetry(ctx, "eth_getTransactionReceipt", []any{hash}, &raw); err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var rec struct {
		TransactionHash   string `json:"transactionHash"`
		BlockNumber       string `json:"blockNumber"`
		GasUsed           string `json:"gasUsed"`
		CumulativeGasUsed string `json:"cumulativeGasUsed"`
		EffectiveGasPrice string `json:"effectiveGasPrice"`
		Status            string `json:"status"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	blockNum, err := parseHexUint(rec.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("decode receipt block number: %w", err)
	}

	var tipHex string
	if err := c.callWithRetry(ctx, "eth_blockNumber", []any{}, &tipHex); err != nil {
		return nil, err
	}
	tip, err := parseHexUint(tipHex)
	if err != nil {
		return nil, fmt.Errorf("decode block number: %w", err)
	}

	status, _ := parseHexUint(rec.Status)
	confirmations := uint64(0)
	if tip >= blockNum {
		confirmations = tip - blockNum + 1
	}

	return &Receipt{
		TxHash:            rec.TransactionHash,
		BlockNumber:       blockNum,
		GasUsed:           parseHexBig(rec.GasUsed),
		EffectiveGasPrice: parseHexBig(rec.EffectiveGasPrice),
		Status:            status,
		Confirmations:     confirmations,
	}, nil
}

// call makes a single JSON-RPC call and decodes result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, method string, params []any, out any) error {
	return withRetry(ctx, DefaultRetryConfig, func() error {
		return c.call(ctx, method, params, out)
	})
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex number %q", s)
	}
	return n.Uint64(), nil
}

func parseHexBig(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return big.NewInt(0)
	}
	return n
}
