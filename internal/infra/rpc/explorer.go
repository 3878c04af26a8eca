package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ExplorerTxn is one row of an explorer account transaction list. All fields
// arrive as decimal strings, explorer convention.
type ExplorerTxn struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	GasPrice      string `json:"gasPrice"`
	GasUsed       string `json:"gasUsed"`
	TimeStamp     string `json:"timeStamp"`
	Confirmations string `json:"confirmations"`
}

// Explorer fetches historical transactions from a blockscout-style REST API.
type Explorer struct {
	baseURL    string
	httpClient *http.Client
}

// NewExplorer creates an explorer client for a base URL.
func NewExplorer(baseURL string, timeout time.Duration) *Explorer {
	return &Explorer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AccountTxList fetches the transaction list for an address.
func (e *Explorer) AccountTxList(ctx context.Context, address string) ([]ExplorerTxn, error) {
	u := fmt.Sprintf("%sapi?module=account&action=txlist&address=%s",
		e.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer status %d", resp.StatusCode)
	}

	var body struct {
		Status  string        `json:"status"`
		Message string        `json:"message"`
		Result  []ExplorerTxn `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	if body.Status != "1" && body.Message != "OK" {
		// "No transactions found" comes back as status 0 with an empty result.
		return nil, nil
	}
	return body.Result, nil
}
