package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// rpcHandler answers eth_getTransactionReceipt and eth_blockNumber with fixed
// responses, mirroring a node at a known chain tip.
func rpcHandler(t *testing.T, receipt string, tip string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode rpc request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_getTransactionReceipt":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, receipt)
		case "eth_blockNumber":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"%s"}`, tip)
		default:
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
		}
	}
}

func TestTransactionReceipt(t *testing.T) {
	receipt := `{"transactionHash":"0xabc","blockNumber":"0x62","gasUsed":"0x5208","effectiveGasPrice":"0x3b9aca00","status":"0x1"}`
	srv := httptest.NewServer(rpcHandler(t, receipt, "0x64"))
	defer srv.Close()

	c := NewClient("test", srv.URL, 5*time.Second)
	rec, err := c.TransactionReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("TransactionReceipt failed: %v", err)
	}

	if rec.TxHash != "0xabc" {
		t.Errorf("Unexpected hash %s", rec.TxHash)
	}
	if rec.BlockNumber != 98 {
		t.Errorf("Expected block 98, got %d", rec.BlockNumber)
	}
	// Tip 100, mined at 98: depth 3 counting the mined block itself.
	if rec.Confirmations != 3 {
		t.Errorf("Expected 3 confirmations, got %d", rec.Confirmations)
	}
	if rec.Status != 1 {
		t.Errorf("Expected status 1, got %d", rec.Status)
	}
	if rec.Fee().String() != "21000000000000" {
		t.Errorf("Unexpected fee %s", rec.Fee())
	}
}

func TestTransactionReceipt_NotMined(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, "null", "0x64"))
	defer srv.Close()

	c := NewClient("test", srv.URL, 5*time.Second)
	rec, err := c.TransactionReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Expected pending outcome, got error: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil receipt for an unmined transaction, got %+v", rec)
	}
}

func TestTransactionReceipt_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`)
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, 5*time.Second)
	if _, err := c.TransactionReceipt(context.Background(), "not-a-hash"); err == nil {
		t.Error("Expected error for invalid params")
	}
}

func TestAccountTxList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "0xabc" {
			t.Errorf("Unexpected address param %q", got)
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[
			{"hash":"0x1","from":"0xabc","to":"0xdef","value":"1000","gasPrice":"2000000000","gasUsed":"21000","timeStamp":"1700000000","confirmations":"42"}
		]}`)
	}))
	defer srv.Close()

	e := NewExplorer(srv.URL+"/", 5*time.Second)
	rows, err := e.AccountTxList(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("AccountTxList failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].Hash != "0x1" || rows[0].Confirmations != "42" {
		t.Errorf("Unexpected row %+v", rows[0])
	}
}

func TestAccountTxList_NoTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	}))
	defer srv.Close()

	e := NewExplorer(srv.URL+"/", 5*time.Second)
	rows, err := e.AccountTxList(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Expected empty history, got error: %v", err)
	}
	if rows != nil {
		t.Errorf("Expected no rows, got %v", rows)
	}
}

func TestAccountTxList_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewExplorer(srv.URL+"/", 5*time.Second)
	if _, err := e.AccountTxList(context.Background(), "0xabc"); err == nil {
		t.Error("Expected error on explorer 502")
	}
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiple: 2.0}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), cfg, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("fatal error stops immediately", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), cfg, func() error {
			attempts++
			return errors.New("rpc error -32602: invalid params")
		})
		if err == nil {
			t.Fatal("Expected error")
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt for a request-shape error, got %d", attempts)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), cfg, func() error {
			attempts++
			return errors.New("rpc status 503")
		})
		if err == nil {
			t.Fatal("Expected error after exhausting attempts")
		}
		if attempts != cfg.MaxAttempts {
			t.Errorf("Expected %d attempts, got %d", cfg.MaxAttempts, attempts)
		}
	})
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry([]ProviderConfig{
		{ID: "chain-1", Name: "One", RPCURL: "http://one.invalid", ExplorerBaseURL: "http://one.invalid/explorer/"},
		{ID: "chain-2", Name: "Two", RPCURL: "http://two.invalid"},
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if p := reg.Get("chain-1"); p == nil || !p.HasExplorer() {
		t.Error("Expected chain-1 with explorer")
	}
	if p := reg.Get("chain-2"); p == nil || p.HasExplorer() {
		t.Error("Expected chain-2 without explorer")
	}
	if reg.Get("missing") != nil {
		t.Error("Expected nil for unknown provider")
	}

	all := reg.All()
	if len(all) != 2 || all[0].ID != "chain-1" || all[1].ID != "chain-2" {
		t.Errorf("Expected configuration order, got %v", all)
	}
}

func TestRegistry_Invalid(t *testing.T) {
	if _, err := NewRegistry([]ProviderConfig{{ID: "", RPCURL: "http://x.invalid"}}, 0); err == nil {
		t.Error("Expected error for missing id")
	}
	if _, err := NewRegistry([]ProviderConfig{
		{ID: "dup", RPCURL: "http://x.invalid"},
		{ID: "dup", RPCURL: "http://y.invalid"},
	}, 0); err == nil {
		t.Error("Expected error for duplicate id")
	}
}
