package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/jsonrpc"
)

// rpcHandler answers JSON-RPC requests by method name.
func rpcHandler(t *testing.T, results map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}
}

func TestHTTPClient_GetTokenBalance(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"getAccountInfo": map[string]interface{}{
			"value": map[string]interface{}{"lamports": 2039280, "owner": solana.TokenProgramID.String()},
		},
		"getTokenAccountBalance": map[string]interface{}{
			"value": map[string]interface{}{"amount": "1000000", "decimals": 6, "uiAmountString": "1"},
		},
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	balance, err := client.GetTokenBalance(context.Background(), owner, mint)
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}
	if balance != 1_000_000 {
		t.Errorf("expected balance 1000000, got %d", balance)
	}
}

func TestHTTPClient_GetTokenBalance_MissingAccount(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"getAccountInfo": map[string]interface{}{"value": nil},
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	balance, err := client.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected 0 for missing account, got %d", balance)
	}
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	want := solana.Hash{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"getLatestBlockhash": map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   map[string]interface{}{"blockhash": want.String(), "lastValidBlockHeight": 200},
		},
	}))
	defer server.Close()

	got, err := NewHTTPClient(server.URL).GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"getSignatureStatuses": map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"slot":               123,
					"confirmations":      nil,
					"err":                nil,
					"confirmationStatus": "finalized",
				},
				nil,
				map[string]interface{}{
					"slot":               124,
					"confirmations":      1,
					"err":                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
					"confirmationStatus": "confirmed",
				},
			},
		},
	}))
	defer server.Close()

	statuses, err := NewHTTPClient(server.URL).GetSignatureStatuses(context.Background(), "a", "b", "c")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}

	if statuses[0] == nil || !statuses[0].Confirmed() || statuses[0].Failed() {
		t.Errorf("first status should be confirmed without error: %+v", statuses[0])
	}
	if statuses[1] != nil {
		t.Errorf("second status should be unknown, got %+v", statuses[1])
	}
	if statuses[2] == nil || !statuses[2].Failed() {
		t.Errorf("third status should be failed: %+v", statuses[2])
	}
}

func TestHTTPClient_GetSignatureStatuses_Empty(t *testing.T) {
	statuses, err := NewHTTPClient("http://unused").GetSignatureStatuses(context.Background())
	if err != nil || statuses != nil {
		t.Fatalf("expected no call for empty input, got %v %v", statuses, err)
	}
}
