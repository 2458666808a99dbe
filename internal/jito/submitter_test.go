package jito

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/jsonrpc"
)

type rpcRequest struct {
	Method string            `json:"method"`
	ID     uint64            `json:"id"`
	Params []json.RawMessage `json:"params"`
}

// relayServer answers sendBundle and getBundleStatuses the way a block
// engine does. A non-empty reject message turns sendBundle into an error.
func relayServer(t *testing.T, reject string, statusValue interface{}, sendCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != BundlesPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "sendBundle":
			if sendCalls != nil {
				sendCalls.Add(1)
			}
			var txs []string
			if err := json.Unmarshal(req.Params[0], &txs); err != nil {
				t.Fatalf("decode bundle: %v", err)
			}
			for _, tx := range txs {
				if _, err := base58.Decode(tx); err != nil {
					t.Errorf("transaction is not base58: %v", err)
				}
			}
			if reject != "" {
				w.WriteHeader(http.StatusBadRequest)
				resp["error"] = map[string]interface{}{"code": -32602, "message": reject}
			} else {
				resp["result"] = "bundle-1"
			}
		case "getBundleStatuses":
			resp["result"] = map[string]interface{}{
				"context": map[string]interface{}{"slot": 300},
				"value":   statusValue,
			}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestSubmitter(t *testing.T, url string) *Submitter {
	t.Helper()
	client, err := NewClient([]string{url}, jsonrpc.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	s, err := NewSubmitter(SubmitterOptions{
		Relay:       client,
		SettleDelay: -1,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	return s
}

func testSet() domain.SignedTransactionSet {
	return domain.SignedTransactionSet{
		{Signature: "swapSig", Raw: []byte{1, 2, 3}},
		{Signature: "feeSig", Raw: []byte{4, 5, 6}},
	}
}

func TestSubmitter_SubmitAndAwait(t *testing.T) {
	server := relayServer(t, "", []interface{}{
		map[string]interface{}{
			"bundle_id":           "bundle-1",
			"transactions":        []string{"swapSig", "feeSig"},
			"slot":                299,
			"confirmation_status": "confirmed",
			"err":                 map[string]interface{}{"Ok": nil},
		},
	}, nil)
	defer server.Close()

	s := newTestSubmitter(t, server.URL)

	res, err := s.Submit(context.Background(), testSet())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.BundleID != "bundle-1" {
		t.Errorf("expected bundle-1, got %s", res.BundleID)
	}

	ref, err := s.Await(context.Background(), res.BundleID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if ref != "feeSig" {
		t.Errorf("expected the second signature to be carried forward, got %s", ref)
	}
}

func TestSubmitter_RelayRejectedVerbatim(t *testing.T) {
	var calls atomic.Int32
	server := relayServer(t, "bundle simulation failed: insufficient funds", nil, &calls)
	defer server.Close()

	_, err := newTestSubmitter(t, server.URL).Submit(context.Background(), testSet())

	var rejected *domain.RelayRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RelayRejectedError, got %T (%v)", err, err)
	}
	if rejected.Message != "bundle simulation failed: insufficient funds" {
		t.Errorf("message not verbatim: %q", rejected.Message)
	}
	if calls.Load() != 1 {
		t.Errorf("rejections must not be retried, got %d calls", calls.Load())
	}
}

func TestSubmitter_NotLanded(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"unknown bundle", []interface{}{}},
		{"empty transactions", []interface{}{
			map[string]interface{}{"bundle_id": "bundle-1", "transactions": []string{}, "slot": 1},
		}},
		{"bundle error", []interface{}{
			map[string]interface{}{
				"bundle_id":    "bundle-1",
				"transactions": []string{"a", "b"},
				"err":          map[string]interface{}{"Err": "failed"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := relayServer(t, "", tt.value, nil)
			defer server.Close()

			ref, err := newTestSubmitter(t, server.URL).Await(context.Background(), "bundle-1")
			if !errors.Is(err, domain.ErrNotLanded) {
				t.Fatalf("expected ErrNotLanded, got %v", err)
			}
			if ref != "" {
				t.Errorf("expected no reference, got %s", ref)
			}
		})
	}
}

func TestSubmitter_StatusLookupFailureIsNotLanded(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient([]string{url}, jsonrpc.WithMaxRetries(0), jsonrpc.WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	s, _ := NewSubmitter(SubmitterOptions{Relay: client, SettleDelay: -1, Logger: zerolog.Nop()})

	status, err := s.PollStatus(context.Background(), "bundle-1")
	if !errors.Is(err, domain.ErrNotLanded) {
		t.Fatalf("expected ErrNotLanded, got %v", err)
	}
	if status != nil {
		t.Errorf("expected no status, got %+v", status)
	}
}

func TestSubmitter_SingleTransactionReference(t *testing.T) {
	server := relayServer(t, "", []interface{}{
		map[string]interface{}{"bundle_id": "bundle-1", "transactions": []string{"only"}},
	}, nil)
	defer server.Close()

	ref, err := newTestSubmitter(t, server.URL).Await(context.Background(), "bundle-1")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if ref != "only" {
		t.Errorf("expected only, got %s", ref)
	}
}

func TestSubmitter_PollHonorsCeiling(t *testing.T) {
	client, _ := NewClient([]string{"http://unused"})
	s, _ := NewSubmitter(SubmitterOptions{
		Relay:       client,
		SettleDelay: time.Hour,
		PollCeiling: 20 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})

	start := time.Now()
	_, err := s.PollStatus(context.Background(), "bundle-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("poll ignored its ceiling")
	}
}

func TestSubmitter_EmptySet(t *testing.T) {
	client, _ := NewClient([]string{"http://unused"})
	s, _ := NewSubmitter(SubmitterOptions{Relay: client, Logger: zerolog.Nop()})

	if _, err := s.Submit(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewClient([]string{" ", ""}); err == nil {
		t.Error("expected error for empty endpoint list")
	}
}

func TestClient_RandomEndpoint(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	handler := func(hits *atomic.Int32) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			var req rpcRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "b"})
		}
	}
	a := httptest.NewServer(handler(&hitsA))
	defer a.Close()
	b := httptest.NewServer(handler(&hitsB))
	defer b.Close()

	client, err := NewClient([]string{a.URL + "/", b.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	for i := 0; i < 64; i++ {
		if _, err := client.SendBundle(context.Background(), []string{"x"}); err != nil {
			t.Fatalf("SendBundle: %v", err)
		}
	}
	if hitsA.Load() == 0 || hitsB.Load() == 0 {
		t.Errorf("expected both endpoints used, got %d and %d", hitsA.Load(), hitsB.Load())
	}
}
