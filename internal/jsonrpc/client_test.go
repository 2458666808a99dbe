package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_CallDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" || req.Method != "getSlot" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(42),
		})
	}))
	defer server.Close()

	var slot int64
	if err := New().Call(context.Background(), server.URL, "getSlot", nil, &slot); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if slot != 42 {
		t.Errorf("expected 42, got %d", slot)
	}
}

func TestClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(999),
		})
	}))
	defer server.Close()

	client := New(WithMaxRetries(3), WithRetryDelay(10*time.Millisecond))

	var slot int64
	if err := client.Call(context.Background(), server.URL, "getSlot", nil, &slot); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if slot != 999 {
		t.Errorf("expected 999, got %d", slot)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClient_NoRetryWhenDisabled(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := New(WithMaxRetries(0)).Call(context.Background(), server.URL, "sendBundle", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req Request
		json.NewDecoder(r.Body).Decode(&req)

		// Relays answer rejections with a 400 and an error envelope.
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "simulation failed",
			},
		})
	}))
	defer server.Close()

	client := New(WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	err := client.Call(context.Background(), server.URL, "sendBundle", nil, nil)

	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if rpcErr.Message != "simulation failed" {
		t.Errorf("unexpected message %q", rpcErr.Message)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(WithMaxRetries(3), WithRetryDelay(time.Second))
	err := client.Call(ctx, server.URL, "getSlot", nil, nil)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
