// Package jito submits atomic transaction bundles to a Jito block engine
// and polls their inclusion.
package jito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"solana-trade-engine/internal/jsonrpc"
)

// BundlesPath is the block-engine JSON-RPC path for bundle methods.
const BundlesPath = "/api/v1/bundles"

// DefaultEndpoint is the mainnet block engine.
const DefaultEndpoint = "https://mainnet.block-engine.jito.wtf"

// Relay is the block-engine surface used by Submitter.
type Relay interface {
	// SendBundle submits base58-encoded transactions as one bundle and
	// returns the relay-assigned bundle id.
	SendBundle(ctx context.Context, encoded []string) (string, error)

	// GetBundleStatuses returns the known statuses. Unknown bundles are
	// omitted or nil.
	GetBundleStatuses(ctx context.Context, bundleIDs ...string) ([]*BundleStatus, error)
}

// BundleStatus is one getBundleStatuses value entry.
type BundleStatus struct {
	BundleID           string          `json:"bundle_id"`
	Transactions       []string        `json:"transactions"`
	Slot               uint64          `json:"slot"`
	ConfirmationStatus string          `json:"confirmation_status"`
	Err                json.RawMessage `json:"err"`
}

// Client implements Relay over JSON-RPC 2.0. Each call picks one of the
// configured endpoints at random.
type Client struct {
	endpoints []string
	rpc       *jsonrpc.Client
}

// NewClient creates a relay client. Submissions are never retried, so the
// underlying transport is built without retries.
func NewClient(endpoints []string, opts ...jsonrpc.Option) (*Client, error) {
	var cleaned []string
	for _, e := range endpoints {
		e = strings.TrimSuffix(strings.TrimSpace(e), "/")
		if e != "" {
			cleaned = append(cleaned, e)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("jito: at least one endpoint is required")
	}

	opts = append([]jsonrpc.Option{jsonrpc.WithMaxRetries(0)}, opts...)
	return &Client{
		endpoints: cleaned,
		rpc:       jsonrpc.New(opts...),
	}, nil
}

var _ Relay = (*Client)(nil)

func (c *Client) endpoint() string {
	if len(c.endpoints) == 1 {
		return c.endpoints[0] + BundlesPath
	}
	return c.endpoints[rand.Intn(len(c.endpoints))] + BundlesPath
}

// SendBundle calls sendBundle.
func (c *Client) SendBundle(ctx context.Context, encoded []string) (string, error) {
	if len(encoded) == 0 {
		return "", errors.New("jito: empty bundle")
	}

	var bundleID string
	if err := c.rpc.Call(ctx, c.endpoint(), "sendBundle", []interface{}{encoded}, &bundleID); err != nil {
		return "", err
	}
	if bundleID == "" {
		return "", errors.New("jito: empty bundle id in response")
	}
	return bundleID, nil
}

// GetBundleStatuses calls getBundleStatuses.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs ...string) ([]*BundleStatus, error) {
	if len(bundleIDs) == 0 {
		return nil, nil
	}

	var result struct {
		Value []*BundleStatus `json:"value"`
	}
	if err := c.rpc.Call(ctx, c.endpoint(), "getBundleStatuses", []interface{}{bundleIDs}, &result); err != nil {
		return nil, fmt.Errorf("get bundle statuses: %w", err)
	}
	return result.Value, nil
}
