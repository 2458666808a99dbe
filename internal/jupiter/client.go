package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
)

// DefaultBaseURL is the public Jupiter API host.
const DefaultBaseURL = "https://quote-api.jup.ag"

// Default configuration values.
const (
	DefaultTimeout = 15 * time.Second
)

// Client implements Router over resty.
type Client struct {
	client *resty.Client
}

// Option configures Client.
type Option func(*resty.Client)

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithHeader sets a header sent with every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *resty.Client) {
		c.SetHeader(key, value)
	}
}

// NewClient creates a Jupiter client for baseURL. Quotes are time-sensitive,
// so the client never retries.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	for _, opt := range opts {
		opt(client)
	}

	return &Client{client: client}
}

// Compile-time interface check.
var _ Router = (*Client)(nil)

// quoteResponse holds the fields of /v6/quote the pipeline reads; the rest of
// the body is carried opaquely as the route descriptor.
type quoteResponse struct {
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	SlippageBps int    `json:"slippageBps"`
}

// GetQuote calls GET /v6/quote.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (quote *domain.Quote, err error) {
	start := time.Now()
	defer func() {
		observability.RecordQuote("quote", time.Since(start).Seconds(), err)
	}()

	if amount == 0 {
		return nil, &domain.QuoteError{Reason: "amount must be positive"}
	}
	if slippageBps < 0 {
		return nil, &domain.QuoteError{Reason: "slippage must not be negative"}
	}
	if inputMint == "" || outputMint == "" {
		return nil, &domain.QuoteError{Reason: "input and output mint are required"}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   inputMint,
			"outputMint":  outputMint,
			"amount":      strconv.FormatUint(amount, 10),
			"slippageBps": strconv.Itoa(slippageBps),
		}).
		Get("/v6/quote")
	if err != nil {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("request: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode(), abbreviate(resp.Body()))}
	}

	body := resp.Body()
	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("malformed response: %v", err)}
	}

	inAmount, err := parseAmount(parsed.InAmount)
	if err != nil {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("malformed inAmount: %v", err)}
	}
	outAmount, err := parseAmount(parsed.OutAmount)
	if err != nil {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("malformed outAmount: %v", err)}
	}

	route := make(json.RawMessage, len(body))
	copy(route, body)

	return &domain.Quote{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		InAmount:    inAmount,
		OutAmount:   outAmount,
		SlippageBps: slippageBps,
		Route:       route,
	}, nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("zero amount")
	}
	return v, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage    `json:"quoteResponse"`
	UserPublicKey             string             `json:"userPublicKey"`
	WrapAndUnwrapSol          bool               `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool               `json:"dynamicComputeUnitLimit"`
	AsLegacyTransaction       bool               `json:"asLegacyTransaction"`
	SkipUserAccountsRPCCalls  bool               `json:"skipUserAccountsRpcCalls"`
	PrioritizationFeeLamports *prioritizationFee `json:"prioritizationFeeLamports,omitempty"`
}

type prioritizationFee struct {
	JitoTipLamports uint64 `json:"jitoTipLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// GetSwapTransaction calls POST /v6/swap and returns the decoded transaction.
func (c *Client) GetSwapTransaction(ctx context.Context, quote *domain.Quote, userPublicKey string, tipLamports uint64) (raw []byte, err error) {
	start := time.Now()
	defer func() {
		observability.RecordQuote("swap", time.Since(start).Seconds(), err)
	}()

	if quote == nil || len(quote.Route) == 0 {
		return nil, &domain.QuoteError{Reason: "swap build: missing route"}
	}

	req := swapRequest{
		QuoteResponse:            quote.Route,
		UserPublicKey:            userPublicKey,
		WrapAndUnwrapSol:         true,
		DynamicComputeUnitLimit:  true,
		AsLegacyTransaction:      true,
		SkipUserAccountsRPCCalls: false,
	}
	if tipLamports > 0 {
		req.PrioritizationFeeLamports = &prioritizationFee{JitoTipLamports: tipLamports}
	}

	var out swapResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post("/v6/swap")
	if err != nil {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("swap build request: %v", err)}
	}
	if !resp.IsSuccess() {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("swap build status %d: %s", resp.StatusCode(), abbreviate(resp.Body()))}
	}
	if out.SwapTransaction == "" {
		return nil, &domain.QuoteError{Reason: "swap build: empty transaction"}
	}

	raw, err = base64.StdEncoding.DecodeString(out.SwapTransaction)
	if err != nil {
		return nil, &domain.QuoteError{Reason: fmt.Sprintf("swap build: decode transaction: %v", err)}
	}
	return raw, nil
}

// abbreviate trims an error body for inclusion in a reason string.
func abbreviate(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
