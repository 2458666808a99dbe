package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// Commitment is the level a signature must reach before notification.
	Commitment string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		Commitment:        CommitmentConfirmed,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
	}
}

// WSClient implements SignatureSubscriber using gorilla/websocket.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	log      zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to its waiter
	subs   map[int64]*signatureSub
	subsMu sync.Mutex

	// pendingSubs maps request ID to a subscription awaiting its ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// signatureSub is one waiter. id and retired are guarded by subsMu.
type signatureSub struct {
	signature string
	ch        chan SignatureNotification
	delivered chan struct{} // closed once ch is closed
	id        int64
	retired   bool
}

type pendingSub struct {
	sub *signatureSub
	ack chan subscribeAck
}

type subscribeAck struct {
	id  int64
	err error
}

func newSignatureSub(signature string) *signatureSub {
	return &signatureSub{
		signature: signature,
		ch:        make(chan SignatureNotification, 1),
		delivered: make(chan struct{}),
	}
}

// finish closes the waiter's channels. Callers must have removed sub from
// subs under subsMu first, so finish runs at most once.
func (s *signatureSub) finish() {
	close(s.ch)
	close(s.delivered)
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, log zerolog.Logger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		log:         log.With().Str("component", "chain_ws").Logger(),
		subs:        make(map[int64]*signatureSub),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Compile-time interface check.
var _ SignatureSubscriber = (*WSClient)(nil)

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeSignature subscribes to a single signature. The subscription
// lives until its notification arrives or ctx ends; in the latter case it
// is removed and signatureUnsubscribe is sent, and the channel is closed
// without a value.
func (c *WSClient) SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error) {
	sub := newSignatureSub(signature)
	if _, err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	go c.watch(ctx, sub)
	return sub.ch, nil
}

func (c *WSClient) watch(ctx context.Context, sub *signatureSub) {
	select {
	case <-sub.delivered:
	case <-c.done:
	case <-ctx.Done():
		c.retire(sub)
	}
}

// retire drops sub without a notification. A subscription still awaiting
// its id after a resubscribe is marked so the late ack is cancelled.
func (c *WSClient) retire(sub *signatureSub) {
	c.subsMu.Lock()
	if sub.retired {
		c.subsMu.Unlock()
		return
	}
	sub.retired = true
	current, registered := c.subs[sub.id]
	registered = registered && current == sub
	if registered {
		delete(c.subs, sub.id)
	}
	id := sub.id
	c.subsMu.Unlock()

	if registered {
		c.unsubscribe(id)
		sub.finish()
	}
}

// unsubscribe sends signatureUnsubscribe without waiting for the answer.
func (c *WSClient) unsubscribe(subID int64) {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "signatureUnsubscribe",
		Params:  []interface{}{subID},
	}
	if err := c.write(req); err != nil {
		c.log.Debug().Err(err).Int64("subscription", subID).Msg("unsubscribe")
	}
}

func (c *WSClient) write(req wsRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(req)
}

// subscribe sends signatureSubscribe and waits for the subscription id.
// The subscription is registered by the read loop before the id is
// returned, so a notification that follows the ack is never dropped.
func (c *WSClient) subscribe(ctx context.Context, sub *signatureSub) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			sub.signature,
			map[string]string{"commitment": c.config.Commitment},
		},
	}

	pending := &pendingSub{sub: sub, ack: make(chan subscribeAck, 1)}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pending
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(req); err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case ack, ok := <-pending.ack:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		if ack.err != nil {
			return 0, ack.err
		}
		return ack.id, nil
	case <-time.After(c.config.SubscribeTimeout):
		forget()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		delete(c.subs, id)
		sub.finish()
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.ack)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect re-dials and resubscribes every signature still waiting.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.log.Warn().Err(err).Msg("reconnect failed")
		return
	}

	c.resubscribeAll()
}

func (c *WSClient) resubscribeAll() {
	c.subsMu.Lock()
	old := make(map[int64]*signatureSub, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.Unlock()

	for oldID, sub := range old {
		c.subsMu.Lock()
		current, ok := c.subs[oldID]
		if !ok || current != sub {
			c.subsMu.Unlock()
			continue
		}
		delete(c.subs, oldID)
		c.subsMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		_, err := c.subscribe(ctx, sub)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Str("signature", sub.signature).Msg("resubscribe failed")
		}
	}
}

// handleMessage routes a notification by method and a response by request id.
func (c *WSClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.Debug().Err(err).Msg("malformed websocket message")
		return
	}

	if env.Method == "signatureNotification" {
		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err == nil {
			c.handleSignatureNotification(&notif)
		}
		return
	}
	if env.ID == nil {
		return
	}

	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[*env.ID]
	if ok {
		delete(c.pendingSubs, *env.ID)
	}
	c.pendingSubsMu.Unlock()

	if env.Error != nil {
		c.log.Warn().
			Int("code", env.Error.Code).
			Str("message", env.Error.Message).
			Msg("error response")
		if ok {
			p.ack <- subscribeAck{err: fmt.Errorf("subscribe rejected: %s", env.Error.Message)}
		}
		return
	}

	// Unsubscribe answers carry a boolean and fail to decode here.
	var subID int64
	if err := json.Unmarshal(env.Result, &subID); err != nil {
		return
	}

	if !ok {
		// The subscriber gave up before the ack arrived.
		c.unsubscribe(subID)
		return
	}
	c.handleSubscribeResponse(p, subID)
}

func (c *WSClient) handleSubscribeResponse(p *pendingSub, subID int64) {
	c.subsMu.Lock()
	if p.sub.retired {
		c.subsMu.Unlock()
		c.unsubscribe(subID)
		p.sub.finish()
		p.ack <- subscribeAck{err: errors.New("subscription retired")}
		return
	}
	p.sub.id = subID
	c.subs[subID] = p.sub
	c.subsMu.Unlock()

	p.ack <- subscribeAck{id: subID}
}

// handleSignatureNotification delivers and retires the subscription; the
// node auto-cancels signature subscriptions after the first notification.
func (c *WSClient) handleSignatureNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subsMu.Lock()
	sub, ok := c.subs[notif.Params.Subscription]
	if ok {
		delete(c.subs, notif.Params.Subscription)
	}
	c.subsMu.Unlock()

	if !ok {
		return
	}

	out := SignatureNotification{
		Signature: sub.signature,
		Err:       notif.Params.Result.Value.Err,
	}
	if notif.Params.Result.Context != nil {
		out.Slot = notif.Params.Result.Context.Slot
	}

	sub.ch <- out
	sub.finish()
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces in readLoop, which reconnects.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsEnvelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
