package chain

import "context"

// SignatureSubscriber waits for signature notifications over websocket.
type SignatureSubscriber interface {
	// SubscribeSignature delivers exactly one notification once the signature
	// reaches the client's commitment, then closes the subscription. When ctx
	// ends first the subscription is cancelled and the channel closes empty.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is a signatureNotification payload.
type SignatureNotification struct {
	Signature string
	Slot      uint64
	Err       interface{}
}
