package stub

import (
	"context"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solana-trade-engine/internal/jito"
)

// Relay implements jito.Relay for testing. Every accepted bundle is
// answered with Statuses[bundleID] when polled.
type Relay struct {
	mu sync.Mutex

	BundleID string
	SendErr  error
	Statuses map[string]*jito.BundleStatus

	// AutoLand lands every accepted bundle with the first signature of
	// each of its transactions.
	AutoLand bool

	sent [][]string
}

// NewRelay creates a relay that accepts bundles as bundleID.
func NewRelay(bundleID string) *Relay {
	return &Relay{BundleID: bundleID, Statuses: make(map[string]*jito.BundleStatus)}
}

var _ jito.Relay = (*Relay)(nil)

// Land marks the bundle as landed with the given signatures.
func (r *Relay) Land(bundleID string, slot uint64, signatures ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses[bundleID] = &jito.BundleStatus{
		BundleID:           bundleID,
		Transactions:       signatures,
		Slot:               slot,
		ConfirmationStatus: "confirmed",
	}
}

// SendBundle records the bundle and returns BundleID or SendErr.
func (r *Relay) SendBundle(_ context.Context, encoded []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]string(nil), encoded...))
	if r.SendErr != nil {
		return "", r.SendErr
	}

	if r.AutoLand {
		sigs := make([]string, len(encoded))
		for i, e := range encoded {
			sig, err := firstSignature(e)
			if err != nil {
				return "", err
			}
			sigs[i] = sig
		}
		r.Statuses[r.BundleID] = &jito.BundleStatus{
			BundleID:           r.BundleID,
			Transactions:       sigs,
			Slot:               1,
			ConfirmationStatus: "confirmed",
		}
	}
	return r.BundleID, nil
}

// GetBundleStatuses returns the configured statuses.
func (r *Relay) GetBundleStatuses(_ context.Context, bundleIDs ...string) ([]*jito.BundleStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*jito.BundleStatus
	for _, id := range bundleIDs {
		if st, ok := r.Statuses[id]; ok {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Sent returns the encoded transactions of every submitted bundle.
func (r *Relay) Sent() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.sent...)
}

func firstSignature(encoded string) (string, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return "", err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", err
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("unsigned transaction")
	}
	return tx.Signatures[0].String(), nil
}
