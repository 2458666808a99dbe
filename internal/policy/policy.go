// Package policy supplies per-user trade settings.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Provider returns per-user scalar settings.
type Provider interface {
	// SlippageBps returns the user's slippage tolerance in basis points.
	SlippageBps(ctx context.Context, userID int64) (int, error)

	// TipLamports returns the user's relay tip.
	TipLamports(ctx context.Context, userID int64) (uint64, error)
}

// Settings are one user's configured values. Slippage is in percent.
type Settings struct {
	SlippagePercent decimal.Decimal
	TipLamports     uint64
}

// PercentToBps converts a percent to basis points, truncating fractions of
// a basis point.
func PercentToBps(percent decimal.Decimal) int {
	return int(percent.Mul(decimal.NewFromInt(100)).IntPart())
}

// Static is a Provider backed by defaults plus per-user overrides.
type Static struct {
	mu        sync.RWMutex
	defaults  Settings
	overrides map[int64]Settings
}

// NewStatic creates a provider returning defaults for unknown users.
func NewStatic(defaults Settings) (*Static, error) {
	if err := validate(defaults); err != nil {
		return nil, err
	}
	return &Static{
		defaults:  defaults,
		overrides: make(map[int64]Settings),
	}, nil
}

var _ Provider = (*Static)(nil)

func validate(s Settings) error {
	if s.SlippagePercent.IsNegative() || s.SlippagePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("slippage percent must be within [0, 100], got %s", s.SlippagePercent)
	}
	return nil
}

// Set overrides settings for one user.
func (p *Static) Set(userID int64, s Settings) error {
	if err := validate(s); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[userID] = s
	return nil
}

func (p *Static) settings(userID int64) Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.overrides[userID]; ok {
		return s
	}
	return p.defaults
}

// SlippageBps returns percent*100 for the user.
func (p *Static) SlippageBps(_ context.Context, userID int64) (int, error) {
	return PercentToBps(p.settings(userID).SlippagePercent), nil
}

// TipLamports returns the user's relay tip.
func (p *Static) TipLamports(_ context.Context, userID int64) (uint64, error) {
	return p.settings(userID).TipLamports, nil
}
