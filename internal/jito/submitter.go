package jito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/jsonrpc"
	"solana-trade-engine/internal/observability"
)

// Default polling values.
const (
	DefaultSettleDelay = 5 * time.Second
	DefaultPollCeiling = 30 * time.Second
)

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	Relay       Relay
	SettleDelay time.Duration // wait before the single status poll
	PollCeiling time.Duration // hard upper bound on PollStatus
	Logger      zerolog.Logger
}

// Submitter sends signed transaction sets as atomic bundles.
type Submitter struct {
	relay       Relay
	settleDelay time.Duration
	pollCeiling time.Duration
	log         zerolog.Logger
}

// NewSubmitter creates a Submitter. A zero SettleDelay or PollCeiling
// selects the default; a negative SettleDelay polls immediately.
func NewSubmitter(opts SubmitterOptions) (*Submitter, error) {
	if opts.Relay == nil {
		return nil, errors.New("jito: relay is required")
	}

	s := &Submitter{
		relay:       opts.Relay,
		settleDelay: opts.SettleDelay,
		pollCeiling: opts.PollCeiling,
		log:         opts.Logger.With().Str("component", "bundle_submitter").Logger(),
	}
	if s.settleDelay == 0 {
		s.settleDelay = DefaultSettleDelay
	}
	if s.settleDelay < 0 {
		s.settleDelay = 0
	}
	if s.pollCeiling <= 0 {
		s.pollCeiling = DefaultPollCeiling
	}
	return s, nil
}

// Submit sends every transaction of set in one sendBundle call. A relay
// error payload is returned as *domain.RelayRejectedError with the relay's
// message unchanged.
func (s *Submitter) Submit(ctx context.Context, set domain.SignedTransactionSet) (*domain.BundleResult, error) {
	if len(set) == 0 {
		return nil, fmt.Errorf("empty transaction set: %w", domain.ErrInvalidInput)
	}

	encoded := make([]string, len(set))
	for i, tx := range set {
		encoded[i] = base58.Encode(tx.Raw)
	}

	bundleID, err := s.relay.SendBundle(ctx, encoded)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			observability.RecordBundleSubmission("rejected")
			s.log.Warn().Str("reason", rpcErr.Message).Msg("bundle rejected")
			return nil, &domain.RelayRejectedError{Message: rpcErr.Message}
		}
		observability.RecordBundleSubmission("error")
		return nil, fmt.Errorf("send bundle: %w", err)
	}

	observability.RecordBundleSubmission("accepted")
	s.log.Info().Str("bundle_id", bundleID).Int("transactions", len(set)).Msg("bundle accepted")

	return &domain.BundleResult{BundleID: bundleID}, nil
}

// PollStatus waits the settle delay and then asks the relay once for the
// bundle's status. An unknown bundle, one reporting no transactions, or a
// failed lookup is domain.ErrNotLanded.
func (s *Submitter) PollStatus(ctx context.Context, bundleID string) (*domain.BundleStatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.pollCeiling)
	defer cancel()

	if s.settleDelay > 0 {
		timer := time.NewTimer(s.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	statuses, err := s.relay.GetBundleStatuses(ctx, bundleID)
	if err != nil {
		s.log.Warn().Err(err).Str("bundle_id", bundleID).Msg("bundle status lookup failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrNotLanded, err)
	}

	var found *BundleStatus
	for _, st := range statuses {
		if st != nil && (st.BundleID == bundleID || st.BundleID == "") {
			found = st
			break
		}
	}

	result := toResult(bundleID, found)
	observability.RecordBundleStatus(string(result.Status))

	if result.Status != domain.BundleStatusLanded {
		s.log.Warn().Str("bundle_id", bundleID).Str("status", string(result.Status)).Msg("bundle not landed")
		return result, domain.ErrNotLanded
	}

	s.log.Info().
		Str("bundle_id", bundleID).
		Uint64("slot", result.Slot).
		Str("reference", result.Reference()).
		Msg("bundle landed")
	return result, nil
}

// Await polls bundleID and returns the carried-forward on-chain reference.
func (s *Submitter) Await(ctx context.Context, bundleID string) (string, error) {
	result, err := s.PollStatus(ctx, bundleID)
	if err != nil {
		return "", err
	}
	return result.Reference(), nil
}

func toResult(bundleID string, st *BundleStatus) *domain.BundleStatusResult {
	result := &domain.BundleStatusResult{BundleID: bundleID, Status: domain.BundleStatusFailed}
	if st == nil {
		return result
	}

	result.Slot = st.Slot
	result.Transactions = st.Transactions
	if len(st.Transactions) > 0 && !bundleFailed(st.Err) {
		result.Status = domain.BundleStatusLanded
	}
	return result
}

// bundleFailed reports whether err is anything other than absent, null or
// {"Ok":null}.
func bundleFailed(err []byte) bool {
	switch string(err) {
	case "", "null", `{"Ok":null}`:
		return false
	}
	return true
}
