package domain

// SignedTransaction is one wire-encoded, fully signed transaction.
type SignedTransaction struct {
	Signature string // first signature, base58
	Raw       []byte // binary wire format
}

// SignedTransactionSet is the ordered set submitted as one atomic bundle.
// The swap is always first and the fee transfer second.
type SignedTransactionSet []SignedTransaction

// Raw returns the wire bytes of every transaction in order.
func (s SignedTransactionSet) Raw() [][]byte {
	out := make([][]byte, len(s))
	for i, tx := range s {
		out[i] = tx.Raw
	}
	return out
}

// Reference returns the signature carried forward as the trade's on-chain
// reference: the second element when two are bundled, otherwise the first.
func (s SignedTransactionSet) Reference() string {
	switch len(s) {
	case 0:
		return ""
	case 1:
		return s[0].Signature
	default:
		return s[1].Signature
	}
}

// BundleResult is what the relay returned for a submission.
type BundleResult struct {
	BundleID string
}

// BundleStatus is the inclusion state reported by the relay.
type BundleStatus string

const (
	BundleStatusPending BundleStatus = "pending"
	BundleStatusLanded  BundleStatus = "landed"
	BundleStatusFailed  BundleStatus = "failed"
)

// BundleStatusResult holds one getBundleStatuses entry.
type BundleStatusResult struct {
	BundleID     string
	Status       BundleStatus
	Slot         uint64
	Transactions []string // signatures in bundle order
}

// Reference returns the carried-forward signature from a landed bundle.
func (r *BundleStatusResult) Reference() string {
	switch len(r.Transactions) {
	case 0:
		return ""
	case 1:
		return r.Transactions[0]
	default:
		return r.Transactions[1]
	}
}

// Assembly is the common result of building a buy or a sell.
type Assembly struct {
	Side           Side
	Transactions   SignedTransactionSet
	ReferralCredit uint64
	Fee            uint64
	Trade          *Trade
}
