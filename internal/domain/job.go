package domain

import "time"

// JobState is a confirmation job's position in its state machine.
type JobState string

const (
	JobScheduled      JobState = "scheduled"
	JobRunning        JobState = "running"
	JobRetryScheduled JobState = "retry-scheduled"
	JobConfirmed      JobState = "confirmed"
	JobAbandoned      JobState = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobConfirmed || s == JobAbandoned
}

// RetryPolicy is a fixed-delay backoff with a bounded attempt count.
type RetryPolicy struct {
	Delay       time.Duration `json:"delay"`
	Backoff     time.Duration `json:"backoff"`
	MaxAttempts int           `json:"max_attempts"`
}

// ConfirmationJob is delayed work that verifies a trade landed on-chain.
type ConfirmationJob struct {
	ID             string      `json:"id"`
	TxID           string      `json:"tx_id"`
	UserID         int64       `json:"user_id"`
	ReferralCredit uint64      `json:"referral_credit"`
	NotBefore      time.Time   `json:"not_before"`
	Attempts       int         `json:"attempts"`
	State          JobState    `json:"state"`
	Policy         RetryPolicy `json:"policy"`
}

// Exhausted reports whether the job has used all its attempts.
func (j *ConfirmationJob) Exhausted() bool {
	return j.Policy.MaxAttempts > 0 && j.Attempts >= j.Policy.MaxAttempts
}
