package domain

import "time"

// TradeStage labels one step of a trade's lifecycle in the audit log.
type TradeStage string

const (
	StagePending   TradeStage = "pending"
	StageSubmitted TradeStage = "submitted"
	StageRejected  TradeStage = "rejected"
	StageLanded    TradeStage = "landed"
	StageNotLanded TradeStage = "not_landed"
	StageConfirmed TradeStage = "confirmed"
	StageAbandoned TradeStage = "abandoned"
)

// TradeEvent is an append-only audit record of a lifecycle step.
type TradeEvent struct {
	TradeID    string
	TxID       string
	BundleID   string
	UserID     int64
	Mint       string
	Side       Side
	Stage      TradeStage
	Detail     string
	OccurredAt time.Time
}
