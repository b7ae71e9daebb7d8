package models

import "time"

type AttemptOutcome string

const (
	OutcomeComplete         AttemptOutcome = "complete"
	OutcomeQueued           AttemptOutcome = "queued"
	OutcomeStarted          AttemptOutcome = "started"
	OutcomeRetry            AttemptOutcome = "retry"
	OutcomeFailed           AttemptOutcome = "failed"
	OutcomeNotAuthenticated AttemptOutcome = "not_authenticated"
	OutcomeSkipped          AttemptOutcome = "skipped"
	OutcomeBoostScheduled   AttemptOutcome = "boost_scheduled"
)

// AttemptHistory is one dispatch attempt against a remote account.
type AttemptHistory struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	ItemKind     ItemKind       `db:"item_kind" json:"item_kind"`
	ItemID       int64          `db:"item_id" json:"item_id"`
	AccountID    int64          `db:"account_id" json:"account_id"`
	Outcome      AttemptOutcome `db:"outcome" json:"outcome"`
	ErrorMessage string         `db:"error_message" json:"error_message"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
