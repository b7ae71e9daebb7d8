package models

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusStarted  Status = "started"
	StatusError    Status = "error"
	StatusFailed   Status = "failed"
	StatusQueued   Status = "queued"
	StatusComplete Status = "complete"
)

// IsTerminal reports whether no further send attempts may be made.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusComplete
}

type ItemKind string

const (
	KindPost   ItemKind = "post"
	KindThread ItemKind = "thread"
	KindBoost  ItemKind = "boost"
)

// SendableState is the delivery bookkeeping shared by posts, threads and boosts.
type SendableState struct {
	Status        Status     `db:"status" json:"status"`
	SendAt        time.Time  `db:"send_at" json:"send_at"`
	NumFailures   int        `db:"num_failures" json:"num_failures"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextRetry     *time.Time `db:"next_retry" json:"next_retry,omitempty"`
	RemoteID      *string    `db:"remote_id" json:"remote_id,omitempty"`
	RemoteURL     *string    `db:"remote_url" json:"remote_url,omitempty"`
	QueuedAt      *time.Time `db:"queued_at" json:"queued_at,omitempty"`
	RemoteQueueID *string    `db:"remote_queue_id" json:"remote_queue_id,omitempty"`
	FinishedAt    *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	LockToken     *string    `db:"lock_token" json:"-"`
	LockedUntil   *time.Time `db:"locked_until" json:"-"`
}

// MarkComplete records a published item.
func (s *SendableState) MarkComplete(now time.Time, remoteID, remoteURL string) {
	s.Status = StatusComplete
	s.LastAttemptAt = &now
	s.RemoteID = &remoteID
	if remoteURL != "" {
		s.RemoteURL = &remoteURL
	}
	s.NextRetry = nil
	s.FinishedAt = &now
}

// MarkQueued records an item accepted for server-side scheduling but not yet published.
func (s *SendableState) MarkQueued(now time.Time, remoteQueueID string) {
	s.Status = StatusQueued
	s.LastAttemptAt = &now
	s.RemoteQueueID = &remoteQueueID
	s.QueuedAt = &now
	s.NextRetry = nil
}

// Leased reports whether a lease on the item is still live at now.
func (s *SendableState) Leased(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
