package models

import "time"

const DefaultSecondsBetweenPosts = 60

// Thread is delivered one post at a time, each replying to the previous one.
type Thread struct {
	ID                  int64      `db:"id" json:"id"`
	UserID              int64      `db:"user_id" json:"user_id"`
	AccountID           int64      `db:"account_id" json:"account_id"`
	SecondsBetweenPosts int        `db:"seconds_between_posts" json:"seconds_between_posts"`
	StartedAt           *time.Time `db:"started_at" json:"started_at,omitempty"`
	NextPublish         *time.Time `db:"next_publish" json:"next_publish,omitempty"`
	StartRemoteID       *string    `db:"start_remote_id" json:"start_remote_id,omitempty"`
	NextIDToReply       *string    `db:"next_id_to_reply" json:"next_id_to_reply,omitempty"`
	EndRemoteID         *string    `db:"end_remote_id" json:"end_remote_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
	SendableState
}

func (t *Thread) Interval() time.Duration {
	return time.Duration(t.SecondsBetweenPosts) * time.Second
}
