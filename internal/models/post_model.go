package models

import "time"

type Post struct {
	ID                 int64              `db:"id" json:"id"`
	UserID             int64              `db:"user_id" json:"user_id"`
	AccountID          int64              `db:"account_id" json:"account_id"`
	ThreadID           *int64             `db:"thread_id" json:"thread_id,omitempty"`
	ThreadOrdering     int                `db:"thread_ordering" json:"thread_ordering"`
	Content            string             `db:"content" json:"content"`
	AutoBoostHours     *int               `db:"auto_boost_hours" json:"auto_boost_hours,omitempty"`
	AutoBoostCompleted bool               `db:"auto_boost_completed" json:"auto_boost_completed"`
	Attachments        []*MediaAttachment `db:"-" json:"attachments,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
	SendableState
}

// InThread reports whether the post is sequenced by a thread rather than its own send_at.
func (p *Post) InThread() bool {
	return p.ThreadID != nil
}

// AutoBoostDue reports whether a completed post's auto boost window has opened.
func (p *Post) AutoBoostDue(now time.Time) bool {
	if p.AutoBoostHours == nil || p.AutoBoostCompleted || p.FinishedAt == nil {
		return false
	}
	due := p.FinishedAt.Add(time.Duration(*p.AutoBoostHours) * time.Hour)
	return !due.After(now)
}

type Boost struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	TargetURL string    `db:"target_url" json:"target_url"`
	PostID    *int64    `db:"post_id" json:"post_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	SendableState
}
