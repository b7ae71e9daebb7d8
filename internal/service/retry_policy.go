package service

import (
	"time"

	config "github.com/maheshrc27/postlater/configs"
	"github.com/maheshrc27/postlater/internal/models"
)

// RetryPolicy decides what a failed attempt does to an item.
type RetryPolicy struct {
	MaxFailures int
	RetryWait   time.Duration
}

func NewRetryPolicy(cfg config.Config) RetryPolicy {
	return RetryPolicy{
		MaxFailures: cfg.MaxPostFailures,
		RetryWait:   cfg.PostFailureRetryWait,
	}
}

// Apply records a failed attempt at now. The item fails for good on its
// MaxFailures-th failure; before that it moves to error, with a next retry time
// only when scheduleRetry is set.
func (p RetryPolicy) Apply(s *models.SendableState, now time.Time, scheduleRetry bool) {
	s.LastAttemptAt = &now
	exhausted := s.NumFailures >= p.MaxFailures-1
	s.NumFailures++

	if exhausted {
		s.Status = models.StatusFailed
		s.NextRetry = nil
		return
	}

	s.Status = models.StatusError
	s.NextRetry = nil
	if scheduleRetry {
		next := now.Add(p.RetryWait)
		s.NextRetry = &next
	}
}

// ApplyThread records a failed thread post. The post never gets its own retry
// time; the thread follows the post into failed, otherwise waits RetryWait.
func (p RetryPolicy) ApplyThread(thread, post *models.SendableState, now time.Time) {
	p.Apply(post, now, false)

	thread.LastAttemptAt = &now
	thread.NumFailures++
	if post.Status == models.StatusFailed {
		thread.Status = models.StatusFailed
		thread.NextRetry = nil
		return
	}

	thread.Status = models.StatusError
	next := now.Add(p.RetryWait)
	thread.NextRetry = &next
}
