package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postlater/configs"
	"github.com/maheshrc27/postlater/internal/adapter"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/telemetry"
)

// ThreadSequencer publishes a thread one post per call, each replying to the last.
type ThreadSequencer interface {
	SendNextPost(ctx context.Context, threadID int64) (*Outcome, error)
}

type threadSequencer struct {
	attempter
	tr repository.ThreadRepository
	pr repository.PostRepository
}

func NewThreadSequencer(
	c config.Config,
	tr repository.ThreadRepository,
	pr repository.PostRepository,
	ar repository.AccountRepository,
	mr repository.MediaAttachmentRepository,
	hr repository.AttemptHistoryRepository,
	adapters AdapterResolver,
	store MediaStore) ThreadSequencer {
	return &threadSequencer{
		attempter: newAttempter(c, ar, mr, hr, adapters, store),
		tr:        tr,
		pr:        pr,
	}
}

// nextThreadPost returns the first post in order that is not yet complete, and
// whether any unfinished post follows it. Only pending and errored posts may be sent.
func nextThreadPost(posts []*models.Post) (*models.Post, bool, error) {
	for i, p := range posts {
		if p.Status == models.StatusComplete {
			continue
		}
		if p.Status != models.StatusPending && p.Status != models.StatusError {
			return nil, false, fmt.Errorf("post %d is %s: %w", p.ID, p.Status, ErrEmptyThread)
		}
		for _, rest := range posts[i+1:] {
			if rest.Status != models.StatusComplete {
				return p, true, nil
			}
		}
		return p, false, nil
	}
	return nil, false, ErrEmptyThread
}

func (s *threadSequencer) SendNextPost(ctx context.Context, threadID int64) (*Outcome, error) {
	token, now, until, err := s.lease()
	if err != nil {
		return nil, err
	}

	thread, err := s.tr.Claim(ctx, threadID, token, until, now)
	if err != nil {
		return nil, claimError(models.KindThread, threadID, err)
	}

	if thread.Status.IsTerminal() {
		logRelease(s.tr.Release(ctx, thread.ID, token))
		err := fmt.Errorf("thread %d: %w", thread.ID, ErrThreadAlreadyComplete)
		telemetry.CaptureItemError(err, string(models.KindThread), thread.ID)
		return nil, err
	}

	posts, err := s.pr.ListByThreadID(ctx, thread.ID)
	if err != nil {
		logRelease(s.tr.Release(ctx, thread.ID, token))
		return nil, err
	}

	post, more, err := nextThreadPost(posts)
	if err != nil {
		logRelease(s.tr.Release(ctx, thread.ID, token))
		err = fmt.Errorf("thread %d: %w", thread.ID, err)
		telemetry.CaptureItemError(err, string(models.KindThread), thread.ID)
		return nil, err
	}

	account, ad, err := s.resolve(ctx, thread.AccountID)
	if err != nil {
		logRelease(s.tr.Release(ctx, thread.ID, token))
		telemetry.CaptureItemError(err, string(models.KindThread), thread.ID)
		return nil, err
	}

	var result models.AttemptOutcome
	var cause error
	if !ready(account, ad) {
		cause = adapter.ErrNotAuthenticated
		thread.LastAttemptAt = &now
		post.LastAttemptAt = &now
		result = models.OutcomeNotAuthenticated
	} else {
		if post.Attachments, err = s.mr.ListByPostID(ctx, post.ID); err != nil {
			logRelease(s.tr.Release(ctx, thread.ID, token))
			return nil, err
		}

		res, sendErr := s.sendPost(ctx, ad, post, models.StringValue(thread.NextIDToReply), nil)
		cause = sendErr
		if sendErr != nil {
			result = s.threadFailure(thread, post, sendErr, now)
		} else {
			result = threadSuccess(thread, post, res, more, now)
		}
	}

	if err := s.tr.SaveProgress(ctx, thread, post, token); err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("thread %d post %d: %s", thread.ID, post.ID, result))
	out := s.finish(ctx, models.KindThread, thread.ID, thread.UserID, thread.AccountID, &thread.SendableState, result, cause)
	out.PostID = post.ID
	return out, nil
}

// threadSuccess chains the published post into the thread. A reply the network
// queued instead of publishing still carries the id later replies attach to.
func threadSuccess(thread *models.Thread, post *models.Post, res adapter.PostResult, more bool, now time.Time) models.AttemptOutcome {
	post.MarkComplete(now, res.RemoteID, res.RemoteURL)

	remoteID := res.RemoteID
	if thread.StartRemoteID == nil {
		thread.StartRemoteID = &remoteID
		thread.StartedAt = &now
	}
	thread.NextIDToReply = &remoteID
	next := now.Add(thread.Interval())
	thread.NextPublish = &next
	thread.LastAttemptAt = &now
	thread.NextRetry = nil

	if more {
		thread.Status = models.StatusStarted
		return models.OutcomeStarted
	}

	thread.Status = models.StatusComplete
	thread.EndRemoteID = &remoteID
	thread.FinishedAt = &now
	return models.OutcomeComplete
}

func (s *threadSequencer) threadFailure(thread *models.Thread, post *models.Post, err error, now time.Time) models.AttemptOutcome {
	if errors.Is(err, adapter.ErrNotAuthenticated) {
		thread.LastAttemptAt = &now
		post.LastAttemptAt = &now
		return models.OutcomeNotAuthenticated
	}

	s.retry.ApplyThread(&thread.SendableState, &post.SendableState, now)
	failPendingMedia(post)
	if post.Status == models.StatusFailed {
		return models.OutcomeFailed
	}
	return models.OutcomeRetry
}
