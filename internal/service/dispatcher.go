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

// Dispatcher performs one delivery attempt for a standalone post or a boost.
// Adapter failures come back as an Outcome; returned errors mean nothing was attempted
// or the result could not be stored.
type Dispatcher interface {
	DispatchPost(ctx context.Context, postID int64) (*Outcome, error)
	DispatchBoost(ctx context.Context, boostID int64) (*Outcome, error)
	FollowUpPost(ctx context.Context, postID int64) (*Outcome, error)
	AutoBoostPost(ctx context.Context, postID int64) (*Outcome, error)
	ScheduleRetry(ctx context.Context, kind models.ItemKind, id int64) (*Outcome, error)
}

type dispatcher struct {
	attempter
	pr repository.PostRepository
	tr repository.ThreadRepository
	br repository.BoostRepository
}

func NewDispatcher(
	c config.Config,
	pr repository.PostRepository,
	tr repository.ThreadRepository,
	br repository.BoostRepository,
	ar repository.AccountRepository,
	mr repository.MediaAttachmentRepository,
	hr repository.AttemptHistoryRepository,
	adapters AdapterResolver,
	store MediaStore) Dispatcher {
	return &dispatcher{
		attempter: newAttempter(c, ar, mr, hr, adapters, store),
		pr:        pr,
		tr:        tr,
		br:        br,
	}
}

func checkPostDispatchable(post *models.Post) error {
	switch {
	case post.InThread():
		return fmt.Errorf("post %d: %w", post.ID, ErrThreadedPost)
	case post.Status.IsTerminal():
		return fmt.Errorf("post %d: %w", post.ID, ErrTerminalItem)
	case post.Status == models.StatusQueued:
		return fmt.Errorf("post %d: %w", post.ID, ErrAlreadyQueued)
	}
	return nil
}

func (d *dispatcher) DispatchPost(ctx context.Context, postID int64) (*Outcome, error) {
	token, now, until, err := d.lease()
	if err != nil {
		return nil, err
	}

	post, err := d.pr.Claim(ctx, postID, token, until, now)
	if err != nil {
		return nil, claimError(models.KindPost, postID, err)
	}

	if err := checkPostDispatchable(post); err != nil {
		logRelease(d.pr.Release(ctx, post.ID, token))
		return nil, err
	}

	account, ad, err := d.resolve(ctx, post.AccountID)
	if err != nil {
		logRelease(d.pr.Release(ctx, post.ID, token))
		telemetry.CaptureItemError(err, string(models.KindPost), post.ID)
		return nil, err
	}

	var result models.AttemptOutcome
	var cause error
	if !ready(account, ad) {
		cause = adapter.ErrNotAuthenticated
		result = d.applyFailure(&post.SendableState, now, cause, true)
	} else {
		if post.Attachments, err = d.mr.ListByPostID(ctx, post.ID); err != nil {
			logRelease(d.pr.Release(ctx, post.ID, token))
			return nil, err
		}

		// Posts dispatched before their time are handed to the network to schedule.
		var scheduleAt *time.Time
		if post.SendAt.After(now) {
			at := post.SendAt
			scheduleAt = &at
		}

		res, sendErr := d.sendPost(ctx, ad, post, "", scheduleAt)
		cause = sendErr
		switch {
		case sendErr != nil:
			result = d.applyFailure(&post.SendableState, now, sendErr, true)
			failPendingMedia(post)
		case res.Queued():
			post.MarkQueued(now, res.RemoteID)
			result = models.OutcomeQueued
		default:
			post.MarkComplete(now, res.RemoteID, res.RemoteURL)
			result = models.OutcomeComplete
		}
	}

	if err := d.pr.Save(ctx, post, token); err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("post %d dispatched: %s", post.ID, result))
	return d.finish(ctx, models.KindPost, post.ID, post.UserID, post.AccountID, &post.SendableState, result, cause), nil
}

func (d *dispatcher) DispatchBoost(ctx context.Context, boostID int64) (*Outcome, error) {
	token, now, until, err := d.lease()
	if err != nil {
		return nil, err
	}

	boost, err := d.br.Claim(ctx, boostID, token, until, now)
	if err != nil {
		return nil, claimError(models.KindBoost, boostID, err)
	}

	if boost.Status.IsTerminal() {
		logRelease(d.br.Release(ctx, boost.ID, token))
		return nil, fmt.Errorf("boost %d: %w", boost.ID, ErrTerminalItem)
	}

	account, ad, err := d.resolve(ctx, boost.AccountID)
	if err != nil {
		logRelease(d.br.Release(ctx, boost.ID, token))
		telemetry.CaptureItemError(err, string(models.KindBoost), boost.ID)
		return nil, err
	}

	var result models.AttemptOutcome
	var cause error
	if !ready(account, ad) {
		cause = adapter.ErrNotAuthenticated
		result = d.applyFailure(&boost.SendableState, now, cause, true)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		remoteID, sendErr := ad.SendBoost(callCtx, boost.TargetURL)
		cancel()

		if sendErr != nil {
			slog.Info(fmt.Sprintf("sending boost %d: %s", boost.ID, sendErr.Error()))
			cause = sendErr
			var bf *adapter.BoostSendFailure
			if !errors.As(sendErr, &bf) && !errors.Is(sendErr, adapter.ErrNotAuthenticated) {
				cause = &adapter.BoostSendFailure{Err: sendErr}
			}
			result = d.applyFailure(&boost.SendableState, now, cause, true)
		} else {
			boost.MarkComplete(now, remoteID, "")
			result = models.OutcomeComplete
		}
	}

	if err := d.br.Save(ctx, boost, token); err != nil {
		return nil, err
	}
	return d.finish(ctx, models.KindBoost, boost.ID, boost.UserID, boost.AccountID, &boost.SendableState, result, cause), nil
}

// FollowUpPost asks the network whether a queued post has been published yet.
// Adapters without a queue check leave the post queued.
func (d *dispatcher) FollowUpPost(ctx context.Context, postID int64) (*Outcome, error) {
	token, now, until, err := d.lease()
	if err != nil {
		return nil, err
	}

	post, err := d.pr.Claim(ctx, postID, token, until, now)
	if err != nil {
		return nil, claimError(models.KindPost, postID, err)
	}

	if post.Status != models.StatusQueued || post.RemoteQueueID == nil {
		logRelease(d.pr.Release(ctx, post.ID, token))
		return nil, fmt.Errorf("post %d: %w", post.ID, ErrNotQueued)
	}

	account, ad, err := d.resolve(ctx, post.AccountID)
	if err != nil {
		logRelease(d.pr.Release(ctx, post.ID, token))
		return nil, err
	}

	checker, ok := ad.(adapter.QueueChecker)
	if !ok || !ready(account, ad) {
		logRelease(d.pr.Release(ctx, post.ID, token))
		return d.finish(ctx, models.KindPost, post.ID, post.UserID, post.AccountID, &post.SendableState, models.OutcomeSkipped, nil), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	res, published, err := checker.CheckQueued(callCtx, *post.RemoteQueueID)
	cancel()
	if err != nil || !published {
		if err != nil {
			slog.Info(fmt.Sprintf("checking queued post %d: %s", post.ID, err.Error()))
		}
		logRelease(d.pr.Release(ctx, post.ID, token))
		return d.finish(ctx, models.KindPost, post.ID, post.UserID, post.AccountID, &post.SendableState, models.OutcomeSkipped, err), nil
	}

	post.MarkComplete(now, res.RemoteID, res.RemoteURL)
	if err := d.pr.Save(ctx, post, token); err != nil {
		return nil, err
	}
	return d.finish(ctx, models.KindPost, post.ID, post.UserID, post.AccountID, &post.SendableState, models.OutcomeComplete, nil), nil
}

// AutoBoostPost schedules a boost of a published post once its auto boost delay has passed.
func (d *dispatcher) AutoBoostPost(ctx context.Context, postID int64) (*Outcome, error) {
	token, now, until, err := d.lease()
	if err != nil {
		return nil, err
	}

	post, err := d.pr.Claim(ctx, postID, token, until, now)
	if err != nil {
		return nil, claimError(models.KindPost, postID, err)
	}

	if post.Status != models.StatusComplete || post.RemoteURL == nil || !post.AutoBoostDue(now) {
		logRelease(d.pr.Release(ctx, post.ID, token))
		return nil, fmt.Errorf("post %d: %w", post.ID, ErrBoostNotDue)
	}

	postRef := post.ID
	boost := &models.Boost{
		UserID:    post.UserID,
		AccountID: post.AccountID,
		TargetURL: *post.RemoteURL,
		PostID:    &postRef,
		SendableState: models.SendableState{
			Status: models.StatusPending,
			SendAt: now,
		},
	}

	boostID, err := d.pr.ScheduleAutoBoost(ctx, post, boost, token)
	if err != nil {
		return nil, err
	}

	out := d.finish(ctx, models.KindPost, post.ID, post.UserID, post.AccountID, &post.SendableState, models.OutcomeBoostScheduled, nil)
	out.BoostID = boostID
	return out, nil
}

// ScheduleRetry charges the item one failure as if an attempt had just failed.
// Thread posts are retried through their thread so both fail together.
func (d *dispatcher) ScheduleRetry(ctx context.Context, kind models.ItemKind, id int64) (*Outcome, error) {
	token, now, until, err := d.lease()
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.KindPost:
		post, err := d.pr.Claim(ctx, id, token, until, now)
		if err != nil {
			return nil, claimError(kind, id, err)
		}
		if post.InThread() {
			logRelease(d.pr.Release(ctx, post.ID, token))
			return nil, fmt.Errorf("post %d: %w", post.ID, ErrThreadedPost)
		}
		if post.Status.IsTerminal() || post.Status == models.StatusQueued {
			logRelease(d.pr.Release(ctx, post.ID, token))
			return nil, fmt.Errorf("post %d: %w", post.ID, ErrTerminalItem)
		}
		if post.Attachments, err = d.mr.ListByPostID(ctx, post.ID); err != nil {
			logRelease(d.pr.Release(ctx, post.ID, token))
			return nil, err
		}

		d.retry.Apply(&post.SendableState, now, true)
		failPendingMedia(post)
		if err := d.pr.Save(ctx, post, token); err != nil {
			return nil, err
		}
		return d.finish(ctx, kind, post.ID, post.UserID, post.AccountID, &post.SendableState, retryOutcome(post.Status), nil), nil

	case models.KindThread:
		thread, err := d.tr.Claim(ctx, id, token, until, now)
		if err != nil {
			return nil, claimError(kind, id, err)
		}
		if thread.Status.IsTerminal() {
			logRelease(d.tr.Release(ctx, thread.ID, token))
			return nil, fmt.Errorf("thread %d: %w", thread.ID, ErrThreadAlreadyComplete)
		}

		// The failure is charged to the post the thread would send next, under the thread lease.
		posts, err := d.pr.ListByThreadID(ctx, thread.ID)
		if err != nil {
			logRelease(d.tr.Release(ctx, thread.ID, token))
			return nil, err
		}
		post, _, err := nextThreadPost(posts)
		if err != nil {
			logRelease(d.tr.Release(ctx, thread.ID, token))
			return nil, fmt.Errorf("thread %d: %w", thread.ID, err)
		}
		if post.Attachments, err = d.mr.ListByPostID(ctx, post.ID); err != nil {
			logRelease(d.tr.Release(ctx, thread.ID, token))
			return nil, err
		}

		d.retry.ApplyThread(&thread.SendableState, &post.SendableState, now)
		failPendingMedia(post)
		if err := d.tr.SaveProgress(ctx, thread, post, token); err != nil {
			return nil, err
		}
		out := d.finish(ctx, kind, thread.ID, thread.UserID, thread.AccountID, &thread.SendableState, retryOutcome(thread.Status), nil)
		out.PostID = post.ID
		return out, nil

	case models.KindBoost:
		boost, err := d.br.Claim(ctx, id, token, until, now)
		if err != nil {
			return nil, claimError(kind, id, err)
		}
		if boost.Status.IsTerminal() {
			logRelease(d.br.Release(ctx, boost.ID, token))
			return nil, fmt.Errorf("boost %d: %w", boost.ID, ErrTerminalItem)
		}

		d.retry.Apply(&boost.SendableState, now, true)
		if err := d.br.Save(ctx, boost, token); err != nil {
			return nil, err
		}
		return d.finish(ctx, kind, boost.ID, boost.UserID, boost.AccountID, &boost.SendableState, retryOutcome(boost.Status), nil), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownItemKind, kind)
}

func retryOutcome(s models.Status) models.AttemptOutcome {
	if s == models.StatusFailed {
		return models.OutcomeFailed
	}
	return models.OutcomeRetry
}
