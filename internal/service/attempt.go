package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
	config "github.com/maheshrc27/postlater/configs"
	"github.com/maheshrc27/postlater/internal/adapter"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/telemetry"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// AdapterResolver turns an account into the adapter for its network.
type AdapterResolver interface {
	Resolve(account *models.Account) (adapter.Adapter, error)
}

// Outcome describes what one dispatch call did to an item.
type Outcome struct {
	Kind        models.ItemKind       `json:"kind"`
	ItemID      int64                 `json:"item_id"`
	Result      models.AttemptOutcome `json:"result"`
	Status      models.Status         `json:"status"`
	NumFailures int                   `json:"num_failures"`
	NextRetry   *time.Time            `json:"next_retry,omitempty"`
	PostID      int64                 `json:"post_id,omitempty"`
	BoostID     int64                 `json:"boost_id,omitempty"`
	Error       string                `json:"error,omitempty"`
	Err         error                 `json:"-"`
}

// attempter holds what posts, boosts and threads share when talking to a network.
type attempter struct {
	ar       repository.AccountRepository
	mr       repository.MediaAttachmentRepository
	hr       repository.AttemptHistoryRepository
	adapters AdapterResolver
	store    MediaStore
	retry    RetryPolicy
	lockFor  time.Duration
	timeout  time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

func newAttempter(
	c config.Config,
	ar repository.AccountRepository,
	mr repository.MediaAttachmentRepository,
	hr repository.AttemptHistoryRepository,
	adapters AdapterResolver,
	store MediaStore) attempter {
	return attempter{
		ar:       ar,
		mr:       mr,
		hr:       hr,
		adapters: adapters,
		store:    store,
		retry:    NewRetryPolicy(c),
		lockFor:  c.DefaultJobLock,
		timeout:  c.AdapterTimeout,
		now:      time.Now,
		newToken: func() (string, error) { return gonanoid.New() },
	}
}

// lease picks a fresh lease token and the window it is valid for.
func (a *attempter) lease() (string, time.Time, time.Time, error) {
	token, err := a.newToken()
	if err != nil {
		slog.Info(err.Error())
		return "", time.Time{}, time.Time{}, err
	}
	now := a.now()
	return token, now, now.Add(a.lockFor), nil
}

func claimError(kind models.ItemKind, id int64, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrItemNotFound)
	}
	return err
}

func logRelease(err error) {
	if err != nil {
		slog.Info("releasing lease: " + err.Error())
	}
}

func (a *attempter) resolve(ctx context.Context, accountID int64) (*models.Account, adapter.Adapter, error) {
	account, err := a.ar.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
	}

	ad, err := a.adapters.Resolve(account)
	if err != nil {
		return account, nil, err
	}
	return account, ad, nil
}

// ready reports whether the account may be posted to. Trashed accounts never are.
func ready(account *models.Account, ad adapter.Adapter) bool {
	return account.AccountStatus != models.AccountStatusTrashed && ad.IsReadyToPost()
}

// sendPost uploads the post's pending media and submits it. Attachment upload
// state on post is updated in place so a retry skips what already went up.
func (a *attempter) sendPost(ctx context.Context, ad adapter.Adapter, post *models.Post, inReplyTo string, scheduleAt *time.Time) (adapter.PostResult, error) {
	mediaIDs := make([]string, 0, len(post.Attachments))
	for _, m := range post.Attachments {
		if m.Uploaded() {
			mediaIDs = append(mediaIDs, *m.RemoteID)
			continue
		}

		remoteID, err := a.uploadMedia(ctx, ad, m)
		if err != nil {
			if !errors.Is(err, adapter.ErrNotAuthenticated) {
				m.NumFailures++
				m.UploadStatus = models.StatusError
			}
			slog.Info(fmt.Sprintf("uploading media %d for post %d: %s", m.ID, post.ID, err.Error()))
			return adapter.PostResult{}, mediaFailure(err)
		}
		m.RemoteID = &remoteID
		m.UploadStatus = models.StatusComplete
		mediaIDs = append(mediaIDs, remoteID)
	}

	req := adapter.PostRequest{
		Content:      post.Content,
		MediaIDs:     mediaIDs,
		InReplyToID:  inReplyTo,
		ScheduleTime: scheduleAt,
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := ad.SendPost(callCtx, req)
	if err != nil {
		slog.Info(fmt.Sprintf("sending post %d: %s", post.ID, err.Error()))
		var sf *adapter.PostSendFailure
		if errors.As(err, &sf) || errors.Is(err, adapter.ErrNotAuthenticated) {
			return adapter.PostResult{}, err
		}
		return adapter.PostResult{}, &adapter.PostSendFailure{Err: err}
	}
	return res, nil
}

func (a *attempter) uploadMedia(ctx context.Context, ad adapter.Adapter, m *models.MediaAttachment) (string, error) {
	data, err := a.store.Fetch(ctx, m.ObjectKey)
	if err != nil {
		return "", err
	}

	if m.MimeType == "" {
		kind, err := filetype.Match(data)
		if err == nil && kind != filetype.Unknown {
			m.MimeType = kind.MIME.Value
		}
	}

	upload := adapter.MediaUpload{
		Data:     data,
		MimeType: m.MimeType,
		Kind:     m.Kind(),
		AltText:  models.StringValue(m.AltText),
		FocusX:   m.FocusX,
		FocusY:   m.FocusY,
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return ad.UploadMedia(callCtx, upload)
}

func mediaFailure(err error) error {
	var mf *adapter.MediaUploadFailure
	if errors.As(err, &mf) || errors.Is(err, adapter.ErrNotAuthenticated) {
		return err
	}
	return &adapter.MediaUploadFailure{Err: err}
}

// applyFailure moves an item through the retry policy, except for authentication
// failures which cost no retry budget.
func (a *attempter) applyFailure(s *models.SendableState, now time.Time, err error, scheduleRetry bool) models.AttemptOutcome {
	if errors.Is(err, adapter.ErrNotAuthenticated) {
		s.LastAttemptAt = &now
		return models.OutcomeNotAuthenticated
	}

	a.retry.Apply(s, now, scheduleRetry)
	if s.Status == models.StatusFailed {
		return models.OutcomeFailed
	}
	return models.OutcomeRetry
}

// failPendingMedia marks attachments that never went up once their post has failed.
func failPendingMedia(post *models.Post) {
	if post.Status != models.StatusFailed {
		return
	}
	for _, m := range post.Attachments {
		if !m.Uploaded() {
			m.UploadStatus = models.StatusFailed
		}
	}
}

// finish records the attempt and reports it.
func (a *attempter) finish(ctx context.Context, kind models.ItemKind, itemID, userID, accountID int64,
	s *models.SendableState, result models.AttemptOutcome, cause error) *Outcome {
	out := &Outcome{
		Kind:        kind,
		ItemID:      itemID,
		Result:      result,
		Status:      s.Status,
		NumFailures: s.NumFailures,
		NextRetry:   s.NextRetry,
		Err:         cause,
	}
	if cause != nil {
		out.Error = cause.Error()
	}

	entry := &models.AttemptHistory{
		UserID:       userID,
		ItemKind:     kind,
		ItemID:       itemID,
		AccountID:    accountID,
		Outcome:      result,
		ErrorMessage: out.Error,
	}
	if _, err := a.hr.Create(context.WithoutCancel(ctx), entry); err != nil {
		slog.Info("recording attempt history: " + err.Error())
	}

	telemetry.RecordDispatch(string(kind), string(result))
	return out
}
