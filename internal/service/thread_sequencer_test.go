package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postlater/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendNextPostWalksTheThread(t *testing.T) {
	h := newHarness(t)
	thread := h.addThread(t, 3)
	ctx := context.Background()

	out, err := h.sequencer.SendNextPost(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStarted, out.Result)

	stored := h.thread(t, thread.ID)
	assert.Equal(t, models.StatusStarted, stored.Status)
	assert.Equal(t, "status-1", models.StringValue(stored.StartRemoteID))
	assert.Equal(t, "status-1", models.StringValue(stored.NextIDToReply))
	require.NotNil(t, stored.NextPublish)
	assert.Equal(t, t0.Add(60*time.Second), *stored.NextPublish)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, t0, *stored.StartedAt)

	// The second post fails at t+60.
	h.advance(60 * time.Second)
	h.ad.sendErrs = []error{errNetwork}
	out, err = h.sequencer.SendNextPost(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRetry, out.Result)

	stored = h.thread(t, thread.ID)
	assert.Equal(t, models.StatusError, stored.Status)
	require.NotNil(t, stored.NextRetry)
	assert.Equal(t, t0.Add(60*time.Second+4800*time.Second), *stored.NextRetry)

	failedPost := h.post(t, out.PostID)
	assert.Equal(t, models.StatusError, failedPost.Status)
	assert.Equal(t, 1, failedPost.NumFailures)
	assert.Nil(t, failedPost.NextRetry)

	jobs, err := NewJobFinder(h.posts, h.threads, h.boosts).FindJobs(ctx, h.clock.Add(4800*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{thread.ID}, jobs.Threads.Retries)
	assert.Empty(t, jobs.Posts.Retry)

	h.advance(4800 * time.Second)
	out, err = h.sequencer.SendNextPost(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStarted, out.Result)
	assert.Equal(t, failedPost.ID, out.PostID)
	assert.Nil(t, h.thread(t, thread.ID).NextRetry)

	h.advance(60 * time.Second)
	out, err = h.sequencer.SendNextPost(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeComplete, out.Result)

	stored = h.thread(t, thread.ID)
	assert.Equal(t, models.StatusComplete, stored.Status)
	assert.Equal(t, "status-1", models.StringValue(stored.StartRemoteID))
	assert.Equal(t, "status-3", models.StringValue(stored.EndRemoteID))
	require.NotNil(t, stored.FinishedAt)
	assert.Equal(t, h.clock, *stored.FinishedAt)

	posts, err := h.posts.ListByThreadID(ctx, thread.ID)
	require.NoError(t, err)
	for _, p := range posts {
		assert.Equal(t, models.StatusComplete, p.Status)
	}

	// Each reply points at the id returned by the previous successful send.
	var replies []string
	for _, req := range h.ad.requests {
		replies = append(replies, req.InReplyToID)
	}
	assert.Equal(t, []string{"", "status-1", "status-1", "status-2"}, replies)

	_, err = h.sequencer.SendNextPost(ctx, thread.ID)
	assert.ErrorIs(t, err, ErrThreadAlreadyComplete)
}

func TestSendNextPostFailsThreadWithPost(t *testing.T) {
	c := testConfig()
	c.MaxPostFailures = 2
	h := newHarnessWithConfig(t, c)
	thread := h.addThread(t, 2)
	h.ad.sendErrs = []error{errNetwork, errNetwork}

	out, err := h.sequencer.SendNextPost(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRetry, out.Result)

	h.advance(4800 * time.Second)
	out, err = h.sequencer.SendNextPost(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, out.Result)

	stored := h.thread(t, thread.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Nil(t, stored.NextRetry)
	assert.Equal(t, models.StatusFailed, h.post(t, out.PostID).Status)

	_, err = h.sequencer.SendNextPost(context.Background(), thread.ID)
	assert.ErrorIs(t, err, ErrThreadAlreadyComplete)
}

func TestSendNextPostNotAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.ad.ready = false
	thread := h.addThread(t, 2)

	out, err := h.sequencer.SendNextPost(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotAuthenticated, out.Result)

	stored := h.thread(t, thread.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.NumFailures)
	assert.Nil(t, stored.NextRetry)
	assert.Nil(t, stored.LockToken)
	assert.Equal(t, 0, h.post(t, out.PostID).NumFailures)
	assert.Empty(t, h.ad.requests)
}

func TestSendNextPostEmptyThread(t *testing.T) {
	h := newHarness(t)
	thread := h.addThread(t, 0)

	_, err := h.sequencer.SendNextPost(context.Background(), thread.ID)
	assert.ErrorIs(t, err, ErrEmptyThread)
	assert.Nil(t, h.thread(t, thread.ID).LockToken)
}

func TestSendNextPostCompleteThread(t *testing.T) {
	h := newHarness(t)
	thread := h.addThread(t, 1)
	h.db.threads[thread.ID].Status = models.StatusComplete

	_, err := h.sequencer.SendNextPost(context.Background(), thread.ID)
	assert.ErrorIs(t, err, ErrThreadAlreadyComplete)
	assert.Empty(t, h.ad.requests)
}

func TestSendNextPostLeaseHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	thread := h.addThread(t, 1)
	_, err := h.threads.Claim(context.Background(), thread.ID, "other-worker", t0.Add(time.Minute), t0)
	require.NoError(t, err)

	_, err = h.sequencer.SendNextPost(context.Background(), thread.ID)
	assert.ErrorIs(t, err, ErrLeaseConflict)
	assert.Empty(t, h.ad.requests)
}

func TestNextThreadPost(t *testing.T) {
	post := func(id int64, status models.Status) *models.Post {
		return &models.Post{ID: id, ThreadOrdering: int(id), SendableState: models.SendableState{Status: status}}
	}

	tests := []struct {
		name     string
		posts    []*models.Post
		wantID   int64
		wantMore bool
		wantErr  error
	}{
		{"first of many", []*models.Post{post(1, models.StatusPending), post(2, models.StatusPending)}, 1, true, nil},
		{"skips published", []*models.Post{post(1, models.StatusComplete), post(2, models.StatusError)}, 2, false, nil},
		{"retries in order", []*models.Post{post(1, models.StatusComplete), post(2, models.StatusError), post(3, models.StatusPending)}, 2, true, nil},
		{"all published", []*models.Post{post(1, models.StatusComplete)}, 0, false, ErrEmptyThread},
		{"never skips a failed post", []*models.Post{post(1, models.StatusFailed), post(2, models.StatusPending)}, 0, false, ErrEmptyThread},
		{"no posts", nil, 0, false, ErrEmptyThread},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, more, err := nextThreadPost(tt.posts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, tt.wantMore, more)
		})
	}
}
