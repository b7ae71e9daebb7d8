package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postlater/internal/service"
)

func parsePayload(task *asynq.Task) (ItemPayload, error) {
	var payload ItemPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decoding %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if payload.ItemID <= 0 {
		return payload, fmt.Errorf("%s payload has no item id: %w", task.Type(), asynq.SkipRetry)
	}
	return payload, nil
}

func (q *Queue) HandleDispatchPostTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parsePayload(task)
	if err != nil {
		return err
	}
	out, err := q.ds.DispatchPost(ctx, payload.ItemID)
	return handleResult(task.Type(), payload.ItemID, out, err)
}

func (q *Queue) HandleDispatchThreadTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parsePayload(task)
	if err != nil {
		return err
	}
	out, err := q.ts.SendNextPost(ctx, payload.ItemID)
	return handleResult(task.Type(), payload.ItemID, out, err)
}

func (q *Queue) HandleDispatchBoostTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parsePayload(task)
	if err != nil {
		return err
	}
	out, err := q.ds.DispatchBoost(ctx, payload.ItemID)
	return handleResult(task.Type(), payload.ItemID, out, err)
}

func (q *Queue) HandleFollowUpPostTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parsePayload(task)
	if err != nil {
		return err
	}
	out, err := q.ds.FollowUpPost(ctx, payload.ItemID)
	return handleResult(task.Type(), payload.ItemID, out, err)
}

func (q *Queue) HandleAutoBoostPostTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parsePayload(task)
	if err != nil {
		return err
	}
	out, err := q.ds.AutoBoostPost(ctx, payload.ItemID)
	return handleResult(task.Type(), payload.ItemID, out, err)
}

// skippable errors mean the item moved on since it was found; the next tick sees
// its current state.
var skippable = []error{
	service.ErrLeaseConflict,
	service.ErrItemNotFound,
	service.ErrTerminalItem,
	service.ErrThreadedPost,
	service.ErrThreadAlreadyComplete,
	service.ErrEmptyThread,
	service.ErrAlreadyQueued,
	service.ErrNotQueued,
	service.ErrBoostNotDue,
}

// handleResult keeps delivery failures out of asynq's own retry machinery; the
// item's retry policy already decided when it runs again.
func handleResult(taskType string, itemID int64, out *service.Outcome, err error) error {
	if err != nil {
		for _, s := range skippable {
			if errors.Is(err, s) {
				slog.Info(fmt.Sprintf("%s item %d skipped: %s", taskType, itemID, err.Error()))
				return nil
			}
		}
		log.Printf("Error handling %s for item %d: %v", taskType, itemID, err)
		return err
	}

	if out.Err != nil {
		log.Printf("%s item %d: %s (%s, %d failures): %v", taskType, itemID, out.Result, out.Status, out.NumFailures, out.Err)
		return nil
	}
	log.Printf("%s item %d: %s", taskType, itemID, out.Result)
	return nil
}
