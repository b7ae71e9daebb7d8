package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postlater/internal/service"
	"github.com/maheshrc27/postlater/internal/telemetry"
)

// Enqueuer is the part of *asynq.Client used to hand out work.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueItem queues one item. The same task for the same item is only queued once
// within uniqueFor, so overlapping scheduler ticks do not double up.
func EnqueueItem(client Enqueuer, taskType string, itemID int64, uniqueFor time.Duration) error {
	taskPayload, err := json.Marshal(ItemPayload{ItemID: itemID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskType, taskPayload)

	_, err = client.Enqueue(task, asynq.Unique(uniqueFor), asynq.MaxRetry(0))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		telemetry.RecordEnqueueFailure(taskType)
		return fmt.Errorf("enqueueing %s for item %d: %w", taskType, itemID, err)
	}
	return nil
}

// EnqueueJobs queues a task for every item in jobs and returns how many were handed
// to the client. Failures are logged and do not stop the rest.
func EnqueueJobs(client Enqueuer, jobs *service.Jobs, uniqueFor time.Duration) (int, error) {
	batches := []struct {
		taskType string
		ids      []int64
	}{
		{TaskTypeDispatchPost, jobs.Posts.ToSend},
		{TaskTypeDispatchPost, jobs.Posts.Retry},
		{TaskTypeFollowUpPost, jobs.Posts.Followup},
		{TaskTypeAutoBoostPost, jobs.Posts.Boosts},
		{TaskTypeDispatchThread, jobs.Threads.ToStart},
		{TaskTypeDispatchThread, jobs.Threads.NextPost},
		{TaskTypeDispatchThread, jobs.Threads.Retries},
		{TaskTypeDispatchBoost, jobs.Boosts.Pending},
		{TaskTypeDispatchBoost, jobs.Boosts.Retries},
	}

	var errs []error
	enqueued := 0
	for _, b := range batches {
		for _, id := range b.ids {
			if err := EnqueueItem(client, b.taskType, id, uniqueFor); err != nil {
				log.Printf("Error enqueueing task: %v", err)
				errs = append(errs, err)
				continue
			}
			enqueued++
		}
	}
	return enqueued, errors.Join(errs...)
}
