package queue

import (
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postlater/internal/service"
)

type Queue struct {
	ds service.Dispatcher
	ts service.ThreadSequencer
}

func NewQueue(ds service.Dispatcher, ts service.ThreadSequencer) *Queue {
	return &Queue{
		ds: ds,
		ts: ts,
	}
}

const (
	TaskTypeDispatchPost   = "dispatch:post"
	TaskTypeDispatchThread = "dispatch:thread"
	TaskTypeDispatchBoost  = "dispatch:boost"
	TaskTypeFollowUpPost   = "followup:post"
	TaskTypeAutoBoostPost  = "autoboost:post"
)

type ItemPayload struct {
	ItemID int64 `json:"item_id"`
}

// RegisterHandlers routes every task type to its handler.
func (q *Queue) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeDispatchPost, q.HandleDispatchPostTask)
	mux.HandleFunc(TaskTypeDispatchThread, q.HandleDispatchThreadTask)
	mux.HandleFunc(TaskTypeDispatchBoost, q.HandleDispatchBoostTask)
	mux.HandleFunc(TaskTypeFollowUpPost, q.HandleFollowUpPostTask)
	mux.HandleFunc(TaskTypeAutoBoostPost, q.HandleAutoBoostPostTask)
}
