package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postlater/internal/queue"
	"github.com/maheshrc27/postlater/internal/service"
)

// SchedulerJob turns due work into queued tasks once per tick.
type SchedulerJob struct {
	jf        service.JobFinder
	client    queue.Enqueuer
	uniqueFor time.Duration
	now       func() time.Time
}

func NewSchedulerJob(jf service.JobFinder, client queue.Enqueuer, uniqueFor time.Duration) *SchedulerJob {
	return &SchedulerJob{
		jf:        jf,
		client:    client,
		uniqueFor: uniqueFor,
		now:       time.Now,
	}
}

func (c *SchedulerJob) Tick(ctx context.Context) (int, error) {
	jobs, err := c.jf.FindJobs(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if jobs.Empty() {
		return 0, nil
	}
	return queue.EnqueueJobs(c.client, jobs, c.uniqueFor)
}

// Run is the cron entry point.
func (c *SchedulerJob) Run() {
	n, err := c.Tick(context.Background())
	if err != nil {
		slog.Info(err.Error())
	}
	if n > 0 {
		slog.Info("scheduler tick", "enqueued", n)
	}
}
