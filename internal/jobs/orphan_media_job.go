package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/service"
	"github.com/maheshrc27/postlater/internal/telemetry"
)

// OrphanMediaCleanupJob removes uploads that were never attached to a post.
type OrphanMediaCleanupJob struct {
	mr     repository.MediaAttachmentRepository
	store  service.MediaStore
	maxAge time.Duration
	now    func() time.Time
}

func NewOrphanMediaCleanupJob(mr repository.MediaAttachmentRepository, store service.MediaStore, maxAge time.Duration) *OrphanMediaCleanupJob {
	return &OrphanMediaCleanupJob{
		mr:     mr,
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// CleanOrphans deletes orphan rows older than maxAge and then their stored objects.
// It returns how many objects were removed from the store.
func (c *OrphanMediaCleanupJob) CleanOrphans(ctx context.Context) (int, error) {
	keys, err := c.mr.CleanOrphans(ctx, c.now().Add(-c.maxAge))
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	var deleted atomic.Int64

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, key := range keys {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(key string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.store.Delete(ctx, key); err != nil {
				slog.Info("Unable to delete orphaned media " + key)
				return
			}
			deleted.Add(1)
		}(key)
	}
	wg.Wait()

	n := int(deleted.Load())
	telemetry.RecordOrphansCleaned(n)
	return n, nil
}

func (c *OrphanMediaCleanupJob) Run() {
	n, err := c.CleanOrphans(context.Background())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	slog.Info("orphaned media cleaned", "deleted", n)
}
