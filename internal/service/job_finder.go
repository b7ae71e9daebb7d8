package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/repository"
	"github.com/maheshrc27/postlater/internal/telemetry"
)

type PostJobs struct {
	ToSend   []int64 `json:"to_send"`
	Retry    []int64 `json:"retry"`
	Followup []int64 `json:"followup"`
	Boosts   []int64 `json:"boosts"`
}

type ThreadJobs struct {
	ToStart  []int64 `json:"to_start"`
	NextPost []int64 `json:"next_post"`
	Retries  []int64 `json:"retries"`
}

type BoostJobs struct {
	Pending []int64 `json:"pending"`
	Retries []int64 `json:"retries"`
}

// Jobs is a snapshot of the work due at Now.
type Jobs struct {
	Now     time.Time  `json:"now"`
	Posts   PostJobs   `json:"posts"`
	Threads ThreadJobs `json:"threads"`
	Boosts  BoostJobs  `json:"boosts"`
}

func (j *Jobs) Empty() bool {
	return len(j.Posts.ToSend)+len(j.Posts.Retry)+len(j.Posts.Followup)+len(j.Posts.Boosts)+
		len(j.Threads.ToStart)+len(j.Threads.NextPost)+len(j.Threads.Retries)+
		len(j.Boosts.Pending)+len(j.Boosts.Retries) == 0
}

type JobFinder interface {
	FindJobs(ctx context.Context, now time.Time) (*Jobs, error)
}

type jobFinder struct {
	pr repository.PostRepository
	tr repository.ThreadRepository
	br repository.BoostRepository
}

func NewJobFinder(pr repository.PostRepository, tr repository.ThreadRepository, br repository.BoostRepository) JobFinder {
	return &jobFinder{pr: pr, tr: tr, br: br}
}

// FindJobs reads the due work at now. It never writes.
func (f *jobFinder) FindJobs(ctx context.Context, now time.Time) (*Jobs, error) {
	posts, err := f.pr.ListJobCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing post candidates: %w", err)
	}
	threads, err := f.tr.ListJobCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing thread candidates: %w", err)
	}
	boosts, err := f.br.ListJobCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing boost candidates: %w", err)
	}

	jobs := &Jobs{
		Now:     now,
		Posts:   PartitionPosts(posts, now),
		Threads: PartitionThreads(threads, now),
		Boosts:  PartitionBoosts(boosts, now),
	}
	recordJobsFound(jobs)
	return jobs, nil
}

func recordJobsFound(j *Jobs) {
	telemetry.RecordJobsFound("posts_to_send", len(j.Posts.ToSend))
	telemetry.RecordJobsFound("posts_retry", len(j.Posts.Retry))
	telemetry.RecordJobsFound("posts_followup", len(j.Posts.Followup))
	telemetry.RecordJobsFound("posts_boosts", len(j.Posts.Boosts))
	telemetry.RecordJobsFound("threads_to_start", len(j.Threads.ToStart))
	telemetry.RecordJobsFound("threads_next_post", len(j.Threads.NextPost))
	telemetry.RecordJobsFound("threads_retries", len(j.Threads.Retries))
	telemetry.RecordJobsFound("boosts_pending", len(j.Boosts.Pending))
	telemetry.RecordJobsFound("boosts_retries", len(j.Boosts.Retries))
}

func due(t time.Time, now time.Time) bool {
	return !t.After(now)
}

func dueAt(t *time.Time, now time.Time) bool {
	return t != nil && !t.After(now)
}

// PartitionPosts sorts standalone posts into buckets. Posts owned by a thread are
// skipped; the thread sends them.
func PartitionPosts(posts []*models.Post, now time.Time) PostJobs {
	var jobs PostJobs
	for _, p := range posts {
		switch {
		case p.Status == models.StatusComplete:
			if p.AutoBoostDue(now) && p.RemoteURL != nil {
				jobs.Boosts = append(jobs.Boosts, p.ID)
			}
		case p.InThread():
		case p.Status == models.StatusPending && due(p.SendAt, now):
			jobs.ToSend = append(jobs.ToSend, p.ID)
		case p.Status == models.StatusError && dueAt(p.NextRetry, now):
			jobs.Retry = append(jobs.Retry, p.ID)
		case p.Status == models.StatusQueued && due(p.SendAt, now):
			jobs.Followup = append(jobs.Followup, p.ID)
		}
	}
	return jobs
}

func PartitionThreads(threads []*models.Thread, now time.Time) ThreadJobs {
	var jobs ThreadJobs
	for _, t := range threads {
		if t.FinishedAt != nil {
			continue
		}
		switch {
		case t.Status == models.StatusPending && due(t.SendAt, now):
			jobs.ToStart = append(jobs.ToStart, t.ID)
		case t.Status == models.StatusStarted && dueAt(t.NextPublish, now):
			jobs.NextPost = append(jobs.NextPost, t.ID)
		case t.Status == models.StatusError && dueAt(t.NextRetry, now):
			jobs.Retries = append(jobs.Retries, t.ID)
		}
	}
	return jobs
}

func PartitionBoosts(boosts []*models.Boost, now time.Time) BoostJobs {
	var jobs BoostJobs
	for _, b := range boosts {
		switch {
		case b.Status == models.StatusPending && due(b.SendAt, now):
			jobs.Pending = append(jobs.Pending, b.ID)
		case b.Status == models.StatusError && dueAt(b.NextRetry, now):
			jobs.Retries = append(jobs.Retries, b.ID)
		}
	}
	return jobs
}
