package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postlater/internal/models"
)

type ThreadRepository interface {
	Create(ctx context.Context, tx *sql.Tx, thread *models.Thread) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Thread, error)
	ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Thread, error)
	Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Thread, error)
	Release(ctx context.Context, id int64, token string) error
	Save(ctx context.Context, thread *models.Thread, token string) error
	SaveProgress(ctx context.Context, thread *models.Thread, post *models.Post, token string) error
}

type threadRepository struct {
	db *sql.DB
}

func NewThreadRepository(db *sql.DB) ThreadRepository {
	return &threadRepository{db: db}
}

const threadColumns = `id, user_id, account_id, seconds_between_posts, status, send_at, num_failures,
	last_attempt_at, next_retry, remote_id, remote_url, queued_at, remote_queue_id, finished_at,
	started_at, next_publish, start_remote_id, next_id_to_reply, end_remote_id, lock_token,
	locked_until, created_at, updated_at`

func scanThread(row rowScanner) (*models.Thread, error) {
	var t models.Thread
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.SecondsBetweenPosts, &t.Status, &t.SendAt,
		&t.NumFailures, &t.LastAttemptAt, &t.NextRetry, &t.RemoteID, &t.RemoteURL, &t.QueuedAt,
		&t.RemoteQueueID, &t.FinishedAt, &t.StartedAt, &t.NextPublish, &t.StartRemoteID,
		&t.NextIDToReply, &t.EndRemoteID, &t.LockToken, &t.LockedUntil, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *threadRepository) Create(ctx context.Context, tx *sql.Tx, thread *models.Thread) (int64, error) {
	query := `
		INSERT INTO scheduled_threads (user_id, account_id, seconds_between_posts, send_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, thread.UserID, thread.AccountID, thread.SecondsBetweenPosts, thread.SendAt).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, thread.UserID, thread.AccountID, thread.SecondsBetweenPosts, thread.SendAt).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *threadRepository) GetByID(ctx context.Context, id int64) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM scheduled_threads WHERE id = $1`

	thread, err := scanThread(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return thread, nil
}

func (r *threadRepository) ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM scheduled_threads
		WHERE finished_at IS NULL AND (
			(status = 'pending' AND send_at <= $1) OR
			(status = 'started' AND next_publish <= $1) OR
			(status = 'error' AND next_retry <= $1))
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return threads, nil
}

func (r *threadRepository) Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Thread, error) {
	query := `
		UPDATE scheduled_threads
		SET lock_token = $2, locked_until = $3
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $4)
		RETURNING ` + threadColumns

	thread, err := scanThread(r.db.QueryRowContext(ctx, query, id, token, until, now))
	if err == sql.ErrNoRows {
		return nil, claimMiss(ctx, r.db, "scheduled_threads", id)
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return thread, nil
}

func (r *threadRepository) Release(ctx context.Context, id int64, token string) error {
	return releaseLease(ctx, r.db, "scheduled_threads", id, token)
}

func (r *threadRepository) Save(ctx context.Context, thread *models.Thread, token string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := saveThreadState(ctx, tx, thread, token); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SaveProgress writes the thread and the post just attempted in one transaction.
// The thread lease covers its posts, so the post write is unconditional.
func (r *threadRepository) SaveProgress(ctx context.Context, thread *models.Thread, post *models.Post, token string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := saveThreadState(ctx, tx, thread, token); err != nil {
		return err
	}
	if err := savePostState(ctx, tx, post, nil); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func saveThreadState(ctx context.Context, tx *sql.Tx, t *models.Thread, token string) error {
	query := `
		UPDATE scheduled_threads
		SET status = $2,
			num_failures = $3,
			last_attempt_at = $4,
			next_retry = $5,
			finished_at = $6,
			started_at = $7,
			next_publish = $8,
			start_remote_id = $9,
			next_id_to_reply = $10,
			end_remote_id = $11,
			lock_token = NULL,
			locked_until = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND lock_token = $12
	`
	result, err := tx.ExecContext(ctx, query, t.ID, t.Status, t.NumFailures, t.LastAttemptAt, t.NextRetry,
		t.FinishedAt, t.StartedAt, t.NextPublish, t.StartRemoteID, t.NextIDToReply, t.EndRemoteID, token)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("saving thread %d: %w", t.ID, ErrLeaseConflict)
		}
		return err
	}
	return nil
}
