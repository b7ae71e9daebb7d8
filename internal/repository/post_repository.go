package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postlater/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByThreadID(ctx context.Context, threadID int64) ([]*models.Post, error)
	ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Post, error)
	Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Post, error)
	Release(ctx context.Context, id int64, token string) error
	Save(ctx context.Context, post *models.Post, token string) error
	ScheduleAutoBoost(ctx context.Context, post *models.Post, boost *models.Boost, token string) (int64, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, account_id, thread_id, thread_ordering, content, auto_boost_hours,
	auto_boost_completed, status, send_at, num_failures, last_attempt_at, next_retry, remote_id,
	remote_url, queued_at, remote_queue_id, finished_at, lock_token, locked_until, created_at, updated_at`

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.UserID, &p.AccountID, &p.ThreadID, &p.ThreadOrdering, &p.Content,
		&p.AutoBoostHours, &p.AutoBoostCompleted, &p.Status, &p.SendAt, &p.NumFailures,
		&p.LastAttemptAt, &p.NextRetry, &p.RemoteID, &p.RemoteURL, &p.QueuedAt, &p.RemoteQueueID,
		&p.FinishedAt, &p.LockToken, &p.LockedUntil, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (user_id, account_id, thread_id, thread_ordering, content, auto_boost_hours, send_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	args := []any{post.UserID, post.AccountID, post.ThreadID, post.ThreadOrdering, post.Content, post.AutoBoostHours, post.SendAt}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByThreadID(ctx context.Context, threadID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE thread_id = $1 ORDER BY thread_ordering ASC`
	return r.list(ctx, query, threadID)
}

// ListJobCandidates narrows the table to rows that may fall in a post bucket at now.
func (r *postRepository) ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts
		WHERE (thread_id IS NULL AND (
				(status = 'pending' AND send_at <= $1) OR
				(status = 'error' AND next_retry <= $1) OR
				(status = 'queued' AND send_at <= $1)))
			OR (status = 'complete' AND auto_boost_hours IS NOT NULL AND NOT auto_boost_completed)
		ORDER BY id`
	return r.list(ctx, query, now)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// Claim leases the post to token until the given time. Expired leases are reclaimable.
func (r *postRepository) Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Post, error) {
	query := `
		UPDATE scheduled_posts
		SET lock_token = $2, locked_until = $3
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $4)
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, token, until, now))
	if err == sql.ErrNoRows {
		return nil, claimMiss(ctx, r.db, "scheduled_posts", id)
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) Release(ctx context.Context, id int64, token string) error {
	return releaseLease(ctx, r.db, "scheduled_posts", id, token)
}

// Save writes the post's delivery state and attachment upload state, releasing the lease.
func (r *postRepository) Save(ctx context.Context, post *models.Post, token string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := savePostState(ctx, tx, post, &token); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) ScheduleAutoBoost(ctx context.Context, post *models.Post, boost *models.Boost, token string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer tx.Rollback()

	boostID, err := insertBoost(ctx, tx, boost)
	if err != nil {
		return 0, err
	}

	post.AutoBoostCompleted = true
	if err := savePostState(ctx, tx, post, &token); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return boostID, nil
}

// savePostState updates a post row. A non-nil token makes the write conditional on
// holding the post's lease.
func savePostState(ctx context.Context, tx *sql.Tx, post *models.Post, token *string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $2,
			num_failures = $3,
			last_attempt_at = $4,
			next_retry = $5,
			remote_id = $6,
			remote_url = $7,
			queued_at = $8,
			remote_queue_id = $9,
			finished_at = $10,
			auto_boost_completed = $11,
			lock_token = NULL,
			locked_until = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND ($12::text IS NULL OR lock_token = $12::text)
	`
	result, err := tx.ExecContext(ctx, query, post.ID, post.Status, post.NumFailures, post.LastAttemptAt,
		post.NextRetry, post.RemoteID, post.RemoteURL, post.QueuedAt, post.RemoteQueueID, post.FinishedAt,
		post.AutoBoostCompleted, token)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("saving post %d: %w", post.ID, ErrLeaseConflict)
		}
		return err
	}

	for _, m := range post.Attachments {
		if err := updateUploadState(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

// claimMiss explains why a conditional claim matched no row.
func claimMiss(ctx context.Context, db *sql.DB, table string, id int64) error {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = $1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return fmt.Errorf("%s %d: %w", table, id, ErrLeaseConflict)
}

func releaseLease(ctx context.Context, db *sql.DB, table string, id int64, token string) error {
	query := `UPDATE ` + table + ` SET lock_token = NULL, locked_until = NULL WHERE id = $1 AND lock_token = $2`
	result, err := db.ExecContext(ctx, query, id, token)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("releasing %s %d: %w", table, id, ErrLeaseConflict)
		}
		return err
	}
	return nil
}
