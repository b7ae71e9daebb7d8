package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postlater/internal/models"
)

type BoostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, boost *models.Boost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Boost, error)
	ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Boost, error)
	Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Boost, error)
	Release(ctx context.Context, id int64, token string) error
	Save(ctx context.Context, boost *models.Boost, token string) error
}

type boostRepository struct {
	db *sql.DB
}

func NewBoostRepository(db *sql.DB) BoostRepository {
	return &boostRepository{db: db}
}

const boostColumns = `id, user_id, account_id, post_id, target_url, status, send_at, num_failures,
	last_attempt_at, next_retry, remote_id, remote_url, queued_at, remote_queue_id, finished_at,
	lock_token, locked_until, created_at, updated_at`

func scanBoost(row rowScanner) (*models.Boost, error) {
	var b models.Boost
	err := row.Scan(&b.ID, &b.UserID, &b.AccountID, &b.PostID, &b.TargetURL, &b.Status, &b.SendAt,
		&b.NumFailures, &b.LastAttemptAt, &b.NextRetry, &b.RemoteID, &b.RemoteURL, &b.QueuedAt,
		&b.RemoteQueueID, &b.FinishedAt, &b.LockToken, &b.LockedUntil, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *boostRepository) Create(ctx context.Context, tx *sql.Tx, boost *models.Boost) (int64, error) {
	if tx != nil {
		return insertBoost(ctx, tx, boost)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertBoost(ctx, tx, boost)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func insertBoost(ctx context.Context, tx *sql.Tx, boost *models.Boost) (int64, error) {
	query := `
		INSERT INTO scheduled_boosts (user_id, account_id, post_id, target_url, send_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := tx.QueryRowContext(ctx, query, boost.UserID, boost.AccountID, boost.PostID, boost.TargetURL, boost.SendAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *boostRepository) GetByID(ctx context.Context, id int64) (*models.Boost, error) {
	query := `SELECT ` + boostColumns + ` FROM scheduled_boosts WHERE id = $1`

	boost, err := scanBoost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return boost, nil
}

func (r *boostRepository) ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Boost, error) {
	query := `SELECT ` + boostColumns + ` FROM scheduled_boosts
		WHERE (status = 'pending' AND send_at <= $1) OR (status = 'error' AND next_retry <= $1)
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var boosts []*models.Boost
	for rows.Next() {
		boost, err := scanBoost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		boosts = append(boosts, boost)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return boosts, nil
}

func (r *boostRepository) Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Boost, error) {
	query := `
		UPDATE scheduled_boosts
		SET lock_token = $2, locked_until = $3
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $4)
		RETURNING ` + boostColumns

	boost, err := scanBoost(r.db.QueryRowContext(ctx, query, id, token, until, now))
	if err == sql.ErrNoRows {
		return nil, claimMiss(ctx, r.db, "scheduled_boosts", id)
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return boost, nil
}

func (r *boostRepository) Release(ctx context.Context, id int64, token string) error {
	return releaseLease(ctx, r.db, "scheduled_boosts", id, token)
}

func (r *boostRepository) Save(ctx context.Context, b *models.Boost, token string) error {
	query := `
		UPDATE scheduled_boosts
		SET status = $2,
			num_failures = $3,
			last_attempt_at = $4,
			next_retry = $5,
			remote_id = $6,
			remote_url = $7,
			finished_at = $8,
			lock_token = NULL,
			locked_until = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND lock_token = $9
	`
	result, err := r.db.ExecContext(ctx, query, b.ID, b.Status, b.NumFailures, b.LastAttemptAt, b.NextRetry,
		b.RemoteID, b.RemoteURL, b.FinishedAt, token)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectOneRow(result); err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("saving boost %d: %w", b.ID, ErrLeaseConflict)
		}
		return err
	}
	return nil
}
