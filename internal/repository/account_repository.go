package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/postlater/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, a *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	SetCredential(ctx context.Context, id int64, credential string) error
	SetUsername(ctx context.Context, id int64, username string) error
	Remove(ctx context.Context, id int64) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, tx *sql.Tx, a *models.Account) (int64, error) {
	query := `
		INSERT INTO accounts (user_id, account_type, account_status, username, credential)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	status := a.AccountStatus
	if status == "" {
		status = models.AccountStatusPending
	}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, a.UserID, a.AccountType, status, a.Username, a.Credential).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, a.UserID, a.AccountType, status, a.Username, a.Credential).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `
		SELECT id, user_id, account_type, account_status, username, credential, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	var a models.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.UserID, &a.AccountType, &a.AccountStatus,
		&a.Username, &a.Credential, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) SetCredential(ctx context.Context, id int64, credential string) error {
	query := `
		UPDATE accounts
		SET credential = $2,
			account_status = $3,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, credential, models.AccountStatusActive)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(result)
}

func (r *accountRepository) SetUsername(ctx context.Context, id int64, username string) error {
	query := `UPDATE accounts SET username = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, username)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(result)
}

// Remove trashes the account and forgets its credential. Scheduled items stay so
// their history survives; dispatching them reports the account as not authenticated.
func (r *accountRepository) Remove(ctx context.Context, id int64) error {
	query := `
		UPDATE accounts
		SET account_status = $2,
			credential = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, models.AccountStatusTrashed)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	if affected != 1 {
		return errors.New("unexpected number of rows affected")
	}
	return nil
}
