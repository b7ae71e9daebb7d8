package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postlater/internal/models"
)

type AttemptHistoryRepository interface {
	Create(ctx context.Context, ah *models.AttemptHistory) (int64, error)
	ListByItem(ctx context.Context, kind models.ItemKind, itemID int64) ([]*models.AttemptHistory, error)
}

type attemptHistoryRepository struct {
	db *sql.DB
}

func NewAttemptHistoryRepository(db *sql.DB) AttemptHistoryRepository {
	return &attemptHistoryRepository{db: db}
}

func (r *attemptHistoryRepository) Create(ctx context.Context, ah *models.AttemptHistory) (int64, error) {
	query := `
		INSERT INTO attempt_history (user_id, item_kind, item_id, account_id, outcome, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, ah.UserID, ah.ItemKind, ah.ItemID, ah.AccountID, ah.Outcome, ah.ErrorMessage).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *attemptHistoryRepository) ListByItem(ctx context.Context, kind models.ItemKind, itemID int64) ([]*models.AttemptHistory, error) {
	query := `
		SELECT id, user_id, item_kind, item_id, account_id, outcome, error_message, created_at
		FROM attempt_history
		WHERE item_kind = $1 AND item_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, kind, itemID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var history []*models.AttemptHistory
	for rows.Next() {
		var ah models.AttemptHistory
		err := rows.Scan(&ah.ID, &ah.UserID, &ah.ItemKind, &ah.ItemID, &ah.AccountID, &ah.Outcome, &ah.ErrorMessage, &ah.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		history = append(history, &ah)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return history, nil
}
