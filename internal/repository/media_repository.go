package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postlater/internal/models"
)

type MediaAttachmentRepository interface {
	Create(ctx context.Context, tx *sql.Tx, m *models.MediaAttachment) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaAttachment, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAttachment, error)
	CleanOrphans(ctx context.Context, createdBefore time.Time) ([]string, error)
}

type mediaAttachmentRepository struct {
	db *sql.DB
}

func NewMediaAttachmentRepository(db *sql.DB) MediaAttachmentRepository {
	return &mediaAttachmentRepository{db: db}
}

const mediaColumns = `id, user_id, post_id, object_key, mime_type, upload_status, num_failures, alt_text,
	focus_x, focus_y, remote_id, width, height, duration, created_at, updated_at`

func scanMedia(row rowScanner) (*models.MediaAttachment, error) {
	var m models.MediaAttachment
	err := row.Scan(&m.ID, &m.UserID, &m.PostID, &m.ObjectKey, &m.MimeType, &m.UploadStatus, &m.NumFailures,
		&m.AltText, &m.FocusX, &m.FocusY, &m.RemoteID, &m.Width, &m.Height, &m.Duration, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mediaAttachmentRepository) Create(ctx context.Context, tx *sql.Tx, m *models.MediaAttachment) (int64, error) {
	if _, _, err := m.Focus(); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO media_attachments (user_id, post_id, object_key, mime_type, alt_text, focus_x, focus_y, width, height, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	args := []any{m.UserID, m.PostID, m.ObjectKey, m.MimeType, m.AltText, m.FocusX, m.FocusY, m.Width, m.Height, m.Duration}

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

func (r *mediaAttachmentRepository) GetByID(ctx context.Context, id int64) (*models.MediaAttachment, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_attachments WHERE id = $1`

	m, err := scanMedia(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return m, nil
}

func (r *mediaAttachmentRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAttachment, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_attachments WHERE post_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var attachments []*models.MediaAttachment
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		attachments = append(attachments, m)
	}
	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return attachments, nil
}

// CleanOrphans deletes attachments never linked to a post and returns their object keys
// so the stored payloads can be removed too.
func (r *mediaAttachmentRepository) CleanOrphans(ctx context.Context, createdBefore time.Time) ([]string, error) {
	query := `DELETE FROM media_attachments WHERE post_id IS NULL AND created_at < $1 RETURNING object_key`

	rows, err := r.db.QueryContext(ctx, query, createdBefore)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return keys, nil
}

func updateUploadState(ctx context.Context, tx *sql.Tx, m *models.MediaAttachment) error {
	query := `
		UPDATE media_attachments
		SET upload_status = $2,
			num_failures = $3,
			remote_id = $4,
			mime_type = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, m.ID, m.UploadStatus, m.NumFailures, m.RemoteID, m.MimeType)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
