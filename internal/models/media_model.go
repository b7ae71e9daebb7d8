package models

import (
	"errors"
	"strings"
	"time"
)

var ErrFocusOutOfRange = errors.New("focal point must be between -1.0 and 1.0")

type MediaAttachment struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	PostID       *int64    `db:"post_id" json:"post_id,omitempty"`
	ObjectKey    string    `db:"object_key" json:"object_key"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	UploadStatus Status    `db:"upload_status" json:"upload_status"`
	NumFailures  int       `db:"num_failures" json:"num_failures"`
	AltText      *string   `db:"alt_text" json:"alt_text,omitempty"`
	FocusX       float64   `db:"focus_x" json:"focus_x"`
	FocusY       float64   `db:"focus_y" json:"focus_y"`
	RemoteID     *string   `db:"remote_id" json:"remote_id,omitempty"`
	Width        *int      `db:"width" json:"width,omitempty"`
	Height       *int      `db:"height" json:"height,omitempty"`
	Duration     *int      `db:"duration" json:"duration,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Uploaded reports whether the attachment already exists on the remote service.
func (m *MediaAttachment) Uploaded() bool {
	return m.UploadStatus == StatusComplete && m.RemoteID != nil
}

func (m *MediaAttachment) Focus() (float64, float64, error) {
	if m.FocusX < -1 || m.FocusX > 1 || m.FocusY < -1 || m.FocusY > 1 {
		return 0, 0, ErrFocusOutOfRange
	}
	return m.FocusX, m.FocusY, nil
}

func (m *MediaAttachment) IsImage() bool {
	return strings.HasPrefix(m.MimeType, "image/")
}

func (m *MediaAttachment) IsVideo() bool {
	return strings.HasPrefix(m.MimeType, "video/")
}

func (m *MediaAttachment) IsAudio() bool {
	return strings.HasPrefix(m.MimeType, "audio/")
}

// Kind names the media family of the attachment's mime type, or "" when unknown.
func (m *MediaAttachment) Kind() string {
	switch {
	case m.IsImage():
		return "image"
	case m.IsVideo():
		return "video"
	case m.IsAudio():
		return "audio"
	}
	return ""
}
