// Package adapter defines the contract every remote social network integration
// satisfies before content can be dispatched to it.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAuthenticated is returned when an account's credentials are missing or unusable.
// The owner has to re-link the account; waiting will not help.
var ErrNotAuthenticated = errors.New("account is not authenticated for posting")

// MediaUpload is one attachment to send. Kind is "image", "video", "audio" or empty,
// for networks with a separate endpoint per media type.
type MediaUpload struct {
	Data     []byte
	MimeType string
	Kind     string
	AltText  string
	FocusX   float64
	FocusY   float64
}

type PostRequest struct {
	Content      string
	MediaIDs     []string
	InReplyToID  string
	ScheduleTime *time.Time
}

// PostResult identifies a submitted post. An empty RemoteURL means the network
// accepted the post for server-side scheduling and RemoteID is the queue id.
type PostResult struct {
	RemoteID  string
	RemoteURL string
}

func (r PostResult) Queued() bool {
	return r.RemoteURL == ""
}

type Adapter interface {
	IsReadyToPost() bool
	Username(ctx context.Context) (string, error)
	AvatarURL(ctx context.Context) (string, error)
	ProfileURL(ctx context.Context) (string, error)
	UploadMedia(ctx context.Context, media MediaUpload) (string, error)
	SendPost(ctx context.Context, req PostRequest) (PostResult, error)
	SendBoost(ctx context.Context, remoteURL string) (string, error)
	SearchUsernames(ctx context.Context, fragment string) ([]string, error)
}

// QueueChecker is implemented by adapters for networks that support server-side
// scheduling. published is false while the remote item is still waiting.
type QueueChecker interface {
	CheckQueued(ctx context.Context, remoteQueueID string) (result PostResult, published bool, err error)
}

type MediaUploadFailure struct {
	Err error
}

func (e *MediaUploadFailure) Error() string {
	return fmt.Sprintf("media upload failed: %v", e.Err)
}

func (e *MediaUploadFailure) Unwrap() error { return e.Err }

type PostSendFailure struct {
	Err error
}

func (e *PostSendFailure) Error() string {
	return fmt.Sprintf("post send failed: %v", e.Err)
}

func (e *PostSendFailure) Unwrap() error { return e.Err }

type BoostSendFailure struct {
	Err error
}

func (e *BoostSendFailure) Error() string {
	return fmt.Sprintf("boost send failed: %v", e.Err)
}

func (e *BoostSendFailure) Unwrap() error { return e.Err }
