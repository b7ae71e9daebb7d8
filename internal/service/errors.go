package service

import (
	"errors"

	"github.com/maheshrc27/postlater/internal/repository"
)

var (
	ErrItemNotFound          = errors.New("item not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrTerminalItem          = errors.New("item has already finished")
	ErrThreadedPost          = errors.New("post belongs to a thread and is sent by the thread")
	ErrThreadAlreadyComplete = errors.New("thread is already complete")
	ErrEmptyThread           = errors.New("thread has no post left to send")
	ErrUnknownItemKind       = errors.New("unknown item kind")
)

var (
	ErrAlreadyQueued = errors.New("post is queued on the remote network")
	ErrNotQueued     = errors.New("post is not queued on the remote network")
	ErrBoostNotDue   = errors.New("post is not due for an auto boost")

	// ErrLeaseConflict means another worker holds the item.
	ErrLeaseConflict = repository.ErrLeaseConflict
)
