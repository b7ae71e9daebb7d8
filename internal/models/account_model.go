package models

import (
	"time"
)

type AccountType string

const (
	AccountTypeMastodon  AccountType = "mast"
	AccountTypeTwitter   AccountType = "twitter"
	AccountTypeInstagram AccountType = "insta"
)

const (
	AccountStatusPending = "pending"
	AccountStatusActive  = "active"
	AccountStatusTrashed = "trash"
)

// Account is a remote social account that content can be delivered to.
type Account struct {
	ID            int64       `db:"id" json:"id"`
	UserID        int64       `db:"user_id" json:"user_id"`
	AccountType   AccountType `db:"account_type" json:"account_type"`
	AccountStatus string      `db:"account_status" json:"account_status"`
	Username      *string     `db:"username" json:"username,omitempty"`
	Credential    *string     `db:"credential" json:"-"` // encrypted oauth2 token
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

func (a *Account) IsOwnedBy(userID int64) bool {
	return a.UserID == userID
}
